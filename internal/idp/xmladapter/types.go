package xmladapter

import (
	"strings"
)

// sps is a minimal JATS/SciELO-PS article tree: just enough element
// paths to extract facts.DocumentFacts (spec §4.1 "known element
// paths"). Fields the rewriter touches are decoded separately via the
// token walk in RewriteIds; this struct backs Parse only.
type sps struct {
	Front front `xml:"front"`
	Body  body  `xml:"body"`
}

type front struct {
	JournalMeta journalMeta `xml:"journal-meta"`
	ArticleMeta articleMeta `xml:"article-meta"`
}

type journalMeta struct {
	ISSNs    []issnElem `xml:"issn"`
	ScieloID string     `xml:"journal-id"`
}

type issnElem struct {
	PubType string `xml:"pub-type,attr"`
	Value   string `xml:",chardata"`
}

type articleMeta struct {
	ArticleIDs   []articleIDElem `xml:"article-id"`
	Volume       string          `xml:"volume"`
	Issue        string          `xml:"issue"`
	Supplement   string          `xml:"supplement"`
	Elocation    string          `xml:"elocation-id"`
	Fpage        fpageElem       `xml:"fpage"`
	Lpage        string          `xml:"lpage"`
	PubDate      []pubDateElem   `xml:"pub-date"`
	ContribGroup contribGroup    `xml:"contrib-group"`
	TitleGroup   titleGroup      `xml:"title-group"`
}

type articleIDElem struct {
	PubIDType   string `xml:"pub-id-type,attr"`
	SpecificUse string `xml:"specific-use,attr"`
	Lang        string `xml:"lang,attr"`
	Value       string `xml:",chardata"`
}

// ArticleIDsDOI returns the ArticleIDs whose pub-id-type is "doi".
func (am articleMeta) ArticleIDsDOI() []articleIDElem {
	var out []articleIDElem
	for _, id := range am.ArticleIDs {
		if id.PubIDType == "doi" {
			out = append(out, id)
		}
	}
	return out
}

type fpageElem struct {
	Seq   string `xml:"seq,attr"`
	Value string `xml:",chardata"`
}

func (f fpageElem) seq() string { return f.Seq }

// String lets fpageElem be assigned directly where a plain string is expected.
func (f fpageElem) String() string { return f.Value }

type pubDateElem struct {
	PubType string `xml:"pub-type,attr"`
	Year    string `xml:"year"`
}

func (am articleMeta) pubYear() string {
	for _, d := range am.PubDate {
		if d.PubType == "epub" || d.PubType == "collection" {
			if d.Year != "" {
				return d.Year
			}
		}
	}
	for _, d := range am.PubDate {
		if d.Year != "" {
			return d.Year
		}
	}
	return ""
}

type contribGroup struct {
	Contribs []contribElem `xml:"contrib"`
}

type contribElem struct {
	ContribType string    `xml:"contrib-type,attr"`
	Name        nameElem  `xml:"name"`
	CollabName  string    `xml:"collab"`
	ORCID       string    `xml:"contrib-id"`
}

type nameElem struct {
	Surname     string `xml:"surname"`
	GivenNames  string `xml:"given-names"`
	Prefix      string `xml:"prefix"`
	Suffix      string `xml:"suffix"`
}

type titleGroup struct {
	ArticleTitle  langText   `xml:"article-title"`
	TransTitles   []langText `xml:"trans-title-group>trans-title"`
}

type langText struct {
	Lang string `xml:"lang,attr"`
	Text string `xml:",chardata"`
}

func (tg titleGroup) articleTitles() []langText {
	var out []langText
	if strings.TrimSpace(tg.ArticleTitle.Text) != "" {
		out = append(out, tg.ArticleTitle)
	}
	out = append(out, tg.TransTitles...)
	return out
}

type body struct {
	Paragraphs []string `xml:"p"`
}

// firstNonEmptyParagraph returns the first non-blank <p> text under
// <body>, the fallback discriminator used when no other metadata is
// present (spec §3 partialBody).
func (b body) firstNonEmptyParagraph() string {
	for _, p := range b.Paragraphs {
		if strings.TrimSpace(p) != "" {
			return p
		}
	}
	return ""
}

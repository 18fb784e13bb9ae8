// Package xmladapter parses a submitted XML/ZIP package into
// facts.DocumentFacts and rewrites the three identifier elements of an
// already-parsed document back into its XML serialization.
package xmladapter

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/scieloorg/id-provider/internal/idp/facts"
	"github.com/scieloorg/id-provider/internal/idperrors"
)

const (
	pubIDType         = "publisher-id"
	specificUseV3     = "scielo-v3"
	specificUseV2     = "scielo-v2"
	specificUsePrevID = "previous-pid"
)

// ReadPackage opens path as a ZIP and reads its first .xml member, or
// falls back to treating path as raw XML when it is not a valid ZIP
// (spec §4.1). The caller owns disposal of any temporary directory it
// created to stage path.
func ReadPackage(path string) ([]byte, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		if err == zip.ErrFormat {
			return os.ReadFile(path)
		}
		return nil, fmt.Errorf("%w: open zip %s: %v", idperrors.ErrInvalidXML, path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".xml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s in %s: %v", idperrors.ErrInvalidXML, f.Name, path, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("%w: %s contains no .xml member", idperrors.ErrInvalidXML, path)
}

// stripPrologue discards a leading XML declaration and DOCTYPE, per
// spec §4.1, so the decoder always sees a bare document element first.
func stripPrologue(raw []byte) []byte {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		offset := dec.InputOffset()
		tok, err := dec.Token()
		if err != nil {
			return raw
		}
		switch tok.(type) {
		case xml.ProcInst, xml.Directive, xml.Comment:
			continue
		case xml.CharData:
			continue
		default:
			return raw[offset:]
		}
	}
}

// Extracted is the subset of facts.Input the XML adapter is
// responsible for producing; the rest comes from whichever caller
// constructs the final facts.Input (e.g. the CLI combining this with
// a zip path).
type Extracted struct {
	facts.Input
}

// Parse extracts an Extracted record from raw XML bytes (ReadPackage
// unpacks a ZIP first). Values are taken as they appear in the XML;
// facts.New does the normalizing. It fails with idperrors.ErrInvalidXML
// on malformed XML.
func Parse(raw []byte) (Extracted, error) {
	clean := stripPrologue(raw)

	var root sps
	if err := xml.Unmarshal(clean, &root); err != nil {
		return Extracted{}, fmt.Errorf("%w: %v", idperrors.ErrInvalidXML, err)
	}

	ex := Extracted{}
	for _, id := range root.Front.ArticleMeta.ArticleIDs {
		switch id.SpecificUse {
		case specificUseV3:
			ex.V3 = id.Value
		case specificUseV2:
			ex.V2 = id.Value
		case specificUsePrevID:
			ex.AopPid = id.Value
		}
	}

	for _, issn := range root.Front.JournalMeta.ISSNs {
		t := facts.IssnType(issn.PubType)
		if t == "" {
			t = facts.IssnPpub
		}
		ex.Issns = append(ex.Issns, facts.Issn{Type: t, Value: issn.Value})
	}
	if root.Front.JournalMeta.ScieloID != "" {
		ex.Issns = append(ex.Issns, facts.Issn{Type: facts.IssnScieloID, Value: root.Front.JournalMeta.ScieloID})
	}

	for _, doi := range root.Front.ArticleMeta.ArticleIDsDOI() {
		ex.DoiWithLang = append(ex.DoiWithLang, facts.DoiWithLang{Lang: doi.Lang, Value: doi.Value})
	}

	am := root.Front.ArticleMeta
	ex.Volume = am.Volume
	ex.Number = am.Issue
	ex.Suppl = am.Supplement
	ex.ElocationID = am.Elocation
	ex.Fpage = am.Fpage.String()
	ex.FpageSeq = am.Fpage.seq()
	ex.Lpage = am.Lpage
	ex.PubYear = am.pubYear()

	for _, c := range root.Front.ArticleMeta.ContribGroup.Contribs {
		if c.CollabName != "" {
			ex.Collab = c.CollabName
			continue
		}
		ex.Authors = append(ex.Authors, facts.Author{
			Surname:    c.Name.Surname,
			GivenNames: c.Name.GivenNames,
			Prefix:     c.Name.Prefix,
			Suffix:     c.Name.Suffix,
			ORCID:      c.ORCID,
		})
	}

	for _, t := range root.Front.ArticleMeta.TitleGroup.articleTitles() {
		ex.Titles = append(ex.Titles, facts.ArticleTitle{Lang: t.Lang, Text: t.Text})
	}

	ex.PartialBody = root.Body.firstNonEmptyParagraph()
	ex.XML = raw
	return ex, nil
}

// RewriteIds sets the three <article-id> elements (specific-use
// scielo-v3, scielo-v2 and, when aopPid is non-empty, previous-pid) on
// raw and reserializes as UTF-8, passing every other token through an
// encoding/xml Encoder — a decode/re-encode token walk rather than a
// full DOM rewrite (spec §4.1). Element order and text content are
// kept, but the output is the encoder's serialization rather than a
// byte copy: the prologue is replaced by a fixed UTF-8 declaration and
// empty elements are written as start/end pairs.
func RewriteIds(raw []byte, v3, v2, aopPid string) ([]byte, error) {
	clean := stripPrologue(raw)
	dec := xml.NewDecoder(bytes.NewReader(clean))

	var out bytes.Buffer
	out.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	enc := xml.NewEncoder(&out)

	inArticleMeta := false
	articleIDsWritten := false

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", idperrors.ErrInvalidXML, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == "article-meta" {
				inArticleMeta = true
			}
			if t.Name.Local == "article-id" && inArticleMeta {
				use := attrValue(t, "specific-use")
				if use == specificUseV3 || use == specificUseV2 || use == specificUsePrevID {
					// Skip the original element entirely; we emit a
					// fresh, canonical set the first time we see one.
					if err := skipElement(dec); err != nil {
						return nil, fmt.Errorf("%w: %v", idperrors.ErrInvalidXML, err)
					}
					if !articleIDsWritten {
						if err := writeArticleIDs(enc, v3, v2, aopPid); err != nil {
							return nil, err
						}
						articleIDsWritten = true
					}
					continue
				}
			}
			if err := enc.EncodeToken(t.Copy()); err != nil {
				return nil, fmt.Errorf("%w: %v", idperrors.ErrInvalidXML, err)
			}
		case xml.EndElement:
			if t.Name.Local == "article-meta" {
				inArticleMeta = false
				if !articleIDsWritten {
					if err := writeArticleIDs(enc, v3, v2, aopPid); err != nil {
						return nil, err
					}
					articleIDsWritten = true
				}
			}
			if err := enc.EncodeToken(t); err != nil {
				return nil, fmt.Errorf("%w: %v", idperrors.ErrInvalidXML, err)
			}
		default:
			if err := enc.EncodeToken(tok); err != nil {
				return nil, fmt.Errorf("%w: %v", idperrors.ErrInvalidXML, err)
			}
		}
	}

	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("%w: %v", idperrors.ErrInvalidXML, err)
	}
	return out.Bytes(), nil
}

func attrValue(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// skipElement consumes tokens up to and including the matching
// EndElement for a StartElement already read.
func skipElement(dec *xml.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return nil
}

func writeArticleIDs(enc *xml.Encoder, v3, v2, aopPid string) error {
	if err := writeArticleID(enc, specificUseV3, v3); err != nil {
		return err
	}
	if err := writeArticleID(enc, specificUseV2, v2); err != nil {
		return err
	}
	if aopPid != "" {
		if err := writeArticleID(enc, specificUsePrevID, aopPid); err != nil {
			return err
		}
	}
	return nil
}

func writeArticleID(enc *xml.Encoder, specificUse, value string) error {
	start := xml.StartElement{
		Name: xml.Name{Local: "article-id"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "pub-id-type"}, Value: pubIDType},
			{Name: xml.Name{Local: "specific-use"}, Value: specificUse},
		},
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if err := enc.EncodeToken(xml.CharData(value)); err != nil {
		return err
	}
	return enc.EncodeToken(start.End())
}

// Package facts holds DocumentFacts, the normalized, duplication-
// tolerant view of a submitted document that the Dedup Resolver and
// Request Pipeline operate on.
package facts

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const partialBodyMaxLen = 500

// IssnType enumerates the kinds of ISSN an article-meta block may carry.
type IssnType string

const (
	IssnEpub     IssnType = "epub"
	IssnPpub     IssnType = "ppub"
	IssnL        IssnType = "l"
	IssnScieloID IssnType = "scielo-id"
)

// Issn is one {type, value} pair from the article's journal-meta.
type Issn struct {
	Type  IssnType
	Value string
}

// DoiWithLang pairs a DOI with the language it was registered under.
type DoiWithLang struct {
	Lang  string
	Value string
}

// Author is one contributor, in document order.
type Author struct {
	Surname     string
	GivenNames  string
	Prefix      string
	Suffix      string
	ORCID       string
}

// ArticleTitle is one {lang, text} article title.
type ArticleTitle struct {
	Lang string
	Text string
}

// DocumentFacts is the immutable, normalized view of one submitted XML
// package. Construct it with New, which uppercases the identifier and
// discriminator fields; languages and author given names, prefixes,
// suffixes and ORCIDs keep their original case.
type DocumentFacts struct {
	V2     string
	V3     string
	AopPid string

	Issns       []Issn
	PubYear     string
	DoiWithLang []DoiWithLang
	Authors     []Author
	Collab      string
	Titles      []ArticleTitle

	Volume      string
	Number      string
	Suppl       string
	ElocationID string
	Fpage       string
	FpageSeq    string
	Lpage       string

	PartialBody string

	XML     []byte
	ZipPath string
}

// Input is the raw, not-yet-normalized data the XML Adapter extracts.
// New normalizes it into a DocumentFacts.
type Input struct {
	V2          string
	V3          string
	AopPid      string
	Issns       []Issn
	PubYear     string
	DoiWithLang []DoiWithLang
	Authors     []Author
	Collab      string
	Titles      []ArticleTitle
	Volume      string
	Number      string
	Suppl       string
	ElocationID string
	Fpage       string
	FpageSeq    string
	Lpage       string
	PartialBody string
	XML         []byte
	ZipPath     string
}

// New normalizes an Input into DocumentFacts: uppercases every
// discriminating field, collapses/truncates the partial body, and
// enforces the shape invariants (non-empty issns, non-empty pubYear).
// It does NOT enforce the discriminator floor — that is a Resolver
// policy decision (spec §4.4), not a shape invariant.
func New(in Input) (DocumentFacts, error) {
	f := DocumentFacts{
		V2:          strings.ToUpper(strings.TrimSpace(in.V2)),
		V3:          strings.ToUpper(strings.TrimSpace(in.V3)),
		AopPid:      strings.ToUpper(strings.TrimSpace(in.AopPid)),
		PubYear:     strings.TrimSpace(in.PubYear),
		Collab:      strings.ToUpper(strings.TrimSpace(in.Collab)),
		Volume:      strings.ToUpper(strings.TrimSpace(in.Volume)),
		Number:      strings.ToUpper(strings.TrimSpace(in.Number)),
		Suppl:       strings.ToUpper(strings.TrimSpace(in.Suppl)),
		ElocationID: strings.ToUpper(strings.TrimSpace(in.ElocationID)),
		Fpage:       strings.ToUpper(strings.TrimSpace(in.Fpage)),
		FpageSeq:    strings.ToUpper(strings.TrimSpace(in.FpageSeq)),
		Lpage:       strings.ToUpper(strings.TrimSpace(in.Lpage)),
		PartialBody: standardizePartialBody(in.PartialBody),
		XML:         in.XML,
		ZipPath:     in.ZipPath,
	}

	for _, issn := range in.Issns {
		f.Issns = append(f.Issns, Issn{Type: issn.Type, Value: strings.ToUpper(strings.TrimSpace(issn.Value))})
	}
	for _, d := range in.DoiWithLang {
		f.DoiWithLang = append(f.DoiWithLang, DoiWithLang{Lang: d.Lang, Value: strings.ToUpper(strings.TrimSpace(d.Value))})
	}
	for _, a := range in.Authors {
		f.Authors = append(f.Authors, Author{
			Surname:    strings.ToUpper(strings.TrimSpace(a.Surname)),
			GivenNames: a.GivenNames,
			Prefix:     a.Prefix,
			Suffix:     a.Suffix,
			ORCID:      a.ORCID,
		})
	}
	for _, t := range in.Titles {
		f.Titles = append(f.Titles, ArticleTitle{Lang: t.Lang, Text: strings.ToUpper(strings.TrimSpace(t.Text))})
	}

	if err := validation.Validate(f.Issns, validation.Required); err != nil {
		return DocumentFacts{}, validation.Errors{"issns": err}
	}
	if err := validation.Validate(f.PubYear, validation.Required); err != nil {
		return DocumentFacts{}, validation.Errors{"pub_year": err}
	}

	return f, nil
}

// standardizePartialBody collapses whitespace, uppercases and truncates
// to the 500-character fallback-discriminator limit.
func standardizePartialBody(s string) string {
	fields := strings.Fields(s)
	joined := strings.ToUpper(strings.Join(fields, " "))
	if r := []rune(joined); len(r) > partialBodyMaxLen {
		joined = string(r[:partialBodyMaxLen])
	}
	return joined
}

// HasIssuePlacement reports whether the document carries any issue-level
// metadata (volume/number/suppl) — the AOP-vs-issue discriminant used
// throughout the Resolver and Pipeline.
func (f DocumentFacts) HasIssuePlacement() bool {
	return f.Volume != "" || f.Number != "" || f.Suppl != ""
}

// Surnames joins non-blank author surnames with a single space, in
// document order, the way the Store persists/queries DocumentRecord.Surnames.
// Blank surnames are dropped (Open Question, resolved in DESIGN.md): a
// blank surname carries no discriminating signal and would otherwise
// inject a stray space into the joined field used for exact matching.
func (f DocumentFacts) Surnames() string {
	var names []string
	for _, a := range f.Authors {
		if a.Surname != "" {
			names = append(names, a.Surname)
		}
	}
	return strings.Join(names, " ")
}

// PickIssn returns the ISSN to use for v2 allocation: epub preferred,
// then ppub. Returns ok=false when neither is present.
func (f DocumentFacts) PickIssn() (string, bool) {
	var ppub string
	for _, issn := range f.Issns {
		if issn.Type == IssnEpub {
			return issn.Value, true
		}
		if issn.Type == IssnPpub {
			ppub = issn.Value
		}
	}
	if ppub != "" {
		return ppub, true
	}
	return "", false
}

// HasDiscriminators reports whether at least one of the "real"
// discriminator groups is present (doi, authors, collab, titles). When
// false, the Resolver requires a non-empty PartialBody instead (spec
// §3 invariant, §4.4 precondition).
func (f DocumentFacts) HasDiscriminators() bool {
	return len(f.DoiWithLang) > 0 || len(f.Authors) > 0 || f.Collab != "" || len(f.Titles) > 0
}

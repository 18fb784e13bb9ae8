// Package store defines the Document Store contract (spec §4.3): the
// persistent registry of DocumentRecords the Dedup Resolver queries
// and the Request Pipeline writes to. It is storage-engine agnostic —
// Criteria is a plain value the Postgres implementation translates to
// SQL (Design Notes §9) — so resolver and pipeline can be tested
// against an in-memory fake.
package store

import (
	"context"
	"time"

	"github.com/scieloorg/id-provider/internal/idp/facts"
)

// DocumentRecord is the stored entity: DocumentFacts plus derived and
// bookkeeping fields (spec §3).
type DocumentRecord struct {
	ObjectID int64

	V2     string
	V3     string
	AopPid string

	Issns       []facts.Issn
	PubYear     string
	DoiWithLang []facts.DoiWithLang
	Authors     []facts.Author
	Collab      string
	Titles      []facts.ArticleTitle

	Volume      string
	Number      string
	Suppl       string
	ElocationID string
	Fpage       string
	FpageSeq    string
	Lpage       string

	PartialBody string
	Surnames    string

	XML     []byte
	ZipPath string
	Extra   map[string]string

	Created time.Time
	Updated time.Time
}

// HasIssuePlacement mirrors facts.DocumentFacts.HasIssuePlacement for
// a stored record.
func (r DocumentRecord) HasIssuePlacement() bool {
	return r.Volume != "" || r.Number != "" || r.Suppl != ""
}

// RequestStatus enumerates the lifecycle of one audit Request row.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestCompleted RequestStatus = "completed"
	RequestFailed    RequestStatus = "failed"
)

// Request is the append-only audit row logged around each RequestId call.
type Request struct {
	ID         int64
	User       string
	InV2       string
	InV3       string
	InAopPid   string
	OutV2      string
	OutV3      string
	OutAopPid  string
	Status     RequestStatus
	Diffs      string
	Created    time.Time
	Updated    time.Time
}

// OrGroup is one disjunctive constraint over an embedded list field:
// WHERE field IN (values...), degrading to plain equality when there
// is exactly one value (spec §4.3).
type OrGroup struct {
	Field  string // "issns.value" | "doi_with_lang.value" | "article_titles.text"
	Values []string
}

// Criteria is the abstract query the Resolver builds and the Store
// translates: scalar equalities AND'd together, AND'd with zero or
// more OrGroups (each itself an OR across its Values).
type Criteria struct {
	Equals   map[string]string
	OrGroups []OrGroup
}

// NewCriteria returns an empty, ready-to-populate Criteria.
func NewCriteria() Criteria {
	return Criteria{Equals: map[string]string{}}
}

// Eq adds a scalar equality constraint and returns the receiver for chaining.
func (c Criteria) Eq(field, value string) Criteria {
	c.Equals[field] = value
	return c
}

// Or adds a disjunctive list-field constraint when values is non-empty;
// a single value degrades to the field appearing once in the OR set,
// which SQL and in-memory implementations both treat identically to
// equality.
func (c Criteria) Or(field string, values []string) Criteria {
	if len(values) == 0 {
		return c
	}
	c.OrGroups = append(c.OrGroups, OrGroup{Field: field, Values: values})
	return c
}

// FindOptions page the ordered-by-updated-desc result set.
type FindOptions struct {
	Page     int // 1-based; 0 defaults to 1
	PageSize int // 0 defaults to 50 (spec §4.3 default page size)
}

const DefaultPageSize = 50

// Store is the Document Store contract (spec §4.3).
type Store interface {
	FindMatching(ctx context.Context, criteria Criteria, opts FindOptions) ([]DocumentRecord, error)
	FindByV3(ctx context.Context, v3 string) (DocumentRecord, error)
	ExistsV2(ctx context.Context, v2 string) (bool, error)
	ExistsV3(ctx context.Context, v3 string) (bool, error)
	Upsert(ctx context.Context, record DocumentRecord) (DocumentRecord, error)
	LogRequest(ctx context.Context, req Request) (Request, error)
	UpdateRequest(ctx context.Context, req Request) error
}

// ErrRecordNotFound signals FindByV3 found no record — distinct from
// the Resolver's NotFound outcome, which is about dedup matching, not
// direct lookup.
var ErrRecordNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "document record not found" }

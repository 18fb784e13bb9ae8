// Package migration implements the Migration Orchestrator (spec
// §4.6): a three-stage state machine — RegisterMigration,
// PullAndRequestId, UndoIdRequest — that seeds Migration rows from an
// external descriptor, pulls legacy XML from one of three sources,
// pushes it through the Request Pipeline, and can undo a completed
// identifier request.
package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/scieloorg/id-provider/internal/idp/facts"
	"github.com/scieloorg/id-provider/internal/idp/pipeline"
	"github.com/scieloorg/id-provider/internal/idp/xmladapter"
	"github.com/scieloorg/id-provider/internal/idperrors"
	"github.com/scieloorg/id-provider/internal/source"
)

// Status is the Migration row's lifecycle state (spec §4.6).
type Status string

const (
	StatusCreated  Status = "CREATED"
	StatusXML      Status = "XML"
	StatusMigrated Status = "MIGRATED"
	StatusFailed   Status = "FAILED"
)

// Row is the Migration entity (spec §3/§4.6).
type Row struct {
	V2        string
	AopPid    string
	IsAop     bool
	FilePath  string
	Issn      string
	Year      string
	Order     int
	V91       string
	V93       string
	V3        string
	XML       []byte
	Source    source.Name
	Status    Status
	StatusMsg string
	Created   time.Time
	Updated   time.Time
}

// Descriptor is one external JSONL seed record RegisterMigration
// consumes (spec §4.6: "seed a Migration row from an external JSONL
// descriptor").
type Descriptor struct {
	V2       string
	AopPid   string
	IsAop    bool
	FilePath string
	Issn     string
	Year     string
	Order    int
	V91      string
	V93      string
}

// Store is the Migration row persistence contract — a database
// independent of the id-provider's store.Store (spec §3 ownership:
// "the two databases are separate... no cross-referential integrity
// beyond the v2 key").
type Store interface {
	FindByV2(ctx context.Context, v2 string) (Row, bool, error)
	Save(ctx context.Context, row Row) error
	// FindByStatus pages rows for one journal/AOP-flag/status
	// combination, ordered by insertion order (spec §4.6).
	FindByStatus(ctx context.Context, issn string, isAop bool, status Status, page, pageSize int) ([]Row, error)
}

// Orchestrator wires the three stages together against a Store, the
// Request Pipeline, and the ordered list of pull sources.
type Orchestrator struct {
	store   Store
	sources []source.Named
	pipe    *pipeline.Pipeline
	pageSz  int
}

const defaultPageSize = 100

// New returns an Orchestrator. sources are tried in the order given
// (spec §4.6: website, then filesystem, then article-meta).
func New(store Store, sources []source.Named, pipe *pipeline.Pipeline) *Orchestrator {
	return &Orchestrator{store: store, sources: sources, pipe: pipe, pageSz: defaultPageSize}
}

// RegisterMigration seeds or updates a Migration row from d. Idempotent:
// if a row for d.V2 exists and skipUpdate is set, it is left untouched;
// otherwise every descriptor field is overwritten and status reset to
// CREATED (spec §4.6).
func (o *Orchestrator) RegisterMigration(ctx context.Context, d Descriptor, skipUpdate bool) error {
	existing, found, err := o.store.FindByV2(ctx, d.V2)
	if err != nil {
		return fmt.Errorf("register migration: lookup %s: %w", d.V2, err)
	}
	if found && skipUpdate {
		return nil
	}

	row := Row{
		V2:       d.V2,
		AopPid:   d.AopPid,
		IsAop:    d.IsAop,
		FilePath: d.FilePath,
		Issn:     d.Issn,
		Year:     d.Year,
		Order:    d.Order,
		V91:      d.V91,
		V93:      d.V93,
		Status:   StatusCreated,
		Created:  existing.Created,
	}
	if !found {
		row.Created = time.Now()
	}
	row.Updated = time.Now()

	if err := o.store.Save(ctx, row); err != nil {
		return fmt.Errorf("register migration: save %s: %w", d.V2, err)
	}
	return nil
}

// PullAndRequestId fetches XML for one CREATED row, trying each source
// in order, then pushes the result through RequestId. On success the
// row's status becomes MIGRATED; on pull failure, FAILED with a
// message (spec §4.6).
func (o *Orchestrator) PullAndRequestId(ctx context.Context, row Row) (Row, error) {
	xmlBytes, srcName, err := o.pull(ctx, row)
	if err != nil {
		row.Status = StatusFailed
		row.StatusMsg = err.Error()
		row.Updated = time.Now()
		if saveErr := o.store.Save(ctx, row); saveErr != nil {
			return row, fmt.Errorf("pull and request id: save failed row %s: %w", row.V2, saveErr)
		}
		return row, err
	}

	row.XML = xmlBytes
	row.Source = srcName
	row.Status = StatusXML
	row.Updated = time.Now()
	if err := o.store.Save(ctx, row); err != nil {
		return row, fmt.Errorf("pull and request id: save xml row %s: %w", row.V2, err)
	}

	return o.RequestIdForRow(ctx, row)
}

// RequestIdForRow pushes a row's already-fetched XML through RequestId
// without re-pulling it — used both by PullAndRequestId right after a
// successful pull, and by the CLI's standalone "request_id" verb to
// retry a row stuck at status=XML (spec §6).
func (o *Orchestrator) RequestIdForRow(ctx context.Context, row Row) (Row, error) {
	extracted, err := xmladapter.Parse(row.XML)
	if err != nil {
		row.Status = StatusFailed
		row.StatusMsg = err.Error()
		row.Updated = time.Now()
		_ = o.store.Save(ctx, row)
		return row, err
	}
	extracted.Input.V2 = row.V2
	extracted.Input.AopPid = row.AopPid

	f, err := facts.New(extracted.Input)
	if err != nil {
		row.Status = StatusFailed
		row.StatusMsg = err.Error()
		row.Updated = time.Now()
		_ = o.store.Save(ctx, row)
		return row, err
	}

	out, err := o.pipe.RequestId(ctx, "migration", f)
	if err != nil {
		row.Status = StatusFailed
		row.StatusMsg = err.Error()
		row.Updated = time.Now()
		_ = o.store.Save(ctx, row)
		return row, err
	}

	row.V3 = out.Record.V3
	row.XML = out.XML
	row.Status = StatusMigrated
	row.StatusMsg = ""
	row.Updated = time.Now()
	if err := o.store.Save(ctx, row); err != nil {
		return row, fmt.Errorf("request id for row: save migrated row %s: %w", row.V2, err)
	}
	return row, nil
}

// pull tries each configured source in order; the first to return
// non-empty XML wins (spec §4.6).
func (o *Orchestrator) pull(ctx context.Context, row Row) ([]byte, source.Name, error) {
	for _, s := range o.sources {
		xmlBytes, err := s.Fetcher.Fetch(ctx, row.V2, row.FilePath)
		if err != nil {
			return nil, "", fmt.Errorf("%w: pull %s from %s: %w", idperrors.ErrPullXML, row.V2, s.Name, err)
		}
		if len(xmlBytes) > 0 {
			return xmlBytes, s.Name, nil
		}
	}
	return nil, "", fmt.Errorf("%w: no configured source returned xml for %s", idperrors.ErrPullXML, row.V2)
}

// UndoIdRequest reverts a MIGRATED row: copies registeredXML (the
// registered document's XML, which the caller looks up by v2) back onto
// the row, and returns its status to XML with a fixed message (spec §4.6).
func (o *Orchestrator) UndoIdRequest(ctx context.Context, registeredXML []byte, row Row) (Row, error) {
	row.XML = registeredXML
	row.Status = StatusXML
	row.StatusMsg = "id request undone"
	row.Updated = time.Now()
	if err := o.store.Save(ctx, row); err != nil {
		return row, fmt.Errorf("undo id request: save row %s: %w", row.V2, err)
	}
	return row, nil
}

// Enumerate pages Migration rows for one journal/AOP-flag/status
// combination, returning each page via the yield callback. It stops
// early when yield returns false or the page is empty, and checks
// ctx.Err() between pages so a long enumeration is cooperatively
// cancellable (spec §5; supplements the original's generator-based
// get_pids as an explicit page iterator per SPEC_FULL.md §4.6).
func (o *Orchestrator) Enumerate(ctx context.Context, issn string, isAop bool, status Status, yield func([]Row) bool) error {
	page := 1
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := o.store.FindByStatus(ctx, issn, isAop, status, page, o.pageSz)
		if err != nil {
			return fmt.Errorf("enumerate %s/%v/%s page %d: %w", issn, isAop, status, page, err)
		}
		if len(rows) == 0 {
			return nil
		}
		if !yield(rows) {
			return nil
		}
		page++
	}
}

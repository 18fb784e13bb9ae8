// Package pipeline implements the Request Pipeline: the top-level
// RequestId operation that logs a request, resolves it against the
// Dedup Resolver, reconciles identifiers, rewrites the XML, and
// persists the result (spec §4.5).
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/scieloorg/id-provider/internal/idp/facts"
	"github.com/scieloorg/id-provider/internal/idp/store"
	"github.com/scieloorg/id-provider/internal/idperrors"
)

// Resolver is the subset of resolver.Resolver the Pipeline depends on.
type Resolver interface {
	Resolve(ctx context.Context, f facts.DocumentFacts) (store.DocumentRecord, error)
}

// Allocator is the subset of allocator.Allocator the Pipeline depends on.
type Allocator interface {
	FreshV3(ctx context.Context) (string, error)
	FreshV2(ctx context.Context, issn, year string) (string, error)
}

// Rewriter is the XML Adapter's rewrite step, narrowed to what the
// Pipeline calls.
type Rewriter func(raw []byte, v3, v2, aopPid string) ([]byte, error)

// DefaultMaxSavingAttempts bounds the NotUnique retry loop in step 6
// (spec §4.5 step 6: "retry... up to a bounded number of times").
const DefaultMaxSavingAttempts = 5

// Pipeline wires the Resolver, Allocator, XML rewrite step and Store
// into the RequestId protocol.
type Pipeline struct {
	resolver          Resolver
	allocator         Allocator
	rewrite           Rewriter
	store             store.Store
	maxSavingAttempts int
}

// New returns a Pipeline. maxSavingAttempts <= 0 is replaced with
// DefaultMaxSavingAttempts.
func New(r Resolver, a Allocator, rewrite Rewriter, s store.Store, maxSavingAttempts int) *Pipeline {
	if maxSavingAttempts <= 0 {
		maxSavingAttempts = DefaultMaxSavingAttempts
	}
	return &Pipeline{resolver: r, allocator: a, rewrite: rewrite, store: s, maxSavingAttempts: maxSavingAttempts}
}

// Outcome is the result of one RequestId call.
type Outcome struct {
	// Changed reports whether the identifier triple (v2, v3, aopPid)
	// differs from the input; when false the caller should treat this
	// as a NoChange result and Record.XML is not the rewritten output.
	Changed bool
	Record  store.DocumentRecord
	XML     []byte
}

// User is the caller label logged against the Request audit row.
type User string

// RequestId runs the seven-step protocol from spec §4.5. Steps are
// sequential; only the request-log writes (step 1 and the step 7
// update) are non-fatal.
func (p *Pipeline) RequestId(ctx context.Context, user User, f facts.DocumentFacts) (Outcome, error) {
	reqID, logErr := p.logRequest(ctx, user, f)
	if logErr != nil {
		// Non-fatal: the audit trail may be incomplete but the
		// business operation proceeds (spec §4.5 step 1).
	}

	registered, resolveErr := p.resolver.Resolve(ctx, f)
	found := resolveErr == nil
	if resolveErr != nil && !errors.Is(resolveErr, idperrors.ErrNotFound) {
		return Outcome{}, fmt.Errorf("resolve: %w", resolveErr)
	}

	if found {
		if err := aopInputGuard(f, registered); err != nil {
			return Outcome{}, err
		}
	}

	reconciled, err := p.reconcileIds(ctx, f, registered, found)
	if err != nil {
		return Outcome{}, err
	}

	changed := reconciled.v2 != f.V2 || reconciled.v3 != f.V3 || reconciled.aopPid != f.AopPid

	var rewritten []byte
	if changed {
		rewritten, err = p.rewrite(f.XML, reconciled.v3, reconciled.v2, reconciled.aopPid)
		if err != nil {
			return Outcome{}, err
		}
	} else {
		rewritten = f.XML
	}

	rec, err := p.persist(ctx, f, reconciled, registered, found, rewritten)
	if err != nil {
		if logErr == nil {
			p.updateRequestLog(ctx, reqID, reconciled, store.RequestFailed, err.Error())
		}
		return Outcome{}, err
	}

	if logErr == nil {
		p.updateRequestLog(ctx, reqID, reconciled, store.RequestCompleted, "")
	}

	return Outcome{Changed: changed, Record: rec, XML: rewritten}, nil
}

// reconciledIds is the (v2, v3, aopPid) triple step 3 computes.
type reconciledIds struct {
	v2, v3, aopPid string
}

// logRequest is step 1: an append-only audit row, failure non-fatal.
func (p *Pipeline) logRequest(ctx context.Context, user User, f facts.DocumentFacts) (int64, error) {
	req, err := p.store.LogRequest(ctx, store.Request{
		User:     string(user),
		InV2:     f.V2,
		InV3:     f.V3,
		InAopPid: f.AopPid,
		Status:   store.RequestPending,
	})
	if err != nil {
		return 0, err
	}
	return req.ID, nil
}

func (p *Pipeline) updateRequestLog(ctx context.Context, reqID int64, ids reconciledIds, status store.RequestStatus, diffs string) {
	_ = p.store.UpdateRequest(ctx, store.Request{
		ID:        reqID,
		OutV2:     ids.v2,
		OutV3:     ids.v3,
		OutAopPid: ids.aopPid,
		Status:    status,
		Diffs:     diffs,
	})
}

// reconcileIds implements step 3: allocate missing identifiers when no
// match was found, or pin to the registered record's identifiers
// (stamping the AOP transition) when one was.
func (p *Pipeline) reconcileIds(ctx context.Context, f facts.DocumentFacts, registered store.DocumentRecord, found bool) (reconciledIds, error) {
	if !found {
		return p.reconcileNotFound(ctx, f)
	}
	return p.reconcileFound(ctx, f, registered)
}

func (p *Pipeline) reconcileNotFound(ctx context.Context, f facts.DocumentFacts) (reconciledIds, error) {
	v3 := f.V3
	if v3 == "" {
		fresh, err := p.allocator.FreshV3(ctx)
		if err != nil {
			return reconciledIds{}, err
		}
		v3 = fresh
	}

	v2 := f.V2
	if v2 == "" {
		issn, ok := f.PickIssn()
		if !ok {
			return reconciledIds{}, idperrors.ErrCannotAllocateV2
		}
		fresh, err := p.allocator.FreshV2(ctx, issn, f.PubYear)
		if err != nil {
			return reconciledIds{}, err
		}
		v2 = fresh
	}

	return reconciledIds{v2: v2, v3: v3, aopPid: f.AopPid}, nil
}

func (p *Pipeline) reconcileFound(ctx context.Context, f facts.DocumentFacts, registered store.DocumentRecord) (reconciledIds, error) {
	v2 := registered.V2
	if f.V2 != "" {
		v2 = f.V2
	}

	aopPid := f.AopPid
	if !registered.HasIssuePlacement() && f.HasIssuePlacement() {
		aopPid = registered.V2
	}

	return reconciledIds{v2: v2, v3: registered.V3, aopPid: aopPid}, nil
}

// aopInputGuard implements step 4: an already-published (issue-placed)
// registered record may not be re-registered without issue placement.
func aopInputGuard(f facts.DocumentFacts, registered store.DocumentRecord) error {
	if !f.HasIssuePlacement() && registered.HasIssuePlacement() {
		return idperrors.ErrNotAllowedAOPInput
	}
	return nil
}

func (p *Pipeline) persist(ctx context.Context, f facts.DocumentFacts, ids reconciledIds, registered store.DocumentRecord, found bool, xmlBytes []byte) (store.DocumentRecord, error) {
	rec := store.DocumentRecord{
		ObjectID:    registered.ObjectID,
		V2:          ids.v2,
		V3:          ids.v3,
		AopPid:      ids.aopPid,
		Issns:       f.Issns,
		PubYear:     f.PubYear,
		DoiWithLang: f.DoiWithLang,
		Authors:     f.Authors,
		Collab:      f.Collab,
		Titles:      f.Titles,
		Volume:      f.Volume,
		Number:      f.Number,
		Suppl:       f.Suppl,
		ElocationID: f.ElocationID,
		Fpage:       f.Fpage,
		FpageSeq:    f.FpageSeq,
		Lpage:       f.Lpage,
		PartialBody: f.PartialBody,
		Surnames:    f.Surnames(),
		XML:         xmlBytes,
		ZipPath:     f.ZipPath,
		Created:     registered.Created,
	}

	for attempt := 1; attempt <= p.maxSavingAttempts; attempt++ {
		saved, err := p.store.Upsert(ctx, rec)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, idperrors.ErrNotUnique) {
			return store.DocumentRecord{}, fmt.Errorf("%w: %v", idperrors.ErrSaving, err)
		}

		var conflictField string
		var ce *idperrors.ConflictError
		if errors.As(err, &ce) {
			conflictField = ce.Field
		}
		if retryErr := p.retryAllocation(ctx, &rec, conflictField); retryErr != nil {
			return store.DocumentRecord{}, retryErr
		}
	}
	return store.DocumentRecord{}, fmt.Errorf("%w: exhausted %d save attempts", idperrors.ErrSaving, p.maxSavingAttempts)
}

// retryAllocation redraws the offending identifier after an Upsert
// NotUnique conflict (spec §4.5 step 6).
func (p *Pipeline) retryAllocation(ctx context.Context, rec *store.DocumentRecord, conflictField string) error {
	switch conflictField {
	case "v2":
		issn, ok := pickIssn(rec.Issns)
		if !ok {
			return idperrors.ErrCannotAllocateV2
		}
		fresh, err := p.allocator.FreshV2(ctx, issn, rec.PubYear)
		if err != nil {
			return err
		}
		rec.V2 = fresh
	default:
		fresh, err := p.allocator.FreshV3(ctx)
		if err != nil {
			return err
		}
		rec.V3 = fresh
	}
	return nil
}

func pickIssn(issns []facts.Issn) (string, bool) {
	f := facts.DocumentFacts{Issns: issns}
	return f.PickIssn()
}

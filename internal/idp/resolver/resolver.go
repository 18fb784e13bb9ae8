// Package resolver implements the Dedup Resolver (spec §4.4): given
// DocumentFacts, decides whether a registered DocumentRecord matches,
// via a three-tiered query strategy (issue+v2, issue-only, AOP-form).
package resolver

import (
	"context"
	"fmt"

	"github.com/scieloorg/id-provider/internal/idp/facts"
	"github.com/scieloorg/id-provider/internal/idp/store"
	"github.com/scieloorg/id-provider/internal/idperrors"
)

// Resolver runs the three-probe dedup algorithm against a store.Store.
type Resolver struct {
	store store.Store
}

// New returns a Resolver backed by s.
func New(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Resolve returns the matching DocumentRecord for f, or
// idperrors.ErrNotFound when none of the three probes hit — a normal,
// successful outcome that drives identifier allocation in the
// pipeline, not a failure. It fails with
// idperrors.ErrNotEnoughDiscriminators when f carries no usable
// discriminator and no partial body (spec §4.4 precondition).
func (r *Resolver) Resolve(ctx context.Context, f facts.DocumentFacts) (store.DocumentRecord, error) {
	if !f.HasDiscriminators() && f.PartialBody == "" {
		return store.DocumentRecord{}, idperrors.ErrNotEnoughDiscriminators
	}

	probes := []func() store.Criteria{
		func() store.Criteria { return r.issueCriteria(f, true) },
		func() store.Criteria { return r.issueCriteria(f, false) },
		func() store.Criteria { return r.aopCriteria(f) },
	}

	for i, buildCriteria := range probes {
		if i == 0 && f.V2 == "" {
			// Issue+V2 probe is skipped when the input has no v2 (spec §4.4).
			continue
		}
		rec, found, err := r.probe(ctx, buildCriteria())
		if err != nil {
			if i < 2 {
				return store.DocumentRecord{}, fmt.Errorf("%w: %v", idperrors.QueryInIssueFailed, err)
			}
			return store.DocumentRecord{}, fmt.Errorf("%w: %v", idperrors.QueryAsAopFailed, err)
		}
		if found {
			fresh, err := r.store.FindByV3(ctx, rec.V3)
			if err != nil {
				return store.DocumentRecord{}, fmt.Errorf("%w: %v", idperrors.FetchFailed, err)
			}
			return fresh, nil
		}
	}
	return store.DocumentRecord{}, idperrors.ErrNotFound
}

// probe issues one findMatching query and returns the most-recently-
// updated result, if any (the store already orders by updated desc —
// spec §4.3 — so the first page's first row is the winner).
func (r *Resolver) probe(ctx context.Context, criteria store.Criteria) (store.DocumentRecord, bool, error) {
	recs, err := r.store.FindMatching(ctx, criteria, store.FindOptions{Page: 1, PageSize: 1})
	if err != nil {
		return store.DocumentRecord{}, false, err
	}
	if len(recs) == 0 {
		return store.DocumentRecord{}, false, nil
	}
	return recs[0], true, nil
}

// baseCriteria builds the constraints shared by the issue+v2 and
// issue-only probes: issue-level scalars, pubYear, collab, surnames,
// and the three list-value OR groups, with partial_body substituted
// as a required equality when no other discriminator is present (the
// Open Question resolved as AND in SPEC_FULL.md §9).
func baseCriteria(f facts.DocumentFacts) store.Criteria {
	c := store.NewCriteria().
		Eq("pub_year", f.PubYear).
		Eq("collab", f.Collab)

	c = c.Eq("volume", f.Volume).
		Eq("number", f.Number).
		Eq("suppl", f.Suppl).
		Eq("elocation_id", f.ElocationID).
		Eq("fpage", f.Fpage).
		Eq("fpage_seq", f.FpageSeq).
		Eq("lpage", f.Lpage)

	if surnames := f.Surnames(); surnames != "" {
		c = c.Eq("surnames", surnames)
	}

	if !f.HasDiscriminators() {
		c = c.Eq("partial_body", f.PartialBody)
	}

	c = c.Or("issns.value", issnValues(f))
	c = c.Or("doi_with_lang.value", doiValues(f))
	c = c.Or("article_titles.text", titleValues(f))

	return c
}

func (r *Resolver) issueCriteria(f facts.DocumentFacts, withV2 bool) store.Criteria {
	c := baseCriteria(f)
	if withV2 {
		c = c.Eq("v2", f.V2)
	}
	return c
}

// aopCriteria models resubmission of a document first registered as
// Ahead-Of-Print: issue-level scalars forced empty, pubYear dropped,
// list-value groups and surnames kept (spec §4.4).
func (r *Resolver) aopCriteria(f facts.DocumentFacts) store.Criteria {
	c := store.NewCriteria().
		Eq("collab", f.Collab).
		Eq("volume", "").
		Eq("number", "").
		Eq("suppl", "").
		Eq("elocation_id", "").
		Eq("fpage", "").
		Eq("fpage_seq", "").
		Eq("lpage", "")

	if surnames := f.Surnames(); surnames != "" {
		c = c.Eq("surnames", surnames)
	}
	if !f.HasDiscriminators() {
		c = c.Eq("partial_body", f.PartialBody)
	}

	c = c.Or("issns.value", issnValues(f))
	c = c.Or("doi_with_lang.value", doiValues(f))
	c = c.Or("article_titles.text", titleValues(f))

	return c
}

func issnValues(f facts.DocumentFacts) []string {
	var vals []string
	for _, i := range f.Issns {
		vals = append(vals, i.Value)
	}
	return vals
}

func doiValues(f facts.DocumentFacts) []string {
	var vals []string
	for _, d := range f.DoiWithLang {
		vals = append(vals, d.Value)
	}
	return vals
}

func titleValues(f facts.DocumentFacts) []string {
	var vals []string
	for _, t := range f.Titles {
		vals = append(vals, t.Text)
	}
	return vals
}

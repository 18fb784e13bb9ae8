package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/scieloorg/id-provider/internal/idp/facts"
	"github.com/scieloorg/id-provider/internal/idp/store"
	"github.com/scieloorg/id-provider/internal/idperrors"
)

func sampleFacts(t *testing.T) facts.DocumentFacts {
	t.Helper()
	f, err := facts.New(facts.Input{
		Issns:   []facts.Issn{{Type: facts.IssnEpub, Value: "1234-5678"}},
		PubYear: "2022",
		Authors: []facts.Author{{Surname: "Silva"}},
		Volume:  "10",
		Number:  "2",
		V2:      "S1234-56782022000200001",
	})
	if err != nil {
		t.Fatalf("facts.New() error = %v", err)
	}
	return f
}

func TestResolveRejectsDocumentWithNoDiscriminators(t *testing.T) {
	r := New(newMemStore())
	f, err := facts.New(facts.Input{
		Issns:   []facts.Issn{{Type: facts.IssnEpub, Value: "1234-5678"}},
		PubYear: "2022",
	})
	if err != nil {
		t.Fatalf("facts.New() error = %v", err)
	}

	_, err = r.Resolve(context.Background(), f)
	if !errors.Is(err, idperrors.ErrNotEnoughDiscriminators) {
		t.Fatalf("Resolve() error = %v, want ErrNotEnoughDiscriminators", err)
	}
}

func TestResolveAllowsPartialBodyAsFallbackDiscriminator(t *testing.T) {
	r := New(newMemStore())
	f, err := facts.New(facts.Input{
		Issns:       []facts.Issn{{Type: facts.IssnEpub, Value: "1234-5678"}},
		PubYear:     "2022",
		PartialBody: "some opening paragraph text",
	})
	if err != nil {
		t.Fatalf("facts.New() error = %v", err)
	}

	_, err = r.Resolve(context.Background(), f)
	if !errors.Is(err, idperrors.ErrNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrNotFound (no stored record yet)", err)
	}
}

func TestResolveReturnsNotFoundWhenNoneMatch(t *testing.T) {
	r := New(newMemStore())
	f := sampleFacts(t)

	_, err := r.Resolve(context.Background(), f)
	if !errors.Is(err, idperrors.ErrNotFound) {
		t.Fatalf("Resolve() error = %v, want ErrNotFound", err)
	}
}

func TestResolveHitsIssueV2Probe(t *testing.T) {
	s := newMemStore()
	f := sampleFacts(t)

	stored := s.put(store.DocumentRecord{
		V3:      "AAAAAAAAAAAAAAAAAAAAAAA",
		V2:      f.V2,
		PubYear: f.PubYear,
		Volume:  f.Volume,
		Number:  f.Number,
		Surnames: f.Surnames(),
		Issns:   f.Issns,
	})

	r := New(s)
	rec, err := r.Resolve(context.Background(), f)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if rec.V3 != stored.V3 {
		t.Errorf("V3 = %q, want %q", rec.V3, stored.V3)
	}
}

func TestResolveFallsBackToIssueOnlyProbeWhenNoV2Supplied(t *testing.T) {
	s := newMemStore()
	f := sampleFacts(t)
	f.V2 = ""

	stored := s.put(store.DocumentRecord{
		V3:       "BBBBBBBBBBBBBBBBBBBBBBB",
		V2:       "S9999999999999999999999",
		PubYear:  f.PubYear,
		Volume:   f.Volume,
		Number:   f.Number,
		Surnames: f.Surnames(),
		Issns:    f.Issns,
	})

	r := New(s)
	rec, err := r.Resolve(context.Background(), f)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if rec.V3 != stored.V3 {
		t.Errorf("V3 = %q, want %q (issue-only probe should have matched)", rec.V3, stored.V3)
	}
}

func TestResolveHitsAopProbeForResubmittedDocument(t *testing.T) {
	s := newMemStore()

	f := sampleFacts(t)
	f.Volume, f.Number, f.Suppl = "", "", ""

	stored := s.put(store.DocumentRecord{
		V3:       "CCCCCCCCCCCCCCCCCCCCCCC",
		Surnames: f.Surnames(),
		Issns:    f.Issns,
	})

	r := New(s)
	rec, err := r.Resolve(context.Background(), f)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if rec.V3 != stored.V3 {
		t.Errorf("V3 = %q, want %q (aop probe should have matched)", rec.V3, stored.V3)
	}
}

// refetchingStore wraps a memStore but returns a stale error from
// FindByV3 so Resolve's freshness re-fetch failure path is exercised.
type refetchingStore struct {
	*memStore
	failFindByV3 bool
}

func (s *refetchingStore) FindByV3(ctx context.Context, v3 string) (store.DocumentRecord, error) {
	if s.failFindByV3 {
		return store.DocumentRecord{}, errors.New("boom")
	}
	return s.memStore.FindByV3(ctx, v3)
}

func TestResolveWrapsFreshnessRefetchFailure(t *testing.T) {
	inner := newMemStore()
	f := sampleFacts(t)
	inner.put(store.DocumentRecord{
		V3:       "DDDDDDDDDDDDDDDDDDDDDDD",
		V2:       f.V2,
		PubYear:  f.PubYear,
		Volume:   f.Volume,
		Number:   f.Number,
		Surnames: f.Surnames(),
		Issns:    f.Issns,
	})

	s := &refetchingStore{memStore: inner, failFindByV3: true}
	r := New(s)

	_, err := r.Resolve(context.Background(), f)
	if !errors.Is(err, idperrors.FetchFailed) {
		t.Fatalf("Resolve() error = %v, want FetchFailed", err)
	}
}

// failingMatchStore fails FindMatching calls, to exercise the
// QueryInIssueFailed / QueryAsAopFailed wrapping. With aopOnly set it
// fails only the AOP probe, the one probe whose criteria carry no
// pub_year constraint.
type failingMatchStore struct {
	*memStore
	aopOnly bool
}

func (s *failingMatchStore) FindMatching(ctx context.Context, c store.Criteria, opts store.FindOptions) ([]store.DocumentRecord, error) {
	if _, hasYear := c.Equals["pub_year"]; s.aopOnly && hasYear {
		return s.memStore.FindMatching(ctx, c, opts)
	}
	return nil, errors.New("query exploded")
}

func TestResolveWrapsIssueProbeFailure(t *testing.T) {
	s := &failingMatchStore{memStore: newMemStore()}
	r := New(s)
	f := sampleFacts(t)

	_, err := r.Resolve(context.Background(), f)
	if !errors.Is(err, idperrors.QueryInIssueFailed) {
		t.Fatalf("Resolve() error = %v, want QueryInIssueFailed", err)
	}
}

func TestResolveWrapsAopProbeFailureWhenIssueProbesSkippedOrMiss(t *testing.T) {
	s := &failingMatchStore{memStore: newMemStore(), aopOnly: true}
	r := New(s)
	f := sampleFacts(t)
	f.V2 = "" // issue+v2 probe skipped, issue-only probe misses, aop probe hits the failing store

	_, err := r.Resolve(context.Background(), f)
	if !errors.Is(err, idperrors.QueryAsAopFailed) {
		t.Fatalf("Resolve() error = %v, want QueryAsAopFailed", err)
	}
}

func TestMemStoreOrdersByMostRecentlyUpdated(t *testing.T) {
	s := newMemStore()
	f := sampleFacts(t)

	older := s.put(store.DocumentRecord{
		V3:       "EEEEEEEEEEEEEEEEEEEEEEE",
		V2:       f.V2,
		PubYear:  f.PubYear,
		Volume:   f.Volume,
		Number:   f.Number,
		Surnames: f.Surnames(),
		Issns:    f.Issns,
	})

	newer := s.put(store.DocumentRecord{
		V3:       "FFFFFFFFFFFFFFFFFFFFFFF",
		V2:       f.V2,
		PubYear:  f.PubYear,
		Volume:   f.Volume,
		Number:   f.Number,
		Surnames: f.Surnames(),
		Issns:    f.Issns,
	})

	r := New(s)
	rec, err := r.Resolve(context.Background(), f)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if rec.V3 != newer.V3 {
		t.Errorf("V3 = %q, want most recently updated %q", rec.V3, newer.V3)
	}
	if !rec.Updated.After(older.Updated) {
		t.Errorf("Updated = %v, want after %v", rec.Updated, older.Updated)
	}
}

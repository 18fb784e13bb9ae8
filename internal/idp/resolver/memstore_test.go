package resolver

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/scieloorg/id-provider/internal/idp/store"
)

// memStore is a minimal in-memory store.Store used to exercise the
// Resolver without a database, in the teacher's fake-repository style.
type memStore struct {
	mu      sync.Mutex
	records map[string]store.DocumentRecord // keyed by v3
	clock   time.Time
}

func newMemStore() *memStore {
	return &memStore{records: map[string]store.DocumentRecord{}, clock: time.Now()}
}

func (m *memStore) put(rec store.DocumentRecord) store.DocumentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock = m.clock.Add(time.Second)
	rec.Updated = m.clock
	if rec.Created.IsZero() {
		rec.Created = rec.Updated
	}
	m.records[rec.V3] = rec
	return rec
}

func (m *memStore) FindMatching(ctx context.Context, c store.Criteria, opts store.FindOptions) ([]store.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matches []store.DocumentRecord
	for _, rec := range m.records {
		if matchesCriteria(rec, c) {
			matches = append(matches, rec)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Updated.After(matches[j].Updated) })
	if opts.PageSize > 0 && len(matches) > opts.PageSize {
		matches = matches[:opts.PageSize]
	}
	return matches, nil
}

func matchesCriteria(rec store.DocumentRecord, c store.Criteria) bool {
	for field, val := range c.Equals {
		if scalar(rec, field) != val {
			return false
		}
	}
	for _, group := range c.OrGroups {
		if !matchesOrGroup(rec, group) {
			return false
		}
	}
	return true
}

func scalar(rec store.DocumentRecord, field string) string {
	switch field {
	case "v2":
		return rec.V2
	case "pub_year":
		return rec.PubYear
	case "collab":
		return rec.Collab
	case "surnames":
		return rec.Surnames
	case "volume":
		return rec.Volume
	case "number":
		return rec.Number
	case "suppl":
		return rec.Suppl
	case "elocation_id":
		return rec.ElocationID
	case "fpage":
		return rec.Fpage
	case "fpage_seq":
		return rec.FpageSeq
	case "lpage":
		return rec.Lpage
	case "partial_body":
		return rec.PartialBody
	}
	return ""
}

func matchesOrGroup(rec store.DocumentRecord, g store.OrGroup) bool {
	if len(g.Values) == 0 {
		return true
	}
	var haystack []string
	switch g.Field {
	case "issns.value":
		for _, i := range rec.Issns {
			haystack = append(haystack, i.Value)
		}
	case "doi_with_lang.value":
		for _, d := range rec.DoiWithLang {
			haystack = append(haystack, d.Value)
		}
	case "article_titles.text":
		for _, t := range rec.Titles {
			haystack = append(haystack, t.Text)
		}
	}
	if len(haystack) == 0 {
		// Nothing to match against on the record: a non-empty group
		// excludes it, as the Postgres EXISTS subquery does. (Or never
		// adds a group for an input with no values in this field.)
		return len(g.Values) == 0
	}
	for _, want := range g.Values {
		for _, have := range haystack {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

func (m *memStore) FindByV3(ctx context.Context, v3 string) (store.DocumentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[v3]
	if !ok {
		return store.DocumentRecord{}, store.ErrRecordNotFound
	}
	return rec, nil
}

func (m *memStore) ExistsV2(ctx context.Context, v2 string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.V2 == v2 {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ExistsV3(ctx context.Context, v3 string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.records[v3]
	return ok, nil
}

func (m *memStore) Upsert(ctx context.Context, rec store.DocumentRecord) (store.DocumentRecord, error) {
	return m.put(rec), nil
}

func (m *memStore) LogRequest(ctx context.Context, req store.Request) (store.Request, error) {
	req.Created = time.Now()
	req.Updated = req.Created
	return req, nil
}

func (m *memStore) UpdateRequest(ctx context.Context, req store.Request) error {
	return nil
}

package pipeline

import (
	"context"
	"sync"

	"github.com/scieloorg/id-provider/internal/idp/store"
)

// memStore is a minimal in-memory store.Store, just enough for the
// Pipeline's own calls (Upsert/LogRequest/UpdateRequest/ExistsV2/
// ExistsV3); FindMatching is never reached because the Pipeline talks
// to the Resolver interface, not the Store, for dedup lookups.
type memStore struct {
	mu      sync.Mutex
	records map[string]store.DocumentRecord
	nextReq int64
}

func newMemStore() *memStore {
	return &memStore{records: map[string]store.DocumentRecord{}}
}

func (m *memStore) FindMatching(ctx context.Context, c store.Criteria, opts store.FindOptions) ([]store.DocumentRecord, error) {
	return nil, nil
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
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.V3] = rec
	return rec, nil
}

func (m *memStore) LogRequest(ctx context.Context, req store.Request) (store.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextReq++
	req.ID = m.nextReq
	return req, nil
}

func (m *memStore) UpdateRequest(ctx context.Context, req store.Request) error {
	return nil
}

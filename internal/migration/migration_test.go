package migration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/scieloorg/id-provider/internal/idp/allocator"
	"github.com/scieloorg/id-provider/internal/idp/facts"
	"github.com/scieloorg/id-provider/internal/idp/pipeline"
	"github.com/scieloorg/id-provider/internal/idp/store"
	"github.com/scieloorg/id-provider/internal/idp/xmladapter"
	"github.com/scieloorg/id-provider/internal/idperrors"
	"github.com/scieloorg/id-provider/internal/queue"
	"github.com/scieloorg/id-provider/internal/source"
)

// memStore is an in-memory migration.Store fake, teacher-style.
type memStore struct {
	mu   sync.Mutex
	rows map[string]Row
}

func newMemStore() *memStore { return &memStore{rows: map[string]Row{}} }

func (m *memStore) FindByV2(ctx context.Context, v2 string) (Row, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[v2]
	return row, ok, nil
}

func (m *memStore) Save(ctx context.Context, row Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[row.V2] = row
	return nil
}

func (m *memStore) FindByStatus(ctx context.Context, issn string, isAop bool, status Status, page, pageSize int) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matches []Row
	for _, r := range m.rows {
		if r.Issn == issn && r.IsAop == isAop && r.Status == status {
			matches = append(matches, r)
		}
	}
	start := (page - 1) * pageSize
	if start >= len(matches) {
		return nil, nil
	}
	end := start + pageSize
	if end > len(matches) {
		end = len(matches)
	}
	return matches[start:end], nil
}

// fakeFetcher always returns a fixed payload (or nothing, or an error).
type fakeFetcher struct {
	xml []byte
	err error
}

func (f *fakeFetcher) Fetch(ctx context.Context, v2, filePath string) ([]byte, error) {
	return f.xml, f.err
}

const sampleXML = `<article><front><journal-meta><issn pub-type="epub">1234-5678</issn></journal-meta>` +
	`<article-meta><pub-date><year>2022</year></pub-date><contrib-group>` +
	`<contrib><name><surname>Silva</surname></name></contrib></contrib-group>` +
	`</article-meta></front><body><p>Opening paragraph.</p></body></article>`

// idpStore is an in-memory idp/store.Store fake sufficient for the
// Pipeline's own calls.
type idpStore struct {
	mu      sync.Mutex
	records map[string]store.DocumentRecord
}

func newIdpStore() *idpStore { return &idpStore{records: map[string]store.DocumentRecord{}} }

func (s *idpStore) FindMatching(ctx context.Context, c store.Criteria, opts store.FindOptions) ([]store.DocumentRecord, error) {
	return nil, nil
}
func (s *idpStore) FindByV3(ctx context.Context, v3 string) (store.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[v3]
	if !ok {
		return store.DocumentRecord{}, store.ErrRecordNotFound
	}
	return rec, nil
}
func (s *idpStore) ExistsV2(ctx context.Context, v2 string) (bool, error) { return false, nil }
func (s *idpStore) ExistsV3(ctx context.Context, v3 string) (bool, error) { return false, nil }
func (s *idpStore) Upsert(ctx context.Context, rec store.DocumentRecord) (store.DocumentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.V3] = rec
	return rec, nil
}
func (s *idpStore) LogRequest(ctx context.Context, req store.Request) (store.Request, error) {
	return req, nil
}
func (s *idpStore) UpdateRequest(ctx context.Context, req store.Request) error { return nil }

// alwaysNotFoundResolver reports every document as unregistered, so
// PullAndRequestId always takes the fresh-allocation path.
type alwaysNotFoundResolver struct{}

func (alwaysNotFoundResolver) Resolve(ctx context.Context, f facts.DocumentFacts) (store.DocumentRecord, error) {
	return store.DocumentRecord{}, idperrors.ErrNotFound
}

func newTestPipeline() *pipeline.Pipeline {
	s := newIdpStore()
	a := allocator.New(s, 0)
	return pipeline.New(alwaysNotFoundResolver{}, a, xmladapter.RewriteIds, s, 0)
}

func TestRegisterMigrationSeedsNewRow(t *testing.T) {
	st := newMemStore()
	o := New(st, nil, newTestPipeline())

	err := o.RegisterMigration(context.Background(), Descriptor{V2: "S0001", Issn: "1234-5678", Year: "2022"}, false)
	if err != nil {
		t.Fatalf("RegisterMigration() error = %v", err)
	}

	row, found, err := st.FindByV2(context.Background(), "S0001")
	if err != nil || !found {
		t.Fatalf("FindByV2() = %v, %v, %v", row, found, err)
	}
	if row.Status != StatusCreated {
		t.Errorf("Status = %v, want CREATED", row.Status)
	}
}

func TestRegisterMigrationSkipsUpdateWhenRequested(t *testing.T) {
	st := newMemStore()
	o := New(st, nil, newTestPipeline())
	ctx := context.Background()

	if err := o.RegisterMigration(ctx, Descriptor{V2: "S0001", Year: "2020"}, false); err != nil {
		t.Fatalf("first RegisterMigration() error = %v", err)
	}
	st.rows["S0001"] = Row{V2: "S0001", Year: "2020", Status: StatusMigrated}

	if err := o.RegisterMigration(ctx, Descriptor{V2: "S0001", Year: "2099"}, true); err != nil {
		t.Fatalf("second RegisterMigration() error = %v", err)
	}

	row, _, _ := st.FindByV2(ctx, "S0001")
	if row.Year != "2020" || row.Status != StatusMigrated {
		t.Errorf("row was overwritten despite skipUpdate: %+v", row)
	}
}

func TestPullAndRequestIdTriesSourcesInOrder(t *testing.T) {
	st := newMemStore()
	sources := []source.Named{
		{Name: source.Website, Fetcher: &fakeFetcher{xml: nil}},
		{Name: source.Filesystem, Fetcher: &fakeFetcher{xml: []byte(sampleXML)}},
		{Name: source.ArticleMeta, Fetcher: &fakeFetcher{xml: []byte("should not be reached")}},
	}
	o := New(st, sources, newTestPipeline())

	row := Row{V2: "S0001", Issn: "1234-5678", Year: "2022", Status: StatusCreated}
	out, err := o.PullAndRequestId(context.Background(), row)
	if err != nil {
		t.Fatalf("PullAndRequestId() error = %v", err)
	}
	if out.Status != StatusMigrated {
		t.Errorf("Status = %v, want MIGRATED", out.Status)
	}
	if out.Source != source.Filesystem {
		t.Errorf("Source = %v, want filesystem (the first source with xml)", out.Source)
	}
	if out.V3 == "" {
		t.Error("expected a v3 to be allocated")
	}
}

func TestPullAndRequestIdFailsRowWhenNoSourceHasXML(t *testing.T) {
	st := newMemStore()
	sources := []source.Named{
		{Name: source.Website, Fetcher: &fakeFetcher{xml: nil}},
		{Name: source.Filesystem, Fetcher: &fakeFetcher{xml: nil}},
		{Name: source.ArticleMeta, Fetcher: &fakeFetcher{xml: nil}},
	}
	o := New(st, sources, newTestPipeline())

	row := Row{V2: "S0002", Status: StatusCreated}
	out, err := o.PullAndRequestId(context.Background(), row)
	if err == nil {
		t.Fatal("expected an error when no source has xml")
	}
	if out.Status != StatusFailed {
		t.Errorf("Status = %v, want FAILED", out.Status)
	}
}

func TestPullAndRequestIdFailsRowOnFetchError(t *testing.T) {
	st := newMemStore()
	sources := []source.Named{
		{Name: source.Website, Fetcher: &fakeFetcher{err: errors.New("connection refused")}},
	}
	o := New(st, sources, newTestPipeline())

	row := Row{V2: "S0003", Status: StatusCreated}
	out, err := o.PullAndRequestId(context.Background(), row)
	if err == nil {
		t.Fatal("expected an error when the source fetch fails")
	}
	if out.Status != StatusFailed {
		t.Errorf("Status = %v, want FAILED", out.Status)
	}
}

func TestRequestIdForRowMigratesWithoutRepulling(t *testing.T) {
	st := newMemStore()
	o := New(st, nil, newTestPipeline())

	row := Row{V2: "S0010", XML: []byte(sampleXML), Status: StatusXML}
	out, err := o.RequestIdForRow(context.Background(), row)
	if err != nil {
		t.Fatalf("RequestIdForRow() error = %v", err)
	}
	if out.Status != StatusMigrated {
		t.Errorf("Status = %v, want MIGRATED", out.Status)
	}
	if out.V3 == "" {
		t.Error("expected a v3 to be allocated")
	}

	saved, found, err := st.FindByV2(context.Background(), "S0010")
	if err != nil || !found {
		t.Fatalf("FindByV2() = %v, %v, %v", saved, found, err)
	}
	if saved.Status != StatusMigrated {
		t.Errorf("saved row status = %v, want MIGRATED", saved.Status)
	}
}

func TestRequestIdForRowFailsRowOnInvalidXML(t *testing.T) {
	st := newMemStore()
	o := New(st, nil, newTestPipeline())

	row := Row{V2: "S0011", XML: []byte("not xml"), Status: StatusXML}
	out, err := o.RequestIdForRow(context.Background(), row)
	if err == nil {
		t.Fatal("expected an error for invalid XML")
	}
	if out.Status != StatusFailed {
		t.Errorf("Status = %v, want FAILED", out.Status)
	}
}

func TestUndoIdRequestRevertsToXMLStatus(t *testing.T) {
	st := newMemStore()
	o := New(st, nil, newTestPipeline())

	row := Row{V2: "S0004", Status: StatusMigrated}
	out, err := o.UndoIdRequest(context.Background(), []byte(sampleXML), row)
	if err != nil {
		t.Fatalf("UndoIdRequest() error = %v", err)
	}
	if out.Status != StatusXML {
		t.Errorf("Status = %v, want XML", out.Status)
	}
	if out.StatusMsg != "id request undone" {
		t.Errorf("StatusMsg = %q, want %q", out.StatusMsg, "id request undone")
	}
}

func TestEnumeratePagesUntilEmpty(t *testing.T) {
	st := newMemStore()
	for i := 0; i < 5; i++ {
		v2 := "S000" + string(rune('0'+i))
		st.rows[v2] = Row{V2: v2, Issn: "1234-5678", IsAop: false, Status: StatusCreated}
	}
	o := New(st, nil, newTestPipeline())
	o.pageSz = 2

	var seen int
	err := o.Enumerate(context.Background(), "1234-5678", false, StatusCreated, func(rows []Row) bool {
		seen += len(rows)
		return true
	})
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if seen != 5 {
		t.Errorf("seen = %d, want 5", seen)
	}
}

func TestEnumerateStopsWhenYieldReturnsFalse(t *testing.T) {
	st := newMemStore()
	for i := 0; i < 5; i++ {
		v2 := "S000" + string(rune('0'+i))
		st.rows[v2] = Row{V2: v2, Issn: "1234-5678", Status: StatusCreated}
	}
	o := New(st, nil, newTestPipeline())
	o.pageSz = 2

	var calls int
	err := o.Enumerate(context.Background(), "1234-5678", false, StatusCreated, func(rows []Row) bool {
		calls++
		return false
	})
	if err != nil {
		t.Fatalf("Enumerate() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (yield returned false)", calls)
	}
}

func TestPingStageRoundTripsThroughWorkerPool(t *testing.T) {
	q := queue.NewWorkerPool(1)
	defer q.StopWait()

	got, err := PingStage(context.Background(), q, "pong")
	if err != nil {
		t.Fatalf("PingStage() error = %v", err)
	}
	if got != "pong" {
		t.Errorf("PingStage() = %q, want %q", got, "pong")
	}
}

// Package postgres provides the pgx-backed implementations of the
// Document Store (internal/idp/store.Store) and the Migration Store
// (internal/migration.Store), grounded on the teacher's
// internal/repository/postgres package: RepositoryConfig, TableNames,
// GetExecutor, the Is*Error helpers, and TransactionManager, adapted
// from the docsystem domain to this one (spec §4.3, §4.6).
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scieloorg/id-provider/internal/idp/store"
	"github.com/scieloorg/id-provider/internal/idperrors"
)

// DocumentStore is the pgx-backed store.Store implementation, scoped
// to the id-provider database.
type DocumentStore struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewDocumentStore returns a store.Store backed by config.
func NewDocumentStore(config *RepositoryConfig) *DocumentStore {
	return &DocumentStore{pool: config.Pool, tables: config.Tables}
}

// db resolves the executor for ctx — the ambient transaction set by
// TransactionManager.ExecTx if present, otherwise the pool directly.
func (s *DocumentStore) db(ctx context.Context) DBTX {
	return GetExecutor(ctx, s.pool)
}

func marshalJSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal jsonb: %w", err)
	}
	return b, nil
}

func unmarshalJSON[T any](raw []byte, out *T) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("unmarshal jsonb: %w", err)
	}
	return nil
}

var _ store.Store = (*DocumentStore)(nil)

const documentColumns = `id, v2, v3, aop_pid, issns, pub_year, doi_with_lang, authors, collab,
	titles, volume, number, suppl, elocation_id, fpage, fpage_seq, lpage,
	partial_body, surnames, xml, zip_path, extra, created_at, updated_at`

func (s *DocumentStore) FindMatching(ctx context.Context, c store.Criteria, opts store.FindOptions) ([]store.DocumentRecord, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = store.DefaultPageSize
	}
	offset := (page - 1) * pageSize

	where, args := buildWhere(c, 1)
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE %s
		ORDER BY updated_at DESC
		LIMIT $%d OFFSET $%d
	`, documentColumns, s.tables.DocumentRecords, where, len(args)+1, len(args)+2)
	args = append(args, pageSize, offset)

	rows, err := s.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: find matching: %v", idperrors.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []store.DocumentRecord
	for rows.Next() {
		rec, err := scanDocumentRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan: %v", idperrors.ErrStoreUnavailable, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate: %v", idperrors.ErrStoreUnavailable, err)
	}
	return out, nil
}

func (s *DocumentStore) FindByV3(ctx context.Context, v3 string) (store.DocumentRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE v3 = $1`, documentColumns, s.tables.DocumentRecords)

	row := s.db(ctx).QueryRow(ctx, query, v3)
	rec, err := scanDocumentRecord(row)
	if err != nil {
		if IsPgNoRowsError(err) {
			return store.DocumentRecord{}, store.ErrRecordNotFound
		}
		return store.DocumentRecord{}, fmt.Errorf("%w: find by v3: %v", idperrors.ErrStoreUnavailable, err)
	}
	return rec, nil
}

func (s *DocumentStore) ExistsV2(ctx context.Context, v2 string) (bool, error) {
	return s.exists(ctx, "v2", v2)
}

func (s *DocumentStore) ExistsV3(ctx context.Context, v3 string) (bool, error) {
	return s.exists(ctx, "v3", v3)
}

func (s *DocumentStore) exists(ctx context.Context, column, value string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE %s = $1)`, s.tables.DocumentRecords, column)
	var exists bool
	if err := s.db(ctx).QueryRow(ctx, query, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: exists %s: %v", idperrors.ErrStoreUnavailable, column, err)
	}
	return exists, nil
}

func (s *DocumentStore) Upsert(ctx context.Context, rec store.DocumentRecord) (store.DocumentRecord, error) {
	issns, err := marshalJSON(rec.Issns)
	if err != nil {
		return store.DocumentRecord{}, err
	}
	doiWithLang, err := marshalJSON(rec.DoiWithLang)
	if err != nil {
		return store.DocumentRecord{}, err
	}
	authors, err := marshalJSON(rec.Authors)
	if err != nil {
		return store.DocumentRecord{}, err
	}
	titles, err := marshalJSON(rec.Titles)
	if err != nil {
		return store.DocumentRecord{}, err
	}
	extra, err := marshalJSON(rec.Extra)
	if err != nil {
		return store.DocumentRecord{}, err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (v2, v3, aop_pid, issns, pub_year, doi_with_lang, authors, collab,
		                 titles, volume, number, suppl, elocation_id, fpage, fpage_seq, lpage,
		                 partial_body, surnames, xml, zip_path, extra, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21, now(), now())
		ON CONFLICT (v3) DO UPDATE SET
		  v2 = EXCLUDED.v2, aop_pid = EXCLUDED.aop_pid, issns = EXCLUDED.issns,
		  pub_year = EXCLUDED.pub_year, doi_with_lang = EXCLUDED.doi_with_lang,
		  authors = EXCLUDED.authors, collab = EXCLUDED.collab, titles = EXCLUDED.titles,
		  volume = EXCLUDED.volume, number = EXCLUDED.number, suppl = EXCLUDED.suppl,
		  elocation_id = EXCLUDED.elocation_id, fpage = EXCLUDED.fpage, fpage_seq = EXCLUDED.fpage_seq,
		  lpage = EXCLUDED.lpage, partial_body = EXCLUDED.partial_body, surnames = EXCLUDED.surnames,
		  xml = EXCLUDED.xml, zip_path = EXCLUDED.zip_path, extra = EXCLUDED.extra, updated_at = now()
		RETURNING id, created_at, updated_at
	`, s.tables.DocumentRecords)

	row := s.db(ctx).QueryRow(ctx, query,
		rec.V2, rec.V3, rec.AopPid, issns, rec.PubYear, doiWithLang, authors, rec.Collab,
		titles, rec.Volume, rec.Number, rec.Suppl, rec.ElocationID, rec.Fpage, rec.FpageSeq, rec.Lpage,
		rec.PartialBody, rec.Surnames, rec.XML, rec.ZipPath, extra,
	)
	if err := row.Scan(&rec.ObjectID, &rec.Created, &rec.Updated); err != nil {
		if IsPgDuplicateError(err) {
			return store.DocumentRecord{}, &idperrors.ConflictError{Field: "v2", Value: rec.V2}
		}
		return store.DocumentRecord{}, fmt.Errorf("%w: upsert: %v", idperrors.ErrSaving, err)
	}
	return rec, nil
}

func (s *DocumentStore) LogRequest(ctx context.Context, req store.Request) (store.Request, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_label, in_v2, in_v3, in_aop_pid, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5, now(), now())
		RETURNING id, created_at, updated_at
	`, s.tables.Requests)

	row := s.db(ctx).QueryRow(ctx, query, req.User, req.InV2, req.InV3, req.InAopPid, req.Status)
	if err := row.Scan(&req.ID, &req.Created, &req.Updated); err != nil {
		return store.Request{}, fmt.Errorf("%w: log request: %v", idperrors.ErrStoreUnavailable, err)
	}
	return req, nil
}

func (s *DocumentStore) UpdateRequest(ctx context.Context, req store.Request) error {
	query := fmt.Sprintf(`
		UPDATE %s SET out_v2 = $1, out_v3 = $2, out_aop_pid = $3, status = $4, diffs = $5, updated_at = now()
		WHERE id = $6
	`, s.tables.Requests)

	_, err := s.db(ctx).Exec(ctx, query, req.OutV2, req.OutV3, req.OutAopPid, req.Status, req.Diffs, req.ID)
	if err != nil {
		return fmt.Errorf("%w: update request: %v", idperrors.ErrStoreUnavailable, err)
	}
	return nil
}

// scanner is the subset of pgx.Row/pgx.Rows Scan needs.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDocumentRecord(r scanner) (store.DocumentRecord, error) {
	var rec store.DocumentRecord
	var issns, doiWithLang, authors, titles, extra []byte

	err := r.Scan(
		&rec.ObjectID, &rec.V2, &rec.V3, &rec.AopPid, &issns, &rec.PubYear, &doiWithLang, &authors, &rec.Collab,
		&titles, &rec.Volume, &rec.Number, &rec.Suppl, &rec.ElocationID, &rec.Fpage, &rec.FpageSeq, &rec.Lpage,
		&rec.PartialBody, &rec.Surnames, &rec.XML, &rec.ZipPath, &extra, &rec.Created, &rec.Updated,
	)
	if err != nil {
		return store.DocumentRecord{}, err
	}

	if err := unmarshalJSON(issns, &rec.Issns); err != nil {
		return store.DocumentRecord{}, err
	}
	if err := unmarshalJSON(doiWithLang, &rec.DoiWithLang); err != nil {
		return store.DocumentRecord{}, err
	}
	if err := unmarshalJSON(authors, &rec.Authors); err != nil {
		return store.DocumentRecord{}, err
	}
	if err := unmarshalJSON(titles, &rec.Titles); err != nil {
		return store.DocumentRecord{}, err
	}
	if err := unmarshalJSON(extra, &rec.Extra); err != nil {
		return store.DocumentRecord{}, err
	}
	return rec, nil
}

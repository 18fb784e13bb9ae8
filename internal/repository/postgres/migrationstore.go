package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scieloorg/id-provider/internal/migration"
	"github.com/scieloorg/id-provider/internal/source"
)

// MigrationStore is the pgx-backed migration.Store implementation,
// scoped to the website/migration database (spec §3, §4.6: the two
// databases are independent, joined only by the v2 key).
type MigrationStore struct {
	pool   *pgxpool.Pool
	tables *TableNames
}

// NewMigrationStore returns a migration.Store backed by config.
func NewMigrationStore(config *RepositoryConfig) *MigrationStore {
	return &MigrationStore{pool: config.Pool, tables: config.Tables}
}

func (s *MigrationStore) db(ctx context.Context) DBTX {
	return GetExecutor(ctx, s.pool)
}

var _ migration.Store = (*MigrationStore)(nil)

const migrationColumns = `v2, aop_pid, is_aop, file_path, issn, year, ord, v91, v93, v3,
	xml, source, status, status_msg, created_at, updated_at`

func (s *MigrationStore) FindByV2(ctx context.Context, v2 string) (migration.Row, bool, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE v2 = $1`, migrationColumns, s.tables.Migrations)

	row := s.db(ctx).QueryRow(ctx, query, v2)
	r, err := scanMigrationRow(row)
	if err != nil {
		if IsPgNoRowsError(err) {
			return migration.Row{}, false, nil
		}
		return migration.Row{}, false, fmt.Errorf("find migration by v2: %w", err)
	}
	return r, true, nil
}

func (s *MigrationStore) Save(ctx context.Context, row migration.Row) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (v2, aop_pid, is_aop, file_path, issn, year, ord, v91, v93, v3,
		                 xml, source, status, status_msg, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14, now(), now())
		ON CONFLICT (v2) DO UPDATE SET
		  aop_pid = EXCLUDED.aop_pid, is_aop = EXCLUDED.is_aop, file_path = EXCLUDED.file_path,
		  issn = EXCLUDED.issn, year = EXCLUDED.year, ord = EXCLUDED.ord,
		  v91 = EXCLUDED.v91, v93 = EXCLUDED.v93, v3 = EXCLUDED.v3,
		  xml = EXCLUDED.xml, source = EXCLUDED.source, status = EXCLUDED.status,
		  status_msg = EXCLUDED.status_msg, updated_at = now()
	`, s.tables.Migrations)

	_, err := s.db(ctx).Exec(ctx, query,
		row.V2, row.AopPid, row.IsAop, row.FilePath, row.Issn, row.Year, row.Order, row.V91, row.V93, row.V3,
		row.XML, string(row.Source), string(row.Status), row.StatusMsg,
	)
	if err != nil {
		return fmt.Errorf("save migration row: %w", err)
	}
	return nil
}

func (s *MigrationStore) FindByStatus(ctx context.Context, issn string, isAop bool, status migration.Status, page, pageSize int) ([]migration.Row, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE issn = $1 AND is_aop = $2 AND status = $3
		ORDER BY created_at ASC
		LIMIT $4 OFFSET $5
	`, migrationColumns, s.tables.Migrations)

	rows, err := s.db(ctx).Query(ctx, query, issn, isAop, string(status), pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("find migrations by status: %w", err)
	}
	defer rows.Close()

	var out []migration.Row
	for rows.Next() {
		r, err := scanMigrationRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migrations: %w", err)
	}
	return out, nil
}

func scanMigrationRow(r scanner) (migration.Row, error) {
	var row migration.Row
	var src, status string

	err := r.Scan(
		&row.V2, &row.AopPid, &row.IsAop, &row.FilePath, &row.Issn, &row.Year, &row.Order, &row.V91, &row.V93, &row.V3,
		&row.XML, &src, &status, &row.StatusMsg, &row.Created, &row.Updated,
	)
	if err != nil {
		return migration.Row{}, err
	}
	row.Source = source.Name(src)
	row.Status = migration.Status(status)
	return row, nil
}

package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryConfig holds configuration shared by every repository built
// on one logical database (spec §3/§4.3: the id-provider database and
// the website/migration database are two independent
// RepositoryConfig values wired at the composition root).
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names, so one binary can
// serve dev_/test_/prod_ schemas against the same database (spec §4.3).
type TableNames struct {
	DocumentRecords string
	Requests        string
	Migrations      string
}

// NewTableNames creates table names with the given prefix.
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		DocumentRecords: fmt.Sprintf("%sdocument_records", prefix),
		Requests:        fmt.Sprintf("%srequests", prefix),
		Migrations:      fmt.Sprintf("%smigrations", prefix),
	}
}

// CreateConnectionPool creates a new pgx connection pool, retried on
// connect failure with exponential backoff up to ten attempts (spec
// §5). Query-exec mode auto-detection for PgBouncer's transaction
// pooler (port 6543) is carried from the teacher's connection layer,
// since this repo's schema has the same map[string]interface{}-free
// JSONB profile that made CacheDescribe the safe default there.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	var pool *pgxpool.Pool
	connect := func() error {
		p, err := pgxpool.NewWithConfig(ctx, config)
		if err != nil {
			return fmt.Errorf("create connection pool: %w", err)
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return fmt.Errorf("ping database: %w", err)
		}
		pool = p
		return nil
	}

	// One initial attempt plus nine retries: ten attempts in all.
	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 9)
	if err := backoff.Retry(connect, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("connect after retries: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the transaction in ctx if one was set via SetTx,
// otherwise the pool — letting repository methods participate in a
// surrounding transaction transparently.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) DBTX {
	if tx := GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}

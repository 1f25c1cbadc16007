// Package database is the scheduler's persistent store: the index_files and
// failed_imports tables, on sqlite or postgres.
package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite"

	"github.com/jdholdren/satelit/internal/satelit"
)

// Ensure Store implements the Transactor interface
var _ satelit.Transactor = Store{}

// Config describes how to reach the database.
type Config struct {
	// Either a postgres:// URL, or a sqlite file path optionally prefixed with "sqlite:".
	URL               string
	MaxConnections    int
	ConnectionTimeout time.Duration
}

// Open connects to the database, waiting up to ConnectionTimeout for it to answer.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	driver, dsn := dataSource(cfg.URL)

	dbx, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %s", err)
	}
	if cfg.MaxConnections > 0 {
		dbx.SetMaxOpenConns(cfg.MaxConnections)
	}

	timeout := cfg.ConnectionTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	b := retry.WithMaxDuration(timeout, retry.NewFibonacci(100*time.Millisecond))
	if err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := dbx.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		dbx.Close()
		return nil, fmt.Errorf("error reaching database: %w", err)
	}

	return dbx, nil
}

func dataSource(url string) (driver, dsn string) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return "pgx", url
	}

	path := strings.TrimPrefix(url, "sqlite:")
	return "sqlite", fmt.Sprintf("%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
}

// Store hands out the repositories, either on the pool or inside a transaction.
type Store struct {
	db      *sqlx.DB
	builder sq.StatementBuilderType
	now     func() time.Time
}

func New(db *sqlx.DB) Store {
	builder := sq.StatementBuilder
	if db.DriverName() == "pgx" {
		builder = builder.PlaceholderFormat(sq.Dollar)
	}

	return Store{
		db:      db,
		builder: builder,
		now:     now,
	}
}

// Timestamps are written by the store rather than defaulted by the database so
// that both dialects order them the same way.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (s Store) IndexFiles() IndexFiles {
	return IndexFiles{repo: s.repo(s.db)}
}

func (s Store) FailedImports() FailedImports {
	return FailedImports{repo: s.repo(s.db)}
}

// Ping reports whether the database is reachable.
func (s Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InTx implements [satelit.Transactor].
func (s Store) InTx(ctx context.Context, fn func(ctx context.Context, indexes satelit.IndexFileRepo, failed satelit.FailedImportRepo) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}

	r := s.repo(tx)
	if err := fn(ctx, IndexFiles{repo: r}, FailedImports{repo: r}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("error rolling back (%s) after: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

func (s Store) repo(ext sqlx.ExtContext) repo {
	return repo{
		ext:     ext,
		builder: s.builder,
		now:     s.now,
	}
}

// repo is the shared plumbing of both repositories: something to run queries on,
// either the pool or a transaction.
type repo struct {
	ext     sqlx.ExtContext
	builder sq.StatementBuilderType
	now     func() time.Time
}

func (r repo) get(ctx context.Context, dest any, q sq.Sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("error constructing sql: %s", err)
	}

	return sqlx.GetContext(ctx, r.ext, dest, query, args...)
}

func (r repo) exec(ctx context.Context, q sq.Sqlizer) (int64, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("error constructing sql: %s", err)
	}

	res, err := r.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

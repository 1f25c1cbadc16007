package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jdholdren/satelit/internal/satelit"
)

var _ satelit.IndexFileRepo = IndexFiles{}

// IndexFiles is the repository of index snapshots seen on the indexer.
type IndexFiles struct {
	repo
}

// Queue implements [satelit.IndexFileRepo]. The hash's uniqueness is the only thing
// keeping a snapshot from being imported twice.
func (r IndexFiles) Queue(ctx context.Context, hash string, src satelit.Source) (satelit.IndexFile, error) {
	const q = `INSERT INTO index_files (id, source, hash, pending, created_at, updated_at)
	VALUES (:id, :source, :hash, :pending, :created_at, :updated_at)
	ON CONFLICT (hash) DO NOTHING;`

	ts := r.now()
	f := satelit.IndexFile{
		ID:        uuid.NewString(),
		Source:    src,
		Hash:      hash,
		Pending:   true,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if _, err := sqlx.NamedExecContext(ctx, r.ext, q, f); err != nil {
		return satelit.IndexFile{}, fmt.Errorf("error queueing index file: %w", err)
	}

	return r.byHash(ctx, hash)
}

func (r IndexFiles) LatestProcessed(ctx context.Context, candidate satelit.IndexFile) (*satelit.IndexFile, error) {
	if !candidate.Pending {
		return &candidate, nil
	}

	q := r.builder.Select("*").
		From("index_files").
		Where(sq.Eq{"source": candidate.Source, "pending": false}).
		OrderBy("updated_at DESC").
		Limit(1)

	var f satelit.IndexFile
	err := r.get(ctx, &f, q)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching latest processed index file: %w", err)
	}

	return &f, nil
}

// MarkProcessed implements [satelit.IndexFileRepo]. Marking a row that's already
// processed leaves it untouched, updated_at included.
func (r IndexFiles) MarkProcessed(ctx context.Context, index satelit.IndexFile) (satelit.IndexFile, error) {
	q := r.builder.Update("index_files").
		Set("updated_at", sq.Expr("CASE WHEN pending THEN ? ELSE updated_at END", r.now())).
		Set("pending", false).
		Where(sq.Eq{"id": index.ID})

	n, err := r.exec(ctx, q)
	if err != nil {
		return satelit.IndexFile{}, fmt.Errorf("error marking index file processed: %w", err)
	}
	if n == 0 {
		return satelit.IndexFile{}, fmt.Errorf("index file %s: %w", index.ID, satelit.ErrNotFound)
	}

	return r.byID(ctx, index.ID)
}

func (r IndexFiles) Latest(ctx context.Context, src satelit.Source) (*satelit.IndexFile, error) {
	q := r.builder.Select("*").
		From("index_files").
		Where(sq.Eq{"source": src}).
		OrderBy("created_at DESC").
		Limit(1)

	var f satelit.IndexFile
	err := r.get(ctx, &f, q)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching latest index file: %w", err)
	}

	return &f, nil
}

func (r IndexFiles) byHash(ctx context.Context, hash string) (satelit.IndexFile, error) {
	return r.one(ctx, sq.Eq{"hash": hash})
}

func (r IndexFiles) byID(ctx context.Context, id string) (satelit.IndexFile, error) {
	return r.one(ctx, sq.Eq{"id": id})
}

func (r IndexFiles) one(ctx context.Context, where sq.Eq) (satelit.IndexFile, error) {
	var f satelit.IndexFile
	err := r.get(ctx, &f, r.builder.Select("*").From("index_files").Where(where))
	if errors.Is(err, sql.ErrNoRows) {
		return satelit.IndexFile{}, satelit.ErrNotFound
	}
	if err != nil {
		return satelit.IndexFile{}, fmt.Errorf("error fetching index file: %w", err)
	}

	return f, nil
}

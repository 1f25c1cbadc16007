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

var _ satelit.FailedImportRepo = FailedImports{}

// FailedImports is the repository of title ids that an import skipped.
type FailedImports struct {
	repo
}

// WithSource implements [satelit.FailedImportRepo]. Only the newest active record is
// returned: older ones that somehow stayed active are never picked up.
func (r FailedImports) WithSource(ctx context.Context, src satelit.Source) (*satelit.FailedImport, error) {
	q := r.builder.Select(
		"fi.id AS id",
		"fi.index_id AS index_id",
		"fi.title_ids AS title_ids",
		"fi.reimported AS reimported",
		"fi.created_at AS created_at",
		"fi.updated_at AS updated_at",
	).
		From("failed_imports fi").
		Join("index_files ix ON ix.id = fi.index_id").
		Where(sq.Eq{"fi.reimported": false, "ix.source": src}).
		OrderBy("fi.created_at DESC").
		Limit(1)

	var f satelit.FailedImport
	err := r.get(ctx, &f, q)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error fetching failed import: %w", err)
	}

	return &f, nil
}

func (r FailedImports) Create(ctx context.Context, index satelit.IndexFile, ids []int32) (satelit.FailedImport, error) {
	const q = `INSERT INTO failed_imports (id, index_id, title_ids, reimported, created_at, updated_at)
	VALUES (:id, :index_id, :title_ids, :reimported, :created_at, :updated_at);`

	ts := r.now()
	f := satelit.FailedImport{
		ID:         uuid.NewString(),
		IndexID:    index.ID,
		TitleIDs:   satelit.TitleIDs(ids),
		Reimported: false,
		CreatedAt:  ts,
		UpdatedAt:  ts,
	}
	if _, err := sqlx.NamedExecContext(ctx, r.ext, q, f); err != nil {
		return satelit.FailedImport{}, fmt.Errorf("error inserting failed import: %w", err)
	}

	return r.byID(ctx, f.ID)
}

func (r FailedImports) MarkReimported(ctx context.Context, failed satelit.FailedImport) (satelit.FailedImport, error) {
	q := r.builder.Update("failed_imports").
		Set("reimported", true).
		Set("updated_at", r.now()).
		Where(sq.Eq{"id": failed.ID})

	n, err := r.exec(ctx, q)
	if err != nil {
		return satelit.FailedImport{}, fmt.Errorf("error marking failed import reimported: %w", err)
	}
	if n == 0 {
		return satelit.FailedImport{}, fmt.Errorf("failed import %s: %w", failed.ID, satelit.ErrNotFound)
	}

	return r.byID(ctx, failed.ID)
}

func (r FailedImports) byID(ctx context.Context, id string) (satelit.FailedImport, error) {
	var f satelit.FailedImport
	err := r.get(ctx, &f, r.builder.Select("*").From("failed_imports").Where(sq.Eq{"id": id}))
	if errors.Is(err, sql.ErrNoRows) {
		return satelit.FailedImport{}, satelit.ErrNotFound
	}
	if err != nil {
		return satelit.FailedImport{}, fmt.Errorf("error fetching failed import: %w", err)
	}

	return f, nil
}

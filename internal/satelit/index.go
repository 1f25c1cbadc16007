package satelit

import (
	"context"
	"time"
)

type (
	// IndexFile is one published snapshot of a source's catalog,
	// identified by the hash of its contents.
	IndexFile struct {
		ID     string `db:"id"`
		Source Source `db:"source"`
		Hash   string `db:"hash"`

		// Recorded but not yet imported.
		Pending bool `db:"pending"`

		CreatedAt time.Time `db:"created_at"`
		UpdatedAt time.Time `db:"updated_at"`
	}

	IndexFileRepo interface {
		// Records the snapshot as pending unless its hash is already known,
		// then returns the stored row either way.
		Queue(ctx context.Context, hash string, src Source) (IndexFile, error)
		// The snapshot a new import should diff against: candidate itself if it
		// isn't pending, or the most recently processed one. Nil when there is none.
		LatestProcessed(ctx context.Context, candidate IndexFile) (*IndexFile, error)
		MarkProcessed(ctx context.Context, index IndexFile) (IndexFile, error)
		// Latest is the newest snapshot seen for the source, pending or not.
		Latest(ctx context.Context, src Source) (*IndexFile, error)
	}
)

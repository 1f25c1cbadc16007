package plan

import (
	"context"
	"fmt"

	"github.com/jdholdren/satelit/internal/blocking"
	saterrs "github.com/jdholdren/satelit/internal/errors"
	"github.com/jdholdren/satelit/internal/satelit"
)

// UpdateIndex records the indexer's newest snapshot.
type UpdateIndex struct {
	indexer Indexer
	indexes satelit.IndexFileRepo
	pool    *blocking.Pool
}

func NewUpdateIndex(idx Indexer, indexes satelit.IndexFileRepo, pool *blocking.Pool) *UpdateIndex {
	return &UpdateIndex{
		indexer: idx,
		indexes: indexes,
		pool:    pool,
	}
}

// LatestIndex queues the newest snapshot and returns its row: pending if it's new
// or its import never finished, processed otherwise.
func (s *UpdateIndex) LatestIndex(ctx context.Context) (satelit.IndexFile, error) {
	const op saterrs.Op = "plan.UpdateIndex"

	desc, err := s.indexer.Latest(ctx)
	if err != nil {
		return satelit.IndexFile{}, saterrs.E(op, err)
	}

	index, err := blocking.Do(ctx, s.pool, op, func(ctx context.Context) (satelit.IndexFile, error) {
		return s.indexes.Queue(ctx, desc.Hash, desc.Source)
	})
	if err != nil {
		return satelit.IndexFile{}, fmt.Errorf("error queueing index %s: %w", desc.Hash, err)
	}

	return index, nil
}

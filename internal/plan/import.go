package plan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jdholdren/satelit/internal/blocking"
	saterrs "github.com/jdholdren/satelit/internal/errors"
	"github.com/jdholdren/satelit/internal/indexer"
	"github.com/jdholdren/satelit/internal/rpc"
	"github.com/jdholdren/satelit/internal/satelit"
)

// ImportIndex hands a pending snapshot to the importer along with whatever the
// last import skipped, then records the outcome.
type ImportIndex struct {
	importer Importer
	urls     *indexer.URLBuilder
	indexes  satelit.IndexFileRepo
	failed   satelit.FailedImportRepo
	tx       satelit.Transactor
	pool     *blocking.Pool
}

func NewImportIndex(
	importer Importer,
	urls *indexer.URLBuilder,
	indexes satelit.IndexFileRepo,
	failed satelit.FailedImportRepo,
	tx satelit.Transactor,
	pool *blocking.Pool,
) *ImportIndex {
	return &ImportIndex{
		importer: importer,
		urls:     urls,
		indexes:  indexes,
		failed:   failed,
		tx:       tx,
		pool:     pool,
	}
}

// StartImport imports index, which should be pending.
//
// Nothing is written unless the importer succeeds. Then, in one transaction, the
// failed import that was resubmitted is marked reimported, newly skipped ids are
// recorded against index, and index stops being pending.
func (s *ImportIndex) StartImport(ctx context.Context, index satelit.IndexFile) error {
	const op saterrs.Op = "plan.ImportIndex"

	var (
		active *satelit.FailedImport
		prev   *satelit.IndexFile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		active, err = blocking.Do(gctx, s.pool, op, func(ctx context.Context) (*satelit.FailedImport, error) {
			return s.failed.WithSource(ctx, index.Source)
		})
		return err
	})
	g.Go(func() (err error) {
		prev, err = blocking.Do(gctx, s.pool, op, func(ctx context.Context) (*satelit.IndexFile, error) {
			return s.indexes.LatestProcessed(ctx, index)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("error reading import state: %w", err)
	}

	intent, err := s.intent(index, prev, active)
	if err != nil {
		return saterrs.E(op, err)
	}
	slog.InfoContext(ctx, "starting import",
		"intent_id", intent.ID,
		"new_index_url", intent.NewIndexURL,
		"old_index_url", intent.OldIndexURL,
		"reimport_count", len(intent.ReimportIDs),
	)

	res, err := s.importer.StartImport(ctx, intent)
	if err != nil {
		return saterrs.E(op, err)
	}
	slog.InfoContext(ctx, "import finished", "intent_id", intent.ID, "skipped_count", len(res.SkippedIDs))

	return blocking.Exec(ctx, s.pool, op, func(ctx context.Context) error {
		return s.tx.InTx(ctx, func(ctx context.Context, indexes satelit.IndexFileRepo, failed satelit.FailedImportRepo) error {
			if active != nil {
				if _, err := failed.MarkReimported(ctx, *active); err != nil {
					return err
				}
			}
			if len(res.SkippedIDs) > 0 {
				if _, err := failed.Create(ctx, index, res.SkippedIDs); err != nil {
					return err
				}
			}
			if _, err := indexes.MarkProcessed(ctx, index); err != nil {
				return err
			}

			return nil
		})
	})
}

func (s *ImportIndex) intent(index satelit.IndexFile, prev *satelit.IndexFile, active *satelit.FailedImport) (*rpc.ImportIntent, error) {
	src, err := rpc.WireSource(index.Source)
	if err != nil {
		return nil, saterrs.E(saterrs.Unexpected, err)
	}

	newURL, err := s.urls.Index(index)
	if err != nil {
		return nil, err
	}
	oldURL := ""
	if prev != nil {
		if oldURL, err = s.urls.Index(*prev); err != nil {
			return nil, err
		}
	}
	reimport := []int32{}
	if active != nil {
		reimport = append(reimport, active.TitleIDs...)
	}

	return &rpc.ImportIntent{
		ID:          uuid.New(),
		Source:      src,
		NewIndexURL: newURL,
		OldIndexURL: oldURL,
		ReimportIDs: reimport,
	}, nil
}

// Package plan is one pass of the scheduler's pipeline: check the indexer for a new
// snapshot, import it if it hasn't been, then ask the scraper to scrape.
//
// Each step only ever moves the store forward, so running a plan again from the
// start after any failure is safe.
package plan

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jdholdren/satelit/internal/indexer"
	"github.com/jdholdren/satelit/internal/logger"
	"github.com/jdholdren/satelit/internal/rpc"
)

type (
	// Indexer describes the newest snapshot.
	Indexer interface {
		Latest(ctx context.Context) (indexer.Descriptor, error)
	}

	Importer interface {
		StartImport(ctx context.Context, intent *rpc.ImportIntent) (*rpc.ImportIntentResult, error)
	}

	Scraper interface {
		StartScraping(ctx context.Context, intent *rpc.ScrapeIntent) (*rpc.ScrapeIntentResult, error)
	}
)

// State is where a plan run is at. It's only reported, never dispatched on.
type State string

const (
	StateStart        State = "start"
	StateIndexChecked State = "index_checked"
	StateImported     State = "imported"
	StateScraped      State = "scraped"
	StateDone         State = "done"
)

// ScrapePlan runs the three steps in order.
type ScrapePlan struct {
	update *UpdateIndex
	imp    *ImportIndex
	scrape *ScrapeData
}

func NewScrapePlan(update *UpdateIndex, imp *ImportIndex, scrape *ScrapeData) *ScrapePlan {
	return &ScrapePlan{
		update: update,
		imp:    imp,
		scrape: scrape,
	}
}

// Run makes a single pass. It reports whether the scraper believes there's more to
// do, in which case the caller should run again right away.
//
// The first step to fail aborts the pass and its error is returned as is.
func (p *ScrapePlan) Run(ctx context.Context) (bool, error) {
	ctx = logger.Ctx(ctx, slog.String("run_id", uuid.NewString()))
	slog.InfoContext(ctx, "plan started", "state", StateStart)

	index, err := p.update.LatestIndex(ctx)
	if err != nil {
		return false, err
	}
	slog.InfoContext(ctx, "index checked",
		"state", StateIndexChecked,
		"index_id", index.ID,
		"hash", index.Hash,
		"pending", index.Pending,
	)

	if index.Pending {
		if err := p.imp.StartImport(ctx, index); err != nil {
			return false, err
		}
		slog.InfoContext(ctx, "index imported", "state", StateImported, "index_id", index.ID)
	} else {
		slog.InfoContext(ctx, "index already imported", "index_id", index.ID)
	}

	if err := p.scrape.StartScraping(ctx); err != nil {
		return false, err
	}
	more := p.scrape.ShouldScrape()
	slog.InfoContext(ctx, "scraped", "state", StateScraped, "more", more)
	slog.InfoContext(ctx, "plan finished", "state", StateDone)

	return more, nil
}

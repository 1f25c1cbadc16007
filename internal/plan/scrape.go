package plan

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	saterrs "github.com/jdholdren/satelit/internal/errors"
	"github.com/jdholdren/satelit/internal/rpc"
	"github.com/jdholdren/satelit/internal/satelit"
)

// ScrapeData asks the scraper to scrape a source and remembers whether it said
// there's more left.
type ScrapeData struct {
	scraper Scraper
	source  satelit.Source

	shouldScrape atomic.Bool
}

func NewScrapeData(scraper Scraper, src satelit.Source) *ScrapeData {
	s := &ScrapeData{
		scraper: scraper,
		source:  src,
	}
	s.shouldScrape.Store(true)

	return s
}

// ShouldScrape is the scraper's last answer, true until it's been asked. It's a hint:
// calling StartScraping when it's false is fine and may flip it back.
func (s *ScrapeData) ShouldScrape() bool {
	return s.shouldScrape.Load()
}

func (s *ScrapeData) StartScraping(ctx context.Context) error {
	const op saterrs.Op = "plan.ScrapeData"

	src, err := rpc.WireSource(s.source)
	if err != nil {
		return saterrs.E(op, saterrs.Unexpected, err)
	}

	res, err := s.scraper.StartScraping(ctx, &rpc.ScrapeIntent{
		ID:     uuid.New(),
		Source: src,
	})
	if err != nil {
		return saterrs.E(op, err)
	}
	s.shouldScrape.Store(res.MayContinue)

	return nil
}

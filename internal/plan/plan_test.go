package plan

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/jdholdren/satelit/internal/blocking"
	"github.com/jdholdren/satelit/internal/database"
	saterrs "github.com/jdholdren/satelit/internal/errors"
	"github.com/jdholdren/satelit/internal/indexer"
	"github.com/jdholdren/satelit/internal/migrations"
	"github.com/jdholdren/satelit/internal/rpc"
	"github.com/jdholdren/satelit/internal/satelit"
)

type fakeIndexer struct {
	mu   sync.Mutex
	hash string
}

func (f *fakeIndexer) setHash(h string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hash = h
}

func (f *fakeIndexer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintf(w, `{"id": "snap-%s", "hash": %q, "source": "anidb"}`, f.hash, f.hash)
}

type fakeImporter struct {
	intents []*rpc.ImportIntent
	skipped []int32
	err     error
}

func (f *fakeImporter) StartImport(_ context.Context, intent *rpc.ImportIntent) (*rpc.ImportIntentResult, error) {
	f.intents = append(f.intents, intent)
	if f.err != nil {
		return nil, f.err
	}
	return &rpc.ImportIntentResult{ID: intent.ID, SkippedIDs: f.skipped}, nil
}

type fakeScraper struct {
	calls       int
	mayContinue bool
	err         error
}

func (f *fakeScraper) StartScraping(_ context.Context, intent *rpc.ScrapeIntent) (*rpc.ScrapeIntentResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &rpc.ScrapeIntentResult{ID: intent.ID, MayContinue: f.mayContinue}, nil
}

// flakyTx runs the writes, then fails the commit while fail is set.
type flakyTx struct {
	satelit.Transactor
	fail bool
}

func (f *flakyTx) InTx(ctx context.Context, fn func(ctx context.Context, indexes satelit.IndexFileRepo, failed satelit.FailedImportRepo) error) error {
	return f.Transactor.InTx(ctx, func(ctx context.Context, indexes satelit.IndexFileRepo, failed satelit.FailedImportRepo) error {
		if err := fn(ctx, indexes, failed); err != nil {
			return err
		}
		if f.fail {
			return errors.New("disk I/O error")
		}
		return nil
	})
}

type testPlan struct {
	*ScrapePlan

	store    database.Store
	tx       *flakyTx
	indexer  *fakeIndexer
	importer *fakeImporter
	scraper  *fakeScraper
	baseURL  string
}

func newTestPlan(t *testing.T) *testPlan {
	t.Helper()

	ctx := context.Background()
	dbx, err := database.Open(ctx, database.Config{URL: "sqlite:" + filepath.Join(t.TempDir(), "satelit.db")})
	require.NoError(t, err)
	t.Cleanup(func() { dbx.Close() })
	require.NoError(t, migrations.Run(dbx))
	store := database.New(dbx)

	idx := &fakeIndexer{hash: "abc"}
	srv := httptest.NewServer(idx)
	t.Cleanup(srv.Close)
	urls, err := indexer.NewURLBuilder(srv.URL, satelit.SourceAnidb, indexer.Templates{})
	require.NoError(t, err)

	var (
		pool     = blocking.New(4)
		tx       = &flakyTx{Transactor: store}
		importer = &fakeImporter{}
		scraper  = &fakeScraper{}
	)
	p := NewScrapePlan(
		NewUpdateIndex(indexer.NewClient(urls, time.Second), store.IndexFiles(), pool),
		NewImportIndex(importer, urls, store.IndexFiles(), store.FailedImports(), tx, pool),
		NewScrapeData(scraper, satelit.SourceAnidb),
	)

	return &testPlan{
		ScrapePlan: p,
		store:      store,
		tx:         tx,
		indexer:    idx,
		importer:   importer,
		scraper:    scraper,
		baseURL:    srv.URL,
	}
}

func (p *testPlan) index(t *testing.T, hash string) satelit.IndexFile {
	t.Helper()

	f, err := p.store.IndexFiles().Queue(context.Background(), hash, satelit.SourceAnidb)
	require.NoError(t, err)
	return f
}

func (p *testPlan) activeFailed(t *testing.T) *satelit.FailedImport {
	t.Helper()

	f, err := p.store.FailedImports().WithSource(context.Background(), satelit.SourceAnidb)
	require.NoError(t, err)
	return f
}

func TestNewSnapshotIsImported(t *testing.T) {
	p := newTestPlan(t)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, p.importer.intents, 1)
	intent := p.importer.intents[0]
	assert.Equal(t, rpc.SourceAnidb, intent.Source)
	assert.Equal(t, p.baseURL+"/anidb/index/abc", intent.NewIndexURL)
	assert.Equal(t, "", intent.OldIndexURL)
	assert.Equal(t, []int32{}, intent.ReimportIDs)

	assert.False(t, p.index(t, "abc").Pending)
	assert.Nil(t, p.activeFailed(t))
	assert.Equal(t, 1, p.scraper.calls)
}

func TestKnownSnapshotOnlyScrapes(t *testing.T) {
	p := newTestPlan(t)
	ctx := context.Background()

	_, err := p.Run(ctx)
	require.NoError(t, err)
	_, err = p.Run(ctx)
	require.NoError(t, err)

	assert.Len(t, p.importer.intents, 1, "second poll shouldn't import again")
	assert.Equal(t, 2, p.scraper.calls)
}

func TestSkippedIDsAreRecorded(t *testing.T) {
	p := newTestPlan(t)
	p.importer.skipped = []int32{10, 20}

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	index := p.index(t, "abc")
	assert.False(t, index.Pending)

	failed := p.activeFailed(t)
	require.NotNil(t, failed)
	assert.Equal(t, index.ID, failed.IndexID)
	assert.Equal(t, satelit.TitleIDs{10, 20}, failed.TitleIDs)
	assert.False(t, failed.Reimported)
}

func TestSkippedIDsAreReimported(t *testing.T) {
	p := newTestPlan(t)
	ctx := context.Background()

	p.importer.skipped = []int32{10, 20}
	_, err := p.Run(ctx)
	require.NoError(t, err)
	first := p.activeFailed(t)
	require.NotNil(t, first)

	p.importer.skipped = nil
	p.indexer.setHash("def")
	_, err = p.Run(ctx)
	require.NoError(t, err)

	require.Len(t, p.importer.intents, 2)
	intent := p.importer.intents[1]
	assert.Equal(t, []int32{10, 20}, intent.ReimportIDs)
	assert.Equal(t, p.baseURL+"/anidb/index/abc", intent.OldIndexURL)
	assert.Equal(t, p.baseURL+"/anidb/index/def", intent.NewIndexURL)

	assert.Nil(t, p.activeFailed(t), "the reimported record is no longer active")
	assert.False(t, p.index(t, "def").Pending)
}

func TestRunReportsMoreWork(t *testing.T) {
	p := newTestPlan(t)
	ctx := context.Background()

	p.scraper.mayContinue = true
	more, err := p.Run(ctx)
	require.NoError(t, err)
	assert.True(t, more)

	p.scraper.mayContinue = false
	more, err = p.Run(ctx)
	require.NoError(t, err)
	assert.False(t, more)
}

func TestImportFailureLeavesPending(t *testing.T) {
	p := newTestPlan(t)
	p.importer.err = saterrs.E(saterrs.Service, status.Error(codes.Internal, "index is corrupt"))

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, saterrs.Is(saterrs.Service, err))

	assert.True(t, p.index(t, "abc").Pending)
	assert.Zero(t, p.scraper.calls, "a failed import aborts the run")
}

func TestFailedWritesAreRetried(t *testing.T) {
	p := newTestPlan(t)
	ctx := context.Background()

	// An earlier import that skipped some titles.
	p.importer.skipped = []int32{1, 2}
	_, err := p.Run(ctx)
	require.NoError(t, err)

	p.indexer.setHash("def")
	p.importer.skipped = []int32{30}
	p.tx.fail = true
	_, err = p.Run(ctx)
	require.Error(t, err)
	assert.True(t, saterrs.Is(saterrs.Storage, err))

	// Nothing from the failed run stuck.
	assert.True(t, p.index(t, "def").Pending)
	active := p.activeFailed(t)
	require.NotNil(t, active)
	assert.Equal(t, satelit.TitleIDs{1, 2}, active.TitleIDs)

	p.tx.fail = false
	_, err = p.Run(ctx)
	require.NoError(t, err)

	require.Len(t, p.importer.intents, 3)
	assert.Equal(t, p.importer.intents[1].ReimportIDs, p.importer.intents[2].ReimportIDs)
	assert.Equal(t, []int32{1, 2}, p.importer.intents[2].ReimportIDs)

	active = p.activeFailed(t)
	require.NotNil(t, active)
	assert.Equal(t, satelit.TitleIDs{30}, active.TitleIDs)
	assert.False(t, p.index(t, "def").Pending)
}

func TestIndexerFailureAborts(t *testing.T) {
	p := newTestPlan(t)
	p.indexer.setHash("")

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, saterrs.Is(saterrs.Service, err))
	assert.Empty(t, p.importer.intents)
	assert.Zero(t, p.scraper.calls)
}

func TestScrapeDataStartsHopeful(t *testing.T) {
	scraper := &fakeScraper{err: saterrs.E(saterrs.Transport, "connection refused")}
	s := NewScrapeData(scraper, satelit.SourceAnidb)
	assert.True(t, s.ShouldScrape())

	err := s.StartScraping(context.Background())
	require.Error(t, err)
	assert.True(t, saterrs.Is(saterrs.Transport, err))
	assert.True(t, s.ShouldScrape(), "a failed call doesn't change the answer")

	scraper.err = nil
	require.NoError(t, s.StartScraping(context.Background()))
	assert.False(t, s.ShouldScrape())

	scraper.mayContinue = true
	require.NoError(t, s.StartScraping(context.Background()))
	assert.True(t, s.ShouldScrape())
}

// Scheduler keeps the anime catalog in sync: it watches the indexer for new
// snapshots, has the importer import them, and keeps the scraper busy.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/sethvargo/go-envconfig"
	"github.com/sethvargo/go-retry"
	"go.temporal.io/sdk/client"

	"github.com/jdholdren/satelit/internal/blocking"
	"github.com/jdholdren/satelit/internal/database"
	"github.com/jdholdren/satelit/internal/indexer"
	"github.com/jdholdren/satelit/internal/logger"
	"github.com/jdholdren/satelit/internal/migrations"
	"github.com/jdholdren/satelit/internal/plan"
	"github.com/jdholdren/satelit/internal/rpc"
	"github.com/jdholdren/satelit/internal/runloop"
	"github.com/jdholdren/satelit/internal/satelit"
	"github.com/jdholdren/satelit/internal/server"
	"github.com/jdholdren/satelit/internal/worker"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Parse the config
	cfg, err := loadConfig(ctx, envconfig.OsLookuper())
	if err != nil {
		log.Fatalf("error parsing config: %s", err)
	}

	slog.SetDefault(logger.New(os.Stderr, cfg.LoggerFormat, slog.LevelInfo))

	// Start the application
	if err := runScheduler(ctx, cfg); err != nil {
		slog.Error("error running", "error", err)
		os.Exit(1)
	}
}

func runScheduler(ctx context.Context, cfg config) error {
	slog.Info("running",
		"driver", cfg.Driver,
		"source", cfg.Source,
		"indexer_url", cfg.IndexerURL,
		"importer_url", cfg.ImporterURL,
		"scraper_url", cfg.ScraperURL,
		"status_port", cfg.StatusPort,
	)

	// Connect to the db
	dbx, err := database.Open(ctx, database.Config{
		URL:               cfg.DatabaseURL,
		MaxConnections:    cfg.DBMaxConnections,
		ConnectionTimeout: cfg.DBConnectionTimeout,
	})
	if err != nil {
		return err
	}
	defer dbx.Close()

	// Migrate, always
	if err := migrations.Run(dbx); err != nil {
		return fmt.Errorf("error migrating: %s", err)
	}

	src, err := satelit.ParseSource(cfg.Source)
	if err != nil {
		return err
	}
	urls, err := indexer.NewURLBuilder(cfg.IndexerURL, src, indexer.Templates{
		Latest: cfg.IndexURLLatest,
		Index:  cfg.IndexURLFile,
	})
	if err != nil {
		return err
	}

	importerConn, err := rpc.Dial(cfg.ImporterURL)
	if err != nil {
		return err
	}
	defer importerConn.Close()
	scraperConn, err := rpc.Dial(cfg.ScraperURL)
	if err != nil {
		return err
	}
	defer scraperConn.Close()

	var (
		store = database.New(dbx)
		pool  = blocking.New(cfg.DBMaxConnections)
		p     = plan.NewScrapePlan(
			plan.NewUpdateIndex(indexer.NewClient(urls, cfg.IndexerTimeout), store.IndexFiles(), pool),
			plan.NewImportIndex(
				rpc.NewImportClient(importerConn, cfg.ImporterTimeout),
				urls,
				store.IndexFiles(),
				store.FailedImports(),
				store,
				pool,
			),
			plan.NewScrapeData(rpc.NewScraperClient(scraperConn, cfg.ScraperTimeout), src),
		)
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g run.Group
	g.Add(func() error {
		// Block until a signal comes in or another actor exits
		<-ctx.Done()
		return nil
	}, func(error) {
		cancel()
	})

	var runner server.Runner
	switch cfg.Driver {
	case driverTemporal:
		cli, err := dialTemporal(ctx, cfg.TemporalHostPort)
		if err != nil {
			return err
		}
		defer cli.Close()

		if err := worker.EnsureNamespace(ctx, cli.WorkflowService()); err != nil {
			return err
		}
		runs := worker.NewRuns()
		w := worker.NewWorker(cli, worker.NewActivities(p, runs))
		if err := worker.EnsureSchedule(ctx, cli, worker.Options{
			Every:         cfg.IdleInterval,
			ErrorInterval: cfg.ErrorInterval,
			RunTimeout:    cfg.IndexerTimeout + cfg.ImporterTimeout + cfg.ScraperTimeout,
		}); err != nil {
			return err
		}

		g.Add(func() error {
			if err := w.Start(); err != nil {
				return fmt.Errorf("error starting worker: %w", err)
			}
			<-ctx.Done()
			return nil
		}, func(error) {
			cancel()
			w.Stop()
		})
		runner = temporalRunner{Trigger: worker.NewTrigger(cli), Runs: runs}
	default:
		loop := runloop.New(p, cfg.IdleInterval, cfg.ErrorInterval)
		g.Add(func() error {
			return loop.Run(ctx)
		}, func(error) {
			cancel()
		})
		runner = loop
	}

	if cfg.StatusPort != 0 {
		s := server.New(server.Config{Port: cfg.StatusPort, Driver: cfg.Driver}, runner, store, store.IndexFiles(), store.FailedImports(), pool)
		g.Add(func() error {
			if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("error listening: %s", err)
			}
			return nil
		}, func(error) {
			downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.Shutdown(downCtx); err != nil {
				slog.Error("error shutting down server", "error", err)
			}
		})
	}

	if err := g.Run(); err != nil {
		return fmt.Errorf("error running: %s", err)
	}

	return nil
}

// temporalRunner reports runs made by the worker, and wakes the schedule.
type temporalRunner struct {
	worker.Trigger
	*worker.Runs
}

func dialTemporal(ctx context.Context, hostPort string) (client.Client, error) {
	b := retry.WithMaxDuration(time.Minute, retry.NewFibonacci(500*time.Millisecond))
	cli, err := retry.DoValue(ctx, b, func(ctx context.Context) (client.Client, error) {
		cli, err := client.Dial(client.Options{
			HostPort:  hostPort,
			Namespace: worker.Namespace,
		})
		if err != nil {
			slog.Info("waiting for temporal", "host_port", hostPort, "error", err)
			return nil, retry.RetryableError(err)
		}
		return cli, nil
	})
	if err != nil {
		return nil, fmt.Errorf("error creating temporal client: %w", err)
	}

	return cli, nil
}

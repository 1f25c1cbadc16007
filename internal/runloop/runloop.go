// Package runloop drives the scrape plan forever: right away while there's more
// to do, after a long pause once there isn't, and after a shorter one on failure.
package runloop

import (
	"context"
	"log/slog"
	"sync"
	"time"

	saterrs "github.com/jdholdren/satelit/internal/errors"
)

const (
	DefaultIdleInterval  = 24 * time.Hour
	DefaultErrorInterval = time.Hour
)

// Planner makes one pass over the pipeline and reports if there's more to do.
type Planner interface {
	Run(ctx context.Context) (bool, error)
}

// Status describes the last completed run and the next one.
type Status struct {
	Running    bool
	Runs       int
	StartedAt  time.Time
	FinishedAt time.Time
	More       bool
	Err        error
	NextRunAt  time.Time
}

type Runner struct {
	plan          Planner
	idleInterval  time.Duration
	errorInterval time.Duration

	wake chan struct{}
	now  func() time.Time

	mu     sync.Mutex
	status Status
}

func New(plan Planner, idleInterval, errorInterval time.Duration) *Runner {
	if idleInterval <= 0 {
		idleInterval = DefaultIdleInterval
	}
	if errorInterval <= 0 {
		errorInterval = DefaultErrorInterval
	}

	return &Runner{
		plan:          plan,
		idleInterval:  idleInterval,
		errorInterval: errorInterval,
		wake:          make(chan struct{}, 1),
		now:           time.Now,
	}
}

// Run loops until ctx is done. A failed run is logged and retried later, never
// returned.
func (r *Runner) Run(ctx context.Context) error {
	slog.Info("run loop started", "idle_interval", r.idleInterval, "error_interval", r.errorInterval)

	for {
		wait := r.runOnce(ctx)
		if ctx.Err() != nil {
			slog.Info("run loop shutting down")
			return nil
		}
		if wait == 0 {
			continue
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			slog.Info("run loop shutting down")
			return nil
		case <-timer.C:
		case <-r.wake:
			timer.Stop()
			slog.Info("run loop woken up")
		}
	}
}

// Wake cuts the current pause short. It reports false if a wake up is already
// queued.
func (r *Runner) Wake() bool {
	select {
	case r.wake <- struct{}{}:
		return true
	default:
		return false
	}
}

func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status
}

// runOnce runs the plan and returns how long to wait before the next run.
func (r *Runner) runOnce(ctx context.Context) time.Duration {
	r.mu.Lock()
	r.status.Running = true
	r.status.StartedAt = r.now()
	r.mu.Unlock()

	more, err := r.plan.Run(ctx)

	var wait time.Duration
	switch {
	case err != nil:
		wait = r.errorInterval
		slog.Error("plan failed",
			"kind", saterrs.KindOf(err).String(),
			"error", err,
			"retry_in", wait,
		)
	case more:
		slog.Info("more work left, running again")
	default:
		wait = r.idleInterval
		slog.Info("nothing left to do", "next_run_in", wait)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	finished := r.now()
	r.status = Status{
		Running:    false,
		Runs:       r.status.Runs + 1,
		StartedAt:  r.status.StartedAt,
		FinishedAt: finished,
		More:       more,
		Err:        err,
		NextRunAt:  finished.Add(wait),
	}

	return wait
}

package worker

import (
	"context"
	"sync"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	saterrs "github.com/jdholdren/satelit/internal/errors"
	"github.com/jdholdren/satelit/internal/runloop"
)

// Activities runs the scrape plan on the worker.
//
// Every exported method is registered as an activity, so anything else the
// worker reports lives on Runs.
type Activities struct {
	plan runloop.Planner
	runs *Runs
}

// Instance to make the workflow a bit more readable
var acts = &Activities{}

func NewActivities(plan runloop.Planner, runs *Runs) *Activities {
	return &Activities{
		plan: plan,
		runs: runs,
	}
}

// RunPlan makes one pass of the plan. A failure comes back as an application
// error typed with its kind.
func (a *Activities) RunPlan(ctx context.Context) (bool, error) {
	l := activity.GetLogger(ctx)

	a.runs.start()
	more, err := a.plan.Run(ctx)
	a.runs.finish(more, err)

	if err != nil {
		kind := saterrs.KindOf(err)
		l.Error("plan failed", "kind", kind.String(), "error", err)
		return false, temporal.NewApplicationError(err.Error(), kind.String())
	}

	return more, nil
}

// Runs keeps track of how the last plan run on this worker went.
type Runs struct {
	now func() time.Time

	mu     sync.Mutex
	status runloop.Status
}

func NewRuns() *Runs {
	return &Runs{now: time.Now}
}

func (r *Runs) start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.Running = true
	r.status.StartedAt = r.now()
}

func (r *Runs) finish(more bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.Running = false
	r.status.Runs++
	r.status.FinishedAt = r.now()
	r.status.More = more
	r.status.Err = err
}

// Status is how the last run on this worker went. Runs are scheduled by Temporal,
// so the next run time is unknown.
func (r *Runs) Status() runloop.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.status
}

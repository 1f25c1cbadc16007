// Package worker is the Temporal driver: a schedule starts the SyncCatalog
// workflow, which runs the scrape plan as an activity until there's nothing
// left to scrape.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

const (
	TaskQueue  = "satelit"
	ScheduleID = "sync_catalog"
)

// Options tune the schedule and the plan activity.
type Options struct {
	// How often the schedule starts a sync.
	Every time.Duration
	// Wait between attempts of a failed plan run.
	ErrorInterval time.Duration
	// Upper bound of a single plan run.
	RunTimeout time.Duration
}

// NewWorker registers the workflow and the plan activity on the task queue.
func NewWorker(cli client.Client, acts *Activities) worker.Worker {
	w := worker.New(cli, TaskQueue, worker.Options{})
	register(w, acts)

	return w
}

// registry is what both a worker and the workflow test environment accept
// registrations on.
type registry interface {
	RegisterWorkflow(w interface{})
	RegisterActivity(a interface{})
}

func register(r registry, acts *Activities) {
	r.RegisterWorkflow(workflows{}.SyncCatalog)
	r.RegisterActivity(acts)
}

// EnsureSchedule creates the sync schedule if it doesn't exist yet, and brings
// its interval up to date if it does.
func EnsureSchedule(ctx context.Context, cli client.Client, opts Options) error {
	params := paramsFrom(opts)

	handle := cli.ScheduleClient().GetHandle(ctx, ScheduleID)
	if _, err := handle.Describe(ctx); err != nil {
		_, err = cli.ScheduleClient().Create(ctx, client.ScheduleOptions{
			ID: ScheduleID,
			Spec: client.ScheduleSpec{
				Intervals: []client.ScheduleIntervalSpec{{Every: opts.Every}},
			},
			Action: &client.ScheduleWorkflowAction{
				ID:        ScheduleID,
				Workflow:  workflows{}.SyncCatalog,
				Args:      []any{params},
				TaskQueue: TaskQueue,
			},
			Overlap:            enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
			TriggerImmediately: true,
		})
		if err != nil {
			return fmt.Errorf("error creating schedule: %w", err)
		}
		slog.Info("created schedule", "schedule_id", ScheduleID, "every", opts.Every)

		return nil
	}

	if err := handle.Update(ctx, client.ScheduleUpdateOptions{
		DoUpdate: func(input client.ScheduleUpdateInput) (*client.ScheduleUpdate, error) {
			sched := input.Description.Schedule
			sched.Spec = &client.ScheduleSpec{
				Intervals: []client.ScheduleIntervalSpec{{Every: opts.Every}},
			}
			if action, ok := sched.Action.(*client.ScheduleWorkflowAction); ok {
				action.Args = []any{params}
			}

			return &client.ScheduleUpdate{
				Schedule: &sched,
			}, nil
		},
	}); err != nil {
		return fmt.Errorf("error updating schedule: %w", err)
	}

	return nil
}

// Trigger wakes the schedule up for an immediate sync.
type Trigger struct {
	cli client.Client
}

func NewTrigger(cli client.Client) Trigger {
	return Trigger{cli: cli}
}

// Wake reports false if the schedule couldn't be triggered.
func (t Trigger) Wake() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	handle := t.cli.ScheduleClient().GetHandle(ctx, ScheduleID)
	if err := handle.Trigger(ctx, client.ScheduleTriggerOptions{
		Overlap: enumspb.SCHEDULE_OVERLAP_POLICY_SKIP,
	}); err != nil {
		slog.Error("error triggering schedule", "schedule_id", ScheduleID, "error", err)
		return false
	}

	return true
}

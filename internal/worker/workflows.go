package worker

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Runs per execution before continuing as new, to keep the history short.
const maxRunsPerExecution = 100

const defaultRunTimeout = 3 * time.Hour

// SyncCatalogParams is the input of the SyncCatalog workflow.
type SyncCatalogParams struct {
	ErrorInterval time.Duration
	RunTimeout    time.Duration
	// Attempts of a failed plan run, 0 retries until it succeeds.
	MaxAttempts int32
}

func paramsFrom(opts Options) SyncCatalogParams {
	return SyncCatalogParams{
		ErrorInterval: opts.ErrorInterval,
		RunTimeout:    opts.RunTimeout,
	}
}

type workflows struct{}

// SyncCatalog runs the plan for as long as the scraper says there's more to do.
//
// Returns how many runs it made.
func (workflows) SyncCatalog(ctx workflow.Context, params SyncCatalogParams) (int, error) {
	if params.RunTimeout <= 0 {
		params.RunTimeout = defaultRunTimeout
	}
	options := workflow.ActivityOptions{
		StartToCloseTimeout: params.RunTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    params.ErrorInterval,
			BackoffCoefficient: 1.0,
			MaximumAttempts:    params.MaxAttempts,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, options)
	l := workflow.GetLogger(ctx)

	runs := 0
	for {
		var more bool
		if err := workflow.ExecuteActivity(ctx, acts.RunPlan).Get(ctx, &more); err != nil {
			l.Error("plan failed", "kind", kindOf(err).String(), "error", err)
			return runs, err
		}
		runs++

		if !more {
			l.Info("nothing left to do", "runs", runs)
			return runs, nil
		}
		if runs >= maxRunsPerExecution {
			return runs, workflow.NewContinueAsNewError(ctx, workflows{}.SyncCatalog, params)
		}
	}
}

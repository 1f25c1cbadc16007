package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Namespace is where the schedule and its workflows live.
const Namespace = "default"

// Workflow histories are only kept long enough to look into a failed sync.
const retention = 7 * 24 * time.Hour

// EnsureNamespace registers the namespace, leaving it be if it already exists.
func EnsureNamespace(ctx context.Context, cli workflowservice.WorkflowServiceClient) error {
	_, err := cli.RegisterNamespace(ctx, &workflowservice.RegisterNamespaceRequest{
		Namespace:                        Namespace,
		Description:                      "satelit catalog sync",
		WorkflowExecutionRetentionPeriod: durationpb.New(retention),
	})
	var alreadyErr *serviceerror.NamespaceAlreadyExists
	if errors.As(err, &alreadyErr) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error registering namespace %s: %w", Namespace, err)
	}

	return nil
}

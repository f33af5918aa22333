package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

// PersistWorkflowName is the registered name of PersistDemarcationWorkflow.
const PersistWorkflowName = "PersistDemarcationWorkflow"

// PersistInput is the input for the persist workflow.
type PersistInput struct {
	Demarcation domain.Demarcation
}

// PersistDemarcationWorkflow stores a saved demarcation, then drops the
// producer's cached listing and announces the record. Only the store step
// decides the outcome; the other two are logged and skipped on failure.
func PersistDemarcationWorkflow(ctx workflow.Context, in PersistInput) error {
	logger := workflow.GetLogger(ctx)
	d := in.Demarcation
	logger.Info("Persisting demarcation", "demarcationID", d.ID, "producerID", d.ProducerID)

	storeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        time.Second,
			BackoffCoefficient:     2,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{errTypeInvalidArgument},
		},
	})
	if err := workflow.ExecuteActivity(storeCtx, "StoreDemarcation", d).Get(ctx, nil); err != nil {
		return err
	}

	bestEffort := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval: 100 * time.Millisecond,
			MaximumAttempts: 2,
		},
	})
	if err := workflow.ExecuteActivity(bestEffort, "InvalidateProducerCache", d.ProducerID).Get(ctx, nil); err != nil {
		logger.Warn("cache invalidation failed", "producerID", d.ProducerID, "error", err)
	}
	if err := workflow.ExecuteActivity(bestEffort, "PublishDemarcationSaved", d).Get(ctx, nil); err != nil {
		logger.Warn("saved event not published", "demarcationID", d.ID, "error", err)
	}

	logger.Info("Demarcation persisted", "demarcationID", d.ID)
	return nil
}

package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

// WorkflowStarter is the part of client.Client the persister needs.
type WorkflowStarter interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
}

// TemporalPersister hands saved demarcations to PersistDemarcationWorkflow
// and waits for the store step to finish.
type TemporalPersister struct {
	starter   WorkflowStarter
	taskQueue string
	timeout   time.Duration
}

// NewTemporalPersister creates a persister that starts workflows on taskQueue.
func NewTemporalPersister(starter WorkflowStarter, taskQueue string) *TemporalPersister {
	return &TemporalPersister{starter: starter, taskQueue: taskQueue, timeout: 2 * time.Minute}
}

// Persist implements ports.DemarcationPersister.
func (p *TemporalPersister) Persist(ctx context.Context, d *domain.Demarcation) error {
	opts := client.StartWorkflowOptions{
		ID:                       "demarcation-" + d.ID,
		TaskQueue:                p.taskQueue,
		WorkflowExecutionTimeout: p.timeout,
	}
	run, err := p.starter.ExecuteWorkflow(ctx, opts, PersistWorkflowName, PersistInput{Demarcation: *d})
	if err != nil {
		return fmt.Errorf("start persist workflow: %w", err)
	}
	if err := run.Get(ctx, nil); err != nil {
		var appErr *temporal.ApplicationError
		if errors.As(err, &appErr) && appErr.Type() == errTypeInvalidArgument {
			return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, appErr.Error())
		}
		return fmt.Errorf("persist workflow %s: %w", run.GetID(), err)
	}
	return nil
}

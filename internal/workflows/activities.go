package workflows

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/temporal"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
	"github.com/samirrijal/agrodemarc/internal/core/ports"
	"github.com/samirrijal/agrodemarc/internal/core/usecases"
)

const errTypeInvalidArgument = "InvalidArgument"

// Activities holds the activity implementations for the persist workflow.
// Cache and Events may be nil.
type Activities struct {
	Repo   ports.DemarcationRepository
	Cache  ports.CacheService
	Events ports.EventPublisher
}

// StoreDemarcation writes the record. A retry after a create that did commit
// finds the row already present and succeeds.
func (a *Activities) StoreDemarcation(ctx context.Context, d domain.Demarcation) error {
	err := a.Repo.Create(ctx, &d)
	if err == nil {
		return nil
	}
	if existing, getErr := a.Repo.GetByID(ctx, d.ID); getErr == nil && existing.ProducerID == d.ProducerID {
		slog.InfoContext(ctx, "demarcation already stored", "demarcation_id", d.ID)
		return nil
	}
	if errors.Is(err, domain.ErrInvalidArgument) {
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeInvalidArgument, err)
	}
	return fmt.Errorf("store demarcation %s: %w", d.ID, err)
}

// InvalidateProducerCache drops the producer's cached listing.
func (a *Activities) InvalidateProducerCache(ctx context.Context, producerID string) error {
	if a.Cache == nil {
		return nil
	}
	if err := a.Cache.Delete(ctx, usecases.ProducerCacheKey(producerID)); err != nil {
		return fmt.Errorf("invalidate producer %s: %w", producerID, err)
	}
	return nil
}

// PublishDemarcationSaved announces the stored record on the event bus.
func (a *Activities) PublishDemarcationSaved(ctx context.Context, d domain.Demarcation) error {
	if a.Events == nil {
		slog.InfoContext(ctx, "saved event skipped (no publisher)", "demarcation_id", d.ID)
		return nil
	}
	if err := a.Events.PublishDemarcationSaved(ctx, &d); err != nil {
		return fmt.Errorf("publish demarcation %s: %w", d.ID, err)
	}
	return nil
}

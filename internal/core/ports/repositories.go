package ports

import (
	"context"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

// DemarcationRepository persists saved parcel boundaries.
type DemarcationRepository interface {
	Create(ctx context.Context, d *domain.Demarcation) error
	GetByID(ctx context.Context, id string) (*domain.Demarcation, error)
	ListByProducer(ctx context.Context, producerID string) ([]domain.Demarcation, error)
	// ListInBounds returns demarcations whose extent intersects the box.
	ListInBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.Demarcation, error)
	Delete(ctx context.Context, id string) error
}

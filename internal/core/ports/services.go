package ports

import (
	"context"
	"time"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

// Positioner acquires the current device position. Implementations return an
// error wrapping domain.ErrPositionUnavailable when no fix can be obtained
// before ctx is done.
type Positioner interface {
	GetCurrentPosition(ctx context.Context) (domain.Fix, error)
}

// PositionSource hands out the positioner bound to one capture session.
type PositionSource interface {
	ForSession(sessionID string) Positioner
	Release(sessionID string)
}

// Scheduler runs fn every interval until the returned cancel func is called.
// cancel does not wait for an invocation already running, and one that was
// being dispatched when cancel was called may still start.
type Scheduler interface {
	Every(interval time.Duration, fn func()) (cancel func())
}

// SessionListener is told synchronously about every change to a capture
// session's point sequence while the session lock is held. Listeners must
// return promptly and must not call back into the session.
type SessionListener interface {
	SequenceChanged(ctx context.Context, snap domain.SessionSnapshot)
	SessionClosed(ctx context.Context, sessionID string)
}

// Notifier delivers user-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// DemarcationPersister receives the final record when a session is saved.
type DemarcationPersister interface {
	Persist(ctx context.Context, d *domain.Demarcation) error
}

// EventPublisher publishes domain events to a message broker.
type EventPublisher interface {
	PublishFrame(ctx context.Context, sessionID string, frame []byte) error
	PublishNotification(ctx context.Context, n domain.Notification) error
	PublishDemarcationSaved(ctx context.Context, d *domain.Demarcation) error
}

// EventSubscriber subscribes to domain events from a message broker.
type EventSubscriber interface {
	SubscribeFixes(ctx context.Context, handler func(ctx context.Context, sessionID string, fix domain.Fix, failure string) error) error
	SubscribeDemarcationsSaved(ctx context.Context, handler func(ctx context.Context, d *domain.Demarcation) error) error
}

// CacheService provides read-through caching.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	// Delete removes every listed key; missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

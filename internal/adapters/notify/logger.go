package notify

import (
	"context"
	"log/slog"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
	"github.com/samirrijal/agrodemarc/internal/core/ports"
)

// Logger logs every notification and forwards it to an optional downstream
// notifier, typically the NATS publisher feeding websocket clients.
type Logger struct {
	next ports.Notifier
}

// NewLogger creates a Logger. next may be nil.
func NewLogger(next ports.Notifier) *Logger {
	return &Logger{next: next}
}

// Notify implements ports.Notifier.
func (l *Logger) Notify(ctx context.Context, n domain.Notification) error {
	level := slog.LevelInfo
	switch n.Kind {
	case domain.NotifyWarning:
		level = slog.LevelWarn
	case domain.NotifyError:
		level = slog.LevelError
	}
	slog.Log(ctx, level, n.Message, "session_id", n.SessionID, "code", n.Code, "kind", n.Kind)

	if l.next == nil {
		return nil
	}
	return l.next.Notify(ctx, n)
}

// PublisherNotifier adapts an EventPublisher to the Notifier port.
type PublisherNotifier struct {
	events ports.EventPublisher
}

// NewPublisherNotifier creates a PublisherNotifier.
func NewPublisherNotifier(events ports.EventPublisher) *PublisherNotifier {
	return &PublisherNotifier{events: events}
}

// Notify implements ports.Notifier.
func (p *PublisherNotifier) Notify(ctx context.Context, n domain.Notification) error {
	return p.events.PublishNotification(ctx, n)
}

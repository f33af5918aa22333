package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

// FixMessage is the payload devices publish on demarc.fix.<session>.
// A non-empty Error reports that the device could not produce a fix.
type FixMessage struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Fix converts the message to a domain fix.
func (m FixMessage) Fix() domain.Fix {
	return domain.Fix{Lat: m.Lat, Lng: m.Lng, Accuracy: m.Accuracy, Timestamp: m.Timestamp}
}

// Subscriber implements ports.EventSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeFixes delivers device fixes for every session.
func (s *Subscriber) SubscribeFixes(ctx context.Context, handler func(ctx context.Context, sessionID string, fix domain.Fix, failure string) error) error {
	sub, err := s.js.Subscribe(SubjectFix+">", func(msg *nats.Msg) {
		sessionID := strings.TrimPrefix(msg.Subject, SubjectFix)
		var m FixMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil || sessionID == "" {
			_ = msg.Term()
			return
		}
		if err := handler(ctx, sessionID, m.Fix(), m.Error); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("fix-router"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// SubscribeDemarcationsSaved delivers saved demarcations for every producer.
func (s *Subscriber) SubscribeDemarcationsSaved(ctx context.Context, handler func(ctx context.Context, d *domain.Demarcation) error) error {
	sub, err := s.js.Subscribe(SubjectSaved+">", func(msg *nats.Msg) {
		var d domain.Demarcation
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			_ = msg.Nak()
			return
		}
		if err := handler(ctx, &d); err != nil {
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("saved-processor"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}

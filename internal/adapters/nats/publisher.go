package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

// Subjects. Frames and notifications are transient and go over core NATS;
// saved demarcations and device fixes are kept in JetStream.
const (
	SubjectFrame       = "demarc.frame."  // + session id
	SubjectNotify      = "demarc.notify." // + session id
	SubjectSaved       = "demarc.saved."  // + producer id
	SubjectFix         = "demarc.fix."    // + session id
	StreamDemarcations = "DEMARCATIONS"
	StreamDeviceFixes  = "DEVICE_FIXES"
)

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// Publisher implements ports.EventPublisher using NATS.
type Publisher struct {
	conn Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and ensures the JetStream streams exist.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	streams := []nats.StreamConfig{
		{
			Name:      StreamDemarcations,
			Subjects:  []string{SubjectSaved + ">"},
			Retention: nats.InterestPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      StreamDeviceFixes,
			Subjects:  []string{SubjectFix + ">"},
			Retention: nats.WorkQueuePolicy,
			MaxAge:    time.Minute,
			Storage:   nats.MemoryStorage,
		},
	}

	for _, cfg := range streams {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishFrame sends a rendered map frame to the session's subscribers.
func (p *Publisher) PublishFrame(ctx context.Context, sessionID string, frame []byte) error {
	return p.conn.Publish(SubjectFrame+sessionID, frame)
}

// PublishNotification sends a user-facing notification.
func (p *Publisher) PublishNotification(ctx context.Context, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.conn.Publish(SubjectNotify+n.SessionID, data)
}

// PublishDemarcationSaved announces a stored demarcation.
func (p *Publisher) PublishDemarcationSaved(ctx context.Context, d *domain.Demarcation) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectSaved+d.ProducerID, data, nats.Context(ctx), nats.MsgId(d.ID))
	return err
}

// PublishFix forwards a device fix, as the field app's relay does.
func (p *Publisher) PublishFix(ctx context.Context, sessionID string, msg FixMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectFix+sessionID, data, nats.Context(ctx))
	return err
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("agrodemarc"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

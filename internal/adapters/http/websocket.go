package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/agrodemarc/internal/adapters/nats"
	"github.com/samirrijal/agrodemarc/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to a session's feeds.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Session string `json:"session"` // capture session id
	Channel string `json:"channel"` // "frames" | "notifications" | "saved" (default: frames)
	// Producer scopes the "saved" channel.
	Producer string `json:"producer"`
}

// wsSubject maps a channel request onto a NATS subject.
func wsSubject(m wsMessage) (string, string) {
	channel := m.Channel
	if channel == "" {
		channel = "frames"
	}
	switch channel {
	case "frames":
		if m.Session == "" {
			return "", "session is required"
		}
		return natsadapter.SubjectFrame + m.Session, ""
	case "notifications":
		if m.Session == "" {
			return "", "session is required"
		}
		return natsadapter.SubjectNotify + m.Session, ""
	case "saved":
		if m.Producer == "" {
			return natsadapter.SubjectSaved + ">", ""
		}
		return natsadapter.SubjectSaved + m.Producer, ""
	default:
		return "", "unknown channel: " + channel
	}
}

// WebSocketHandler relays a session's map frames and notifications to the
// map client. Connecting with ?session=<id> subscribes to both right away;
// clients may also send {"action":"subscribe","session":"<id>","channel":"frames"}.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		log := slog.Default().With("remote_addr", remoteAddr)
		log.Info("ws client connected")
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		var mu sync.Mutex
		subs := make(map[string]*nats.Subscription) // subject -> subscription

		writeJSON := func(v any) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subscribe := func(subject string) error {
			if _, exists := subs[subject]; exists {
				return nil
			}
			s, err := nc.Subscribe(subject, func(msg *nats.Msg) {
				_ = writeJSON(json.RawMessage(msg.Data))
			})
			if err != nil {
				return err
			}
			subs[subject] = s
			return nil
		}

		if session := c.Query("session"); session != "" {
			for _, subject := range []string{natsadapter.SubjectFrame + session, natsadapter.SubjectNotify + session} {
				if err := subscribe(subject); err != nil {
					log.Error("ws subscribe failed", "subject", subject, "error", err)
					return
				}
			}
		}

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			subject, problem := wsSubject(m)
			if problem != "" {
				_ = writeJSON(map[string]string{"error": problem})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[subject]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				if err := subscribe(subject); err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		log.Info("ws client disconnected")
	}
}

package natsadapter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

type recordingConn struct {
	subjects []string
	payloads [][]byte
	drained  bool
}

func (c *recordingConn) Publish(subj string, data []byte) error {
	c.subjects = append(c.subjects, subj)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *recordingConn) Drain() error {
	c.drained = true
	return nil
}

func TestPublisher_FrameAndNotificationSubjects(t *testing.T) {
	conn := &recordingConn{}
	p := &Publisher{conn: conn}
	ctx := context.Background()

	require.NoError(t, p.PublishFrame(ctx, "s1", []byte(`{"version":1}`)))
	require.NoError(t, p.PublishNotification(ctx, domain.Notification{SessionID: "s1", Code: domain.CodeSaved}))
	p.Close()

	assert.Equal(t, []string{"demarc.frame.s1", "demarc.notify.s1"}, conn.subjects)
	var n domain.Notification
	require.NoError(t, json.Unmarshal(conn.payloads[1], &n))
	assert.Equal(t, domain.CodeSaved, n.Code)
	assert.True(t, conn.drained)
}

func TestFixMessage_Fix(t *testing.T) {
	ts := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	var m FixMessage
	require.NoError(t, json.Unmarshal([]byte(`{"lat":43.2,"lng":-2.9,"accuracy":7,"timestamp":"2026-04-02T08:00:00Z"}`), &m))

	assert.Equal(t, domain.Fix{Lat: 43.2, Lng: -2.9, Accuracy: 7, Timestamp: ts}, m.Fix())
	assert.Empty(t, m.Error)
}

package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

type captureNotifier struct {
	got []domain.Notification
	err error
}

func (c *captureNotifier) Notify(_ context.Context, n domain.Notification) error {
	c.got = append(c.got, n)
	return c.err
}

func TestLogger_ForwardsToNext(t *testing.T) {
	next := &captureNotifier{}
	l := NewLogger(next)
	n := domain.Notification{SessionID: "s1", Kind: domain.NotifyWarning, Code: domain.CodeLowAccuracy, Message: "Low GPS accuracy: 25 m"}

	assert.NoError(t, l.Notify(context.Background(), n))
	assert.Equal(t, []domain.Notification{n}, next.got)
}

func TestLogger_PropagatesDownstreamError(t *testing.T) {
	l := NewLogger(&captureNotifier{err: errors.New("nats down")})
	assert.Error(t, l.Notify(context.Background(), domain.Notification{Kind: domain.NotifyError}))
}

func TestLogger_WithoutNext(t *testing.T) {
	assert.NoError(t, NewLogger(nil).Notify(context.Background(), domain.Notification{Kind: domain.NotifySuccess}))
}

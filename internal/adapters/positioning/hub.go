// Package positioning turns device-pushed fixes into per-session positioners.
package positioning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
	"github.com/samirrijal/agrodemarc/internal/core/ports"
)

// Hub owns one Feed per capture session.
type Hub struct {
	maxFixAge time.Duration
	now       func() time.Time

	mu    sync.Mutex
	feeds map[string]*Feed
}

// NewHub creates a hub whose feeds accept fixes no older than maxFixAge.
func NewHub(maxFixAge time.Duration) *Hub {
	return &Hub{maxFixAge: maxFixAge, now: time.Now, feeds: make(map[string]*Feed)}
}

// ForSession returns the session's feed, creating it on first use.
func (h *Hub) ForSession(sessionID string) ports.Positioner {
	return h.feed(sessionID)
}

// Release drops the session's feed and fails any pending waiter.
func (h *Hub) Release(sessionID string) {
	h.mu.Lock()
	f, ok := h.feeds[sessionID]
	delete(h.feeds, sessionID)
	h.mu.Unlock()
	if ok {
		f.Fail("session released")
	}
}

// Push delivers a fix from the device bound to sessionID. Feeds exist only
// between ForSession and Release; fixes for any other session are
// ErrNotFound.
func (h *Hub) Push(sessionID string, fix domain.Fix) error {
	if err := (domain.GeoPoint{Lat: fix.Lat, Lng: fix.Lng}).Validate(); err != nil {
		return err
	}
	if fix.Accuracy < 0 {
		return fmt.Errorf("%w: negative accuracy", domain.ErrInvalidArgument)
	}
	f, err := h.lookup(sessionID)
	if err != nil {
		return err
	}
	f.Push(fix)
	return nil
}

// Fail reports that the device could not produce a fix (permission denied,
// no signal). Pending acquisitions fail with ErrPositionUnavailable.
func (h *Hub) Fail(sessionID, reason string) error {
	f, err := h.lookup(sessionID)
	if err != nil {
		return err
	}
	f.Fail(reason)
	return nil
}

func (h *Hub) lookup(sessionID string) (*Feed, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.feeds[sessionID]
	if !ok {
		return nil, fmt.Errorf("position feed %s: %w", sessionID, domain.ErrNotFound)
	}
	return f, nil
}

func (h *Hub) feed(sessionID string) *Feed {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.feeds[sessionID]
	if !ok {
		f = newFeed(h.maxFixAge, h.now)
		h.feeds[sessionID] = f
	}
	return f
}

// Feed implements ports.Positioner over fixes pushed by one device.
type Feed struct {
	maxAge time.Duration
	now    func() time.Time

	mu         sync.Mutex
	latest     domain.Fix
	receivedAt time.Time
	hasFix     bool
	waiters    []chan result
}

type result struct {
	fix domain.Fix
	err error
}

func newFeed(maxAge time.Duration, now func() time.Time) *Feed {
	return &Feed{maxAge: maxAge, now: now}
}

// GetCurrentPosition returns the latest fix when it is fresh enough, otherwise
// waits for the next push until ctx is done.
func (f *Feed) GetCurrentPosition(ctx context.Context) (domain.Fix, error) {
	f.mu.Lock()
	if f.hasFix && f.now().Sub(f.receivedAt) <= f.maxAge {
		fix := f.latest
		f.mu.Unlock()
		return fix, nil
	}
	ch := make(chan result, 1)
	f.waiters = append(f.waiters, ch)
	f.mu.Unlock()

	select {
	case r := <-ch:
		return r.fix, r.err
	case <-ctx.Done():
		f.drop(ch)
		return domain.Fix{}, fmt.Errorf("%w: %v", domain.ErrPositionUnavailable, ctx.Err())
	}
}

// Push records a fix and wakes every waiter. Freshness is measured from
// arrival, since device clocks drift.
func (f *Feed) Push(fix domain.Fix) {
	now := f.now()
	if fix.Timestamp.IsZero() {
		fix.Timestamp = now
	}
	f.mu.Lock()
	f.latest = fix
	f.receivedAt = now
	f.hasFix = true
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()

	for _, ch := range waiters {
		ch <- result{fix: fix}
	}
}

// Fail wakes every waiter with ErrPositionUnavailable and forgets the last fix.
func (f *Feed) Fail(reason string) {
	f.mu.Lock()
	f.hasFix = false
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()

	err := fmt.Errorf("%w: %s", domain.ErrPositionUnavailable, reason)
	for _, ch := range waiters {
		ch <- result{err: err}
	}
}

func (f *Feed) drop(ch chan result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, w := range f.waiters {
		if w == ch {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return
		}
	}
}

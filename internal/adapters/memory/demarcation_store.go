// Package memory keeps demarcations in process, indexed by an R-tree for
// viewport queries. It backs tests and single-node demos.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

// touchEpsilon widens query boxes so parcels that only touch the viewport edge
// are returned; rtreego treats touching rectangles as disjoint.
const touchEpsilon = 1e-9

type entry struct {
	d    domain.Demarcation
	rect rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect { return e.rect }

// Store implements ports.DemarcationRepository in memory.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*entry
	tree *rtreego.Rtree
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		byID: make(map[string]*entry),
		tree: rtreego.NewTree(2, 25, 50),
	}
}

// Create adds a demarcation. IDs must be unique.
func (s *Store) Create(_ context.Context, d *domain.Demarcation) error {
	rect, err := toRect(d.Bounds, 0)
	if err != nil {
		return err
	}
	e := &entry{d: clone(*d), rect: rect}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[d.ID]; ok {
		return fmt.Errorf("demarcation %s already exists", d.ID)
	}
	s.byID[d.ID] = e
	s.tree.Insert(e)
	return nil
}

// GetByID returns a demarcation.
func (s *Store) GetByID(_ context.Context, id string) (*domain.Demarcation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("demarcation %s: %w", id, domain.ErrNotFound)
	}
	d := clone(e.d)
	return &d, nil
}

// ListByProducer returns a producer's demarcations, newest first.
func (s *Store) ListByProducer(_ context.Context, producerID string) ([]domain.Demarcation, error) {
	s.mu.RLock()
	var out []domain.Demarcation
	for _, e := range s.byID {
		if e.d.ProducerID == producerID {
			out = append(out, clone(e.d))
		}
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

// ListInBounds returns demarcations whose extent intersects b, newest first.
func (s *Store) ListInBounds(_ context.Context, b domain.Bounds, limit int) ([]domain.Demarcation, error) {
	rect, err := toRect(b, touchEpsilon)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	var out []domain.Demarcation
	for _, obj := range s.tree.SearchIntersect(rect) {
		e := obj.(*entry)
		if e.d.Bounds.Intersects(b) {
			out = append(out, clone(e.d))
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes a demarcation.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("demarcation %s: %w", id, domain.ErrNotFound)
	}
	delete(s.byID, id)
	s.tree.Delete(e)
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Len returns the number of stored demarcations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func toRect(b domain.Bounds, pad float64) (rtreego.Rect, error) {
	rect, err := rtreego.NewRectFromPoints(
		rtreego.Point{b.MinLng - pad, b.MinLat - pad},
		rtreego.Point{b.MaxLng + pad, b.MaxLat + pad},
	)
	if err != nil {
		return rtreego.Rect{}, fmt.Errorf("index bounds: %w", err)
	}
	return rect, nil
}

func clone(d domain.Demarcation) domain.Demarcation {
	d.Points = slices.Clone(d.Points)
	return d
}

func sortNewestFirst(ds []domain.Demarcation) {
	slices.SortFunc(ds, func(a, b domain.Demarcation) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
}

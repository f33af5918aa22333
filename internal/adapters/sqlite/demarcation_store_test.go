package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "demarc.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func parcel(id, producer string, lat, lng float64, created time.Time) *domain.Demarcation {
	pts := []domain.GpsPoint{
		{ID: id + "-1", Lat: lat, Lng: lng, Accuracy: 5},
		{ID: id + "-2", Lat: lat, Lng: lng + 0.01, Accuracy: 5},
		{ID: id + "-3", Lat: lat + 0.01, Lng: lng + 0.01, Accuracy: 5},
	}
	return &domain.Demarcation{
		ID: id, ProducerID: producer, Points: pts,
		AreaHectares: 60, PerimeterMeters: 3400,
		Bounds: domain.BoundsOf(pts), CreatedAt: created,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 7, 1, 10, 0, 0, 123, time.UTC)
	d := parcel("d1", "p1", 43.2, -2.9, created)

	require.NoError(t, s.Create(ctx, d))
	got, err := s.GetByID(ctx, "d1")
	require.NoError(t, err)

	assert.Equal(t, d.Points, got.Points)
	assert.Equal(t, d.Bounds, got.Bounds)
	assert.True(t, created.Equal(got.CreatedAt))
	assert.Equal(t, 60.0, got.AreaHectares)
}

func TestStore_GetByID_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_ListByProducer_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, parcel("old", "p1", 1, 1, base)))
	require.NoError(t, s.Create(ctx, parcel("new", "p1", 2, 2, base.Add(500*time.Millisecond))))
	require.NoError(t, s.Create(ctx, parcel("other", "p2", 3, 3, base)))

	ds, err := s.ListByProducer(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "new", ds[0].ID)
	assert.Equal(t, "old", ds[1].ID)
}

func TestStore_ListInBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	bilbao := parcel("bilbao", "p1", 43.26, -2.93, now)
	require.NoError(t, s.Create(ctx, bilbao))
	require.NoError(t, s.Create(ctx, parcel("madrid", "p1", 40.41, -3.70, now)))

	ds, err := s.ListInBounds(ctx, domain.Bounds{MinLat: 43, MinLng: -3, MaxLat: 44, MaxLng: -2}, 10)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "bilbao", ds[0].ID)

	// A box touching the parcel edge still matches.
	corner := bilbao.Bounds
	ds, err = s.ListInBounds(ctx, domain.Bounds{MinLat: corner.MaxLat, MinLng: corner.MaxLng, MaxLat: 43.5, MaxLng: -2.5}, 10)
	require.NoError(t, err)
	assert.Len(t, ds, 1)
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, parcel("d1", "p1", 1, 1, time.Now())))

	require.NoError(t, s.Delete(ctx, "d1"))
	assert.ErrorIs(t, s.Delete(ctx, "d1"), domain.ErrNotFound)
	_, err := s.GetByID(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

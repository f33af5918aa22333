package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

func parcel(id, producer string, lat, lng float64, created time.Time) *domain.Demarcation {
	pts := []domain.GpsPoint{
		{ID: id + "-1", Lat: lat, Lng: lng, Accuracy: 5},
		{ID: id + "-2", Lat: lat, Lng: lng + 0.01, Accuracy: 5},
		{ID: id + "-3", Lat: lat + 0.01, Lng: lng + 0.01, Accuracy: 5},
	}
	return &domain.Demarcation{
		ID: id, ProducerID: producer, Points: pts,
		Bounds: domain.BoundsOf(pts), CreatedAt: created,
	}
}

func TestStore_CreateGetDelete(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	d := parcel("d1", "p1", 43.2, -2.9, time.Now())

	require.NoError(t, s.Create(ctx, d))
	assert.Error(t, s.Create(ctx, d), "duplicate id")

	got, err := s.GetByID(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, d.Points, got.Points)

	// Returned values are copies.
	got.Points[0].Lat = 0
	again, _ := s.GetByID(ctx, "d1")
	assert.Equal(t, 43.2, again.Points[0].Lat)

	require.NoError(t, s.Delete(ctx, "d1"))
	assert.ErrorIs(t, s.Delete(ctx, "d1"), domain.ErrNotFound)
	_, err = s.GetByID(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, s.Len())
}

func TestStore_ListByProducer_NewestFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Create(ctx, parcel("old", "p1", 1, 1, base)))
	require.NoError(t, s.Create(ctx, parcel("new", "p1", 2, 2, base.Add(time.Second))))
	require.NoError(t, s.Create(ctx, parcel("other", "p2", 3, 3, base)))

	ds, err := s.ListByProducer(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, ds, 2)
	assert.Equal(t, "new", ds[0].ID)
	assert.Equal(t, "old", ds[1].ID)
}

func TestStore_ListInBounds(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	now := time.Now().UTC()
	bilbao := parcel("bilbao", "p1", 43.26, -2.93, now)
	require.NoError(t, s.Create(ctx, bilbao))
	require.NoError(t, s.Create(ctx, parcel("madrid", "p1", 40.41, -3.70, now)))

	ds, err := s.ListInBounds(ctx, domain.Bounds{MinLat: 43, MinLng: -3, MaxLat: 44, MaxLng: -2}, 10)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "bilbao", ds[0].ID)

	corner := bilbao.Bounds
	ds, err = s.ListInBounds(ctx, domain.Bounds{MinLat: corner.MaxLat, MinLng: corner.MaxLng, MaxLat: 43.5, MaxLng: -2.5}, 10)
	require.NoError(t, err)
	assert.Len(t, ds, 1, "touching box matches")

	ds, err = s.ListInBounds(ctx, domain.Bounds{MinLat: 0, MinLng: 0, MaxLat: 1, MaxLng: 1}, 10)
	require.NoError(t, err)
	assert.Empty(t, ds)
}

func TestStore_ListInBounds_Limit(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Now().UTC()
	for i := range 100 {
		lat := 40 + float64(i%10)*0.05
		lng := -3 + float64(i/10)*0.05
		require.NoError(t, s.Create(ctx, parcel(fmt.Sprintf("d%03d", i), "p1", lat, lng, base.Add(time.Duration(i)*time.Second))))
	}

	ds, err := s.ListInBounds(ctx, domain.Bounds{MinLat: 39, MinLng: -4, MaxLat: 42, MaxLng: -1}, 5)
	require.NoError(t, err)
	require.Len(t, ds, 5)
	assert.Equal(t, "d099", ds[0].ID)

	require.NoError(t, s.Delete(ctx, "d099"))
	ds, err = s.ListInBounds(ctx, domain.Bounds{MinLat: 39, MinLng: -4, MaxLat: 42, MaxLng: -1}, 0)
	require.NoError(t, err)
	assert.Len(t, ds, 99)
}

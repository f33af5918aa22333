package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
	"github.com/samirrijal/agrodemarc/internal/core/ports"
	"github.com/samirrijal/agrodemarc/internal/core/usecases"
	"github.com/samirrijal/agrodemarc/internal/pkg/geospatial"
)

// --- Mock DemarcationRepository ---

type mockDemarcationRepo struct {
	createFn         func(ctx context.Context, d *domain.Demarcation) error
	getByIDFn        func(ctx context.Context, id string) (*domain.Demarcation, error)
	listByProducerFn func(ctx context.Context, producerID string) ([]domain.Demarcation, error)
	listInBoundsFn   func(ctx context.Context, b domain.Bounds, limit int) ([]domain.Demarcation, error)
	deleteFn         func(ctx context.Context, id string) error
}

func (m *mockDemarcationRepo) Create(ctx context.Context, d *domain.Demarcation) error {
	if m.createFn != nil {
		return m.createFn(ctx, d)
	}
	return nil
}

func (m *mockDemarcationRepo) GetByID(ctx context.Context, id string) (*domain.Demarcation, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockDemarcationRepo) ListByProducer(ctx context.Context, producerID string) ([]domain.Demarcation, error) {
	if m.listByProducerFn != nil {
		return m.listByProducerFn(ctx, producerID)
	}
	return nil, nil
}

func (m *mockDemarcationRepo) ListInBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.Demarcation, error) {
	if m.listInBoundsFn != nil {
		return m.listInBoundsFn(ctx, b, limit)
	}
	return nil, nil
}

func (m *mockDemarcationRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

// --- Mock CacheService ---

type mapCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newMapCache() *mapCache { return &mapCache{data: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key string, value []byte, _ int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mapCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.data, key)
	}
	c.deleted = append(c.deleted, keys...)
	return nil
}

// --- Mock PositionSource / EventPublisher ---

type mockPositionSource struct {
	mu       sync.Mutex
	pos      ports.Positioner
	released []string
}

func (m *mockPositionSource) ForSession(string) ports.Positioner { return m.pos }

func (m *mockPositionSource) Release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.released = append(m.released, id)
}

type mockPublisher struct {
	savedFn func(ctx context.Context, d *domain.Demarcation) error
	saved   []*domain.Demarcation
}

func (m *mockPublisher) PublishFrame(context.Context, string, []byte) error { return nil }

func (m *mockPublisher) PublishNotification(context.Context, domain.Notification) error { return nil }

func (m *mockPublisher) PublishDemarcationSaved(ctx context.Context, d *domain.Demarcation) error {
	m.saved = append(m.saved, d)
	if m.savedFn != nil {
		return m.savedFn(ctx, d)
	}
	return nil
}

func newService(repo ports.DemarcationRepository, cache ports.CacheService) (*usecases.DemarcationService, *mockPositionSource, *mockPersister) {
	positions := &mockPositionSource{pos: &mockPositioner{}}
	persister := &mockPersister{}
	deps := usecases.ServiceDeps{
		Repo:      repo,
		Positions: positions,
		Scheduler: &fakeScheduler{},
		Persister: persister,
		Capture:   usecases.DefaultCaptureConfig(),
	}
	if cache != nil {
		deps.Cache = cache
	}
	return usecases.NewDemarcationService(deps), positions, persister
}

// --- Tests ---

func TestDemarcationService_StartSession(t *testing.T) {
	svc, _, _ := newService(&mockDemarcationRepo{}, nil)

	sess, err := svc.StartSession(context.Background(), "producer-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := svc.Session(sess.ID())
	if err != nil || got != sess {
		t.Fatalf("expected registered session, got %v %v", got, err)
	}
	if sess.ProducerID() != "producer-1" {
		t.Errorf("expected producer-1, got %s", sess.ProducerID())
	}
	mode, _ := sess.Mode()
	if mode != domain.ModeManual {
		t.Errorf("new sessions start in manual mode, got %s", mode)
	}
}

func TestDemarcationService_StartSession_EmptyProducer(t *testing.T) {
	svc, _, _ := newService(&mockDemarcationRepo{}, nil)
	_, err := svc.StartSession(context.Background(), "  ")
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestDemarcationService_Session_NotFound(t *testing.T) {
	svc, _, _ := newService(&mockDemarcationRepo{}, nil)
	if _, err := svc.Session("nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := svc.CloseSession(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDemarcationService_SaveSession_ClosesOnSuccess(t *testing.T) {
	svc, positions, persister := newService(&mockDemarcationRepo{}, nil)
	ctx := context.Background()
	sess, _ := svc.StartSession(ctx, "producer-1")
	for _, p := range []domain.GeoPoint{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.001}, {Lat: 0.001, Lng: 0.001}} {
		if _, err := sess.AddPoint(ctx, &p); err != nil {
			t.Fatal(err)
		}
	}

	d, err := svc.SaveSession(ctx, sess.ID())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ProducerID != "producer-1" || len(persister.persisted) != 1 {
		t.Errorf("expected persisted record, got %+v", d)
	}
	if _, err := svc.Session(sess.ID()); !errors.Is(err, domain.ErrNotFound) {
		t.Error("session must be closed after save")
	}
	if len(positions.released) != 1 || positions.released[0] != sess.ID() {
		t.Errorf("position feed not released: %v", positions.released)
	}
}

func TestDemarcationService_SaveSession_RejectedKeepsSessionOpen(t *testing.T) {
	svc, _, persister := newService(&mockDemarcationRepo{}, nil)
	ctx := context.Background()
	sess, _ := svc.StartSession(ctx, "producer-1")
	_, _ = sess.AddPoint(ctx, &domain.GeoPoint{Lat: 1, Lng: 1})

	if _, err := svc.SaveSession(ctx, sess.ID()); !errors.Is(err, domain.ErrInsufficientPoints) {
		t.Fatalf("expected ErrInsufficientPoints, got %v", err)
	}
	if _, err := svc.Session(sess.ID()); err != nil {
		t.Error("session must stay open after a rejected save")
	}
	if len(persister.persisted) != 0 {
		t.Error("persister must not be called")
	}
}

func TestDemarcationService_Shutdown(t *testing.T) {
	svc, positions, _ := newService(&mockDemarcationRepo{}, nil)
	ctx := context.Background()
	a, _ := svc.StartSession(ctx, "p1")
	_, _ = svc.StartSession(ctx, "p2")

	svc.Shutdown(ctx)

	if svc.Sessions() != 0 {
		t.Errorf("expected no sessions, got %d", svc.Sessions())
	}
	if len(positions.released) != 2 {
		t.Errorf("expected 2 feeds released, got %d", len(positions.released))
	}
	if _, err := a.Mode(); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("expected closed session, got %v", err)
	}
}

func TestDemarcationService_Get_UsesCache(t *testing.T) {
	calls := 0
	repo := &mockDemarcationRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Demarcation, error) {
			calls++
			return &domain.Demarcation{ID: id, ProducerID: "p1", AreaHectares: 2.5}, nil
		},
	}
	cache := newMapCache()
	svc, _, _ := newService(repo, cache)

	for i := 0; i < 3; i++ {
		d, err := svc.Get(context.Background(), "d1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.AreaHectares != 2.5 {
			t.Errorf("expected 2.5 ha, got %v", d.AreaHectares)
		}
	}
	if calls != 1 {
		t.Errorf("expected a single repository read, got %d", calls)
	}
	if _, ok := cache.data[usecases.DemarcationCacheKey("d1")]; !ok {
		t.Error("expected cached entry")
	}
}

func TestDemarcationService_Get_NotFound(t *testing.T) {
	svc, _, _ := newService(&mockDemarcationRepo{}, nil)
	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDemarcationService_ListByProducer_Cached(t *testing.T) {
	cache := newMapCache()
	cached, _ := json.Marshal([]domain.Demarcation{{ID: "cached"}})
	cache.data[usecases.ProducerCacheKey("p1")] = cached

	repo := &mockDemarcationRepo{
		listByProducerFn: func(ctx context.Context, producerID string) ([]domain.Demarcation, error) {
			t.Error("repository must not be hit on cache hit")
			return nil, nil
		},
	}
	svc, _, _ := newService(repo, cache)

	ds, err := svc.ListByProducer(context.Background(), "p1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds) != 1 || ds[0].ID != "cached" {
		t.Errorf("expected cached list, got %+v", ds)
	}
}

func TestDemarcationService_ListInBounds(t *testing.T) {
	var gotLimit int
	repo := &mockDemarcationRepo{
		listInBoundsFn: func(ctx context.Context, b domain.Bounds, limit int) ([]domain.Demarcation, error) {
			gotLimit = limit
			return []domain.Demarcation{{ID: "a"}}, nil
		},
	}
	svc, _, _ := newService(repo, nil)
	ctx := context.Background()

	if _, err := svc.ListInBounds(ctx, domain.Bounds{MinLat: 1, MinLng: 1, MaxLat: 0, MaxLng: 2}, 10); !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Errorf("expected ErrInvalidCoordinate for inverted box, got %v", err)
	}

	ds, err := svc.ListInBounds(ctx, domain.Bounds{MinLat: 0, MinLng: 0, MaxLat: 1, MaxLng: 1}, 9999)
	if err != nil || len(ds) != 1 {
		t.Fatalf("unexpected result %v %v", ds, err)
	}
	if gotLimit != 500 {
		t.Errorf("expected limit clamped to 500, got %d", gotLimit)
	}
}

func TestDemarcationService_Delete_InvalidatesCache(t *testing.T) {
	deleted := ""
	repo := &mockDemarcationRepo{
		getByIDFn: func(ctx context.Context, id string) (*domain.Demarcation, error) {
			return &domain.Demarcation{ID: id, ProducerID: "p9"}, nil
		},
		deleteFn: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	cache := newMapCache()
	svc, _, _ := newService(repo, cache)

	if err := svc.Delete(context.Background(), "d1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != "d1" {
		t.Errorf("expected d1 deleted, got %q", deleted)
	}
	want := map[string]bool{usecases.DemarcationCacheKey("d1"): true, usecases.ProducerCacheKey("p9"): true}
	for _, k := range cache.deleted {
		delete(want, k)
	}
	if len(want) != 0 {
		t.Errorf("cache keys not invalidated: %v", want)
	}
}

func TestMeasure(t *testing.T) {
	square := []domain.GeoPoint{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 0.001}, {Lat: 0.001, Lng: 0.001}, {Lat: 0.001, Lng: 0}}

	m, err := usecases.Measure(square, geospatial.AreaPlanar)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := 1e-6 * 111320 * 111320 / 10000
	if math.Abs(m.AreaHectares-want) > 1e-9 {
		t.Errorf("expected %v ha, got %v", want, m.AreaHectares)
	}
	if m.Points != 4 || math.Abs(m.Centroid.Lat-0.0005) > 1e-12 {
		t.Errorf("unexpected measurement %+v", m)
	}

	if _, err := usecases.Measure([]domain.GeoPoint{{Lat: 0, Lng: 500}}, geospatial.AreaPlanar); !errors.Is(err, domain.ErrInvalidCoordinate) {
		t.Errorf("expected ErrInvalidCoordinate, got %v", err)
	}
}

func TestRepositoryPersister(t *testing.T) {
	var stored *domain.Demarcation
	repo := &mockDemarcationRepo{
		createFn: func(ctx context.Context, d *domain.Demarcation) error {
			stored = d
			return nil
		},
	}
	cache := newMapCache()
	cache.data[usecases.ProducerCacheKey("p1")] = []byte("[]")
	pub := &mockPublisher{savedFn: func(context.Context, *domain.Demarcation) error {
		return errors.New("broker down")
	}}

	p := usecases.NewRepositoryPersister(repo, cache, pub)
	d := &domain.Demarcation{ID: "d1", ProducerID: "p1"}
	if err := p.Persist(context.Background(), d); err != nil {
		t.Fatalf("publish failure must not fail persist: %v", err)
	}
	if stored != d {
		t.Error("expected record stored")
	}
	if _, ok := cache.data[usecases.ProducerCacheKey("p1")]; ok {
		t.Error("producer list must be invalidated")
	}
	if len(pub.saved) != 1 {
		t.Error("expected saved event published")
	}
}

func TestRepositoryPersister_StoreFailure(t *testing.T) {
	repo := &mockDemarcationRepo{
		createFn: func(ctx context.Context, d *domain.Demarcation) error {
			return errors.New("constraint violation")
		},
	}
	pub := &mockPublisher{}
	p := usecases.NewRepositoryPersister(repo, nil, pub)

	if err := p.Persist(context.Background(), &domain.Demarcation{ID: "d1"}); err == nil {
		t.Fatal("expected error")
	}
	if len(pub.saved) != 0 {
		t.Error("nothing must be published when the store fails")
	}
}

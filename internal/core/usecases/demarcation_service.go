package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
	"github.com/samirrijal/agrodemarc/internal/core/ports"
	"github.com/samirrijal/agrodemarc/internal/pkg/geospatial"
	"github.com/samirrijal/agrodemarc/internal/pkg/metrics"
	"github.com/samirrijal/agrodemarc/internal/pkg/telemetry"
)

const (
	demarcationTTL = 600 // seconds
	producerTTL    = 300

	maxBoundsResults = 500
)

// DemarcationCacheKey is the cache key of a single saved demarcation.
func DemarcationCacheKey(id string) string { return "demarcations:id:" + id }

// ProducerCacheKey is the cache key of a producer's demarcation list.
func ProducerCacheKey(producerID string) string { return "demarcations:producer:" + producerID }

// ServiceDeps wires the demarcation service. Cache, Notifier and Listeners are optional.
type ServiceDeps struct {
	Repo      ports.DemarcationRepository
	Cache     ports.CacheService
	Positions ports.PositionSource
	Scheduler ports.Scheduler
	Persister ports.DemarcationPersister
	Notifier  ports.Notifier
	Listeners []ports.SessionListener
	Capture   CaptureConfig
}

// DemarcationService owns the open capture sessions and serves saved
// demarcations.
type DemarcationService struct {
	deps ServiceDeps

	mu       sync.RWMutex
	sessions map[string]*CaptureSession
}

// NewDemarcationService creates a new DemarcationService.
func NewDemarcationService(deps ServiceDeps) *DemarcationService {
	return &DemarcationService{deps: deps, sessions: make(map[string]*CaptureSession)}
}

// CaptureConfig returns the configuration new sessions are created with.
func (s *DemarcationService) CaptureConfig() CaptureConfig { return s.deps.Capture }

// StartSession opens a capture session for a producer.
func (s *DemarcationService) StartSession(ctx context.Context, producerID string) (*CaptureSession, error) {
	producerID = strings.TrimSpace(producerID)
	if producerID == "" {
		return nil, fmt.Errorf("%w: producer id must not be empty", domain.ErrInvalidArgument)
	}

	id := uuid.NewString()
	sess := NewCaptureSession(id, producerID, s.deps.Capture, SessionDeps{
		Positioner: s.deps.Positions.ForSession(id),
		Scheduler:  s.deps.Scheduler,
		Persister:  s.deps.Persister,
		Notifier:   s.deps.Notifier,
		Listeners:  s.deps.Listeners,
		OnSaved: func(d *domain.Demarcation) {
			slog.Info("demarcation saved",
				"session_id", id, "demarcation_id", d.ID, "producer_id", d.ProducerID,
				"area_ha", d.AreaHectares, "points", len(d.Points))
		},
	})

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	metrics.ActiveSessions.Inc()

	slog.InfoContext(ctx, "capture session started", "session_id", id, "producer_id", producerID)
	return sess, nil
}

// Session returns an open session.
func (s *DemarcationService) Session(id string) (*CaptureSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	return sess, nil
}

// Sessions returns the number of open sessions.
func (s *DemarcationService) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// CloseSession tears a session down and releases its position feed.
func (s *DemarcationService) CloseSession(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}

	sess.Close(ctx)
	s.deps.Positions.Release(id)
	metrics.ActiveSessions.Dec()
	slog.InfoContext(ctx, "capture session closed", "session_id", id)
	return nil
}

// SaveSession saves a session's polygon and closes the session on success.
// A rejected or failed save leaves the session open for correction.
func (s *DemarcationService) SaveSession(ctx context.Context, id string) (*domain.Demarcation, error) {
	sess, err := s.Session(id)
	if err != nil {
		return nil, err
	}
	d, err := sess.Save(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.CloseSession(ctx, id); err != nil {
		slog.WarnContext(ctx, "session already closed after save", "session_id", id)
	}
	return d, nil
}

// Shutdown closes every open session.
func (s *DemarcationService) Shutdown(ctx context.Context) {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		_ = s.CloseSession(ctx, id)
	}
}

// Get returns a saved demarcation.
func (s *DemarcationService) Get(ctx context.Context, id string) (*domain.Demarcation, error) {
	ctx, span := tracer.Start(ctx, "DemarcationService.Get")
	defer span.End()
	span.SetAttributes(telemetry.KeyDemarcationID.String(id))

	cacheKey := DemarcationCacheKey(id)
	if s.deps.Cache != nil {
		if data, err := s.deps.Cache.Get(ctx, cacheKey); err == nil {
			var d domain.Demarcation
			if err := json.Unmarshal(data, &d); err == nil {
				metrics.CacheHits.WithLabelValues("demarcation").Inc()
				return &d, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("demarcation").Inc()
	}

	d, err := s.deps.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.deps.Cache != nil {
		if data, err := json.Marshal(d); err == nil {
			_ = s.deps.Cache.Set(ctx, cacheKey, data, demarcationTTL)
		}
	}
	return d, nil
}

// ListByProducer returns every demarcation saved for a producer, newest first.
func (s *DemarcationService) ListByProducer(ctx context.Context, producerID string) ([]domain.Demarcation, error) {
	if strings.TrimSpace(producerID) == "" {
		return nil, fmt.Errorf("%w: producer id must not be empty", domain.ErrInvalidArgument)
	}

	cacheKey := ProducerCacheKey(producerID)
	if s.deps.Cache != nil {
		if data, err := s.deps.Cache.Get(ctx, cacheKey); err == nil {
			var ds []domain.Demarcation
			if err := json.Unmarshal(data, &ds); err == nil {
				metrics.CacheHits.WithLabelValues("producer").Inc()
				return ds, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("producer").Inc()
	}

	ds, err := s.deps.Repo.ListByProducer(ctx, producerID)
	if err != nil {
		return nil, err
	}

	if s.deps.Cache != nil {
		if data, err := json.Marshal(ds); err == nil {
			_ = s.deps.Cache.Set(ctx, cacheKey, data, producerTTL)
		}
	}
	return ds, nil
}

// ListInBounds returns demarcations whose extent intersects the viewport.
func (s *DemarcationService) ListInBounds(ctx context.Context, b domain.Bounds, limit int) ([]domain.Demarcation, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > maxBoundsResults {
		limit = maxBoundsResults
	}
	return s.deps.Repo.ListInBounds(ctx, b, limit)
}

// Delete removes a saved demarcation and drops its cache entries.
func (s *DemarcationService) Delete(ctx context.Context, id string) error {
	d, err := s.deps.Repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.deps.Repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete demarcation %s: %w", id, err)
	}
	if s.deps.Cache != nil {
		_ = s.deps.Cache.Delete(ctx, DemarcationCacheKey(id), ProducerCacheKey(d.ProducerID))
	}
	return nil
}

// Measurement is the result of a stateless polygon measurement.
type Measurement struct {
	Points          int             `json:"points"`
	AreaHectares    float64         `json:"area_hectares"`
	PerimeterMeters float64         `json:"perimeter_meters"`
	Centroid        domain.GeoPoint `json:"centroid"`
}

// Measure computes area and perimeter for an outline without opening a session.
func (s *DemarcationService) Measure(points []domain.GeoPoint) (Measurement, error) {
	return Measure(points, s.deps.Capture.AreaMethod)
}

// Measure computes area and perimeter of an outline given in vertex order.
func Measure(points []domain.GeoPoint, method geospatial.AreaMethod) (Measurement, error) {
	gps := make([]domain.GpsPoint, len(points))
	for i, p := range points {
		if err := p.Validate(); err != nil {
			return Measurement{}, fmt.Errorf("point %d: %w", i+1, err)
		}
		gps[i] = domain.GpsPoint{Lat: p.Lat, Lng: p.Lng}
	}
	ring := ringOf(gps)
	c := geospatial.Centroid(ring)
	return Measurement{
		Points:          len(points),
		AreaHectares:    geospatial.AreaFunc(method)(ring),
		PerimeterMeters: geospatial.PerimeterMeters(ring),
		Centroid:        domain.GeoPoint{Lat: c.Lat(), Lng: c.Lon()},
	}, nil
}

// RepositoryPersister stores saved demarcations directly and announces them.
type RepositoryPersister struct {
	repo   ports.DemarcationRepository
	cache  ports.CacheService
	events ports.EventPublisher
}

// NewRepositoryPersister creates a persister. cache and events may be nil.
func NewRepositoryPersister(repo ports.DemarcationRepository, cache ports.CacheService, events ports.EventPublisher) *RepositoryPersister {
	return &RepositoryPersister{repo: repo, cache: cache, events: events}
}

// Persist implements ports.DemarcationPersister.
func (p *RepositoryPersister) Persist(ctx context.Context, d *domain.Demarcation) error {
	if err := p.repo.Create(ctx, d); err != nil {
		return fmt.Errorf("store demarcation: %w", err)
	}
	if p.cache != nil {
		_ = p.cache.Delete(ctx, ProducerCacheKey(d.ProducerID))
	}
	if p.events != nil {
		if err := p.events.PublishDemarcationSaved(ctx, d); err != nil {
			slog.WarnContext(ctx, "publish demarcation saved failed", "demarcation_id", d.ID, "error", err)
		}
	}
	return nil
}

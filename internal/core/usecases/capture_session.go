package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
	"github.com/samirrijal/agrodemarc/internal/core/ports"
	"github.com/samirrijal/agrodemarc/internal/pkg/geospatial"
	"github.com/samirrijal/agrodemarc/internal/pkg/metrics"
	"github.com/samirrijal/agrodemarc/internal/pkg/telemetry"
)

var tracer = otel.Tracer("github.com/samirrijal/agrodemarc/internal/core/usecases")

// LateFixPolicy decides what happens to a walking-mode fix that arrives after
// walking was stopped.
type LateFixPolicy string

const (
	LateFixKeep    LateFixPolicy = "keep"
	LateFixDiscard LateFixPolicy = "discard"
)

// ParseLateFixPolicy accepts "keep" or "discard".
func ParseLateFixPolicy(s string) (LateFixPolicy, error) {
	switch LateFixPolicy(s) {
	case LateFixKeep, LateFixDiscard:
		return LateFixPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown late fix policy %q", s)
	}
}

// CaptureConfig tunes capture sessions.
type CaptureConfig struct {
	WalkingInterval       time.Duration
	PositionTimeout       time.Duration
	AccuracyWarningMeters float64
	ManualAccuracyMeters  float64
	LateFixPolicy         LateFixPolicy
	AreaMethod            geospatial.AreaMethod
}

// DefaultCaptureConfig mirrors the field app: 5 s walking ticks, 10 s
// position timeout, warning above 10 m, 5 m nominal accuracy for placed points.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		WalkingInterval:       5 * time.Second,
		PositionTimeout:       10 * time.Second,
		AccuracyWarningMeters: 10,
		ManualAccuracyMeters:  5,
		LateFixPolicy:         LateFixKeep,
		AreaMethod:            geospatial.AreaPlanar,
	}
}

// SessionDeps are the collaborators of a capture session. Notifier, Listeners,
// OnSaved, Now and NewID are optional.
type SessionDeps struct {
	Positioner ports.Positioner
	Scheduler  ports.Scheduler
	Persister  ports.DemarcationPersister
	Notifier   ports.Notifier
	Listeners  []ports.SessionListener
	OnSaved    func(d *domain.Demarcation)
	Now        func() time.Time
	NewID      func() string
}

var errLateFixDiscarded = errors.New("late walking fix discarded")

// CaptureSession owns the point sequence of one in-progress demarcation.
type CaptureSession struct {
	id         string
	producerID string
	cfg        CaptureConfig
	deps       SessionDeps
	area       func(orb.Ring) float64

	// inflight serializes position acquisitions.
	inflight *semaphore.Weighted

	// tickCtx parents acquisitions started by walking ticks; cancelled on Close.
	tickCtx    context.Context
	cancelTick context.CancelFunc

	mu        sync.Mutex
	points    []domain.GpsPoint
	mode      domain.CaptureMode
	version   uint64
	closed    bool
	// saving is set while a save is persisting; saved once it succeeded.
	// Both freeze the point sequence.
	saving    bool
	saved     bool
	walkEpoch uint64
	stopWalk  func()
}

// NewCaptureSession creates a session in manual mode with no points.
func NewCaptureSession(id, producerID string, cfg CaptureConfig, deps SessionDeps) *CaptureSession {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	tickCtx, cancel := context.WithCancel(context.Background())
	return &CaptureSession{
		id:         id,
		producerID: producerID,
		cfg:        cfg,
		deps:       deps,
		area:       geospatial.AreaFunc(cfg.AreaMethod),
		inflight:   semaphore.NewWeighted(1),
		tickCtx:    tickCtx,
		cancelTick: cancel,
		mode:       domain.ModeManual,
	}
}

// ID returns the session identifier.
func (s *CaptureSession) ID() string { return s.id }

// ProducerID returns the producer the parcel belongs to.
func (s *CaptureSession) ProducerID() string { return s.producerID }

// AddPoint appends a vertex. With explicit coordinates the point is placed
// directly; with nil the current device position is acquired first. On any
// failure the sequence is left unchanged.
func (s *CaptureSession) AddPoint(ctx context.Context, at *domain.GeoPoint) (domain.GpsPoint, error) {
	if err := s.checkWritable(); err != nil {
		return domain.GpsPoint{}, err
	}

	if at != nil {
		if err := at.Validate(); err != nil {
			s.notify(ctx, domain.NotifyError, domain.CodeInvalidLocation, err.Error())
			return domain.GpsPoint{}, err
		}
		fix := domain.Fix{
			Lat:       at.Lat,
			Lng:       at.Lng,
			Accuracy:  s.cfg.ManualAccuracyMeters,
			Timestamp: s.deps.Now(),
		}
		return s.appendFix(ctx, fix, domain.ModeManual, 0)
	}

	if err := s.inflight.Acquire(ctx, 1); err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrPositionUnavailable, err)
		s.captureFailed(ctx, domain.ModeManual, err)
		return domain.GpsPoint{}, err
	}
	defer s.inflight.Release(1)

	return s.acquireAndAppend(ctx, domain.ModeManual, 0)
}

// RemoveLastPoint drops the most recent vertex. It is a no-op on an empty
// sequence and reports whether a point was removed.
func (s *CaptureSession) RemoveLastPoint(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return false, err
	}
	if len(s.points) == 0 {
		return false, nil
	}
	s.points = s.points[:len(s.points)-1]
	s.emitLocked(ctx)
	return true, nil
}

// ClearAllPoints empties the sequence.
func (s *CaptureSession) ClearAllPoints(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return err
	}
	if len(s.points) == 0 {
		return nil
	}
	s.points = nil
	s.emitLocked(ctx)
	return nil
}

// ToggleWalkingMode switches between manual and walking capture and returns
// the new mode. Walking schedules a device capture every WalkingInterval.
func (s *CaptureSession) ToggleWalkingMode(ctx context.Context) (domain.CaptureMode, error) {
	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return "", err
	}

	var cancel func()
	if s.mode == domain.ModeWalking {
		cancel = s.stopWalkingLocked()
	} else {
		s.startWalkingLocked()
	}
	mode := s.mode
	s.emitLocked(ctx)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if mode == domain.ModeWalking {
		s.notify(ctx, domain.NotifySuccess, domain.CodeWalkingStarted,
			fmt.Sprintf("Walking mode started: capturing a point every %s", s.cfg.WalkingInterval))
	} else {
		s.notify(ctx, domain.NotifySuccess, domain.CodeWalkingStopped, "Walking mode stopped")
	}
	return mode, nil
}

// SetMode switches to the given mode; setting the current mode is a no-op.
func (s *CaptureSession) SetMode(ctx context.Context, mode domain.CaptureMode) (domain.CaptureMode, error) {
	if _, err := domain.ParseCaptureMode(string(mode)); err != nil {
		return "", err
	}
	current, err := s.Mode()
	if err != nil {
		return "", err
	}
	if current == mode {
		return current, nil
	}
	return s.ToggleWalkingMode(ctx)
}

// Save validates the sequence, computes the final metrics and hands the
// record to the persister. The sequence is frozen while the record persists;
// a concurrent Save gets ErrSaveInProgress. After a successful save the
// session accepts no further changes, and a failed one unfreezes it.
func (s *CaptureSession) Save(ctx context.Context) (*domain.Demarcation, error) {
	ctx, span := tracer.Start(ctx, "CaptureSession.Save")
	defer span.End()
	span.SetAttributes(telemetry.KeySessionID.String(s.id), telemetry.KeyProducerID.String(s.producerID))

	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	points := slices.Clone(s.points)
	if len(points) >= domain.MinPolygonPoints {
		s.saving = true
	}
	s.mu.Unlock()

	if len(points) < domain.MinPolygonPoints {
		metrics.SavesRejected.Inc()
		s.notify(ctx, domain.NotifyWarning, domain.CodeInsufficient,
			fmt.Sprintf("At least %d points are required to save a demarcation", domain.MinPolygonPoints))
		return nil, fmt.Errorf("%w: have %d, need %d", domain.ErrInsufficientPoints, len(points), domain.MinPolygonPoints)
	}

	ring := ringOf(points)
	d := &domain.Demarcation{
		ID:              s.deps.NewID(),
		ProducerID:      s.producerID,
		Points:          points,
		AreaHectares:    s.area(ring),
		PerimeterMeters: geospatial.PerimeterMeters(ring),
		Bounds:          domain.BoundsOf(points),
		CreatedAt:       s.deps.Now().UTC(),
	}

	err := s.deps.Persister.Persist(ctx, d)
	s.mu.Lock()
	s.saving = false
	s.saved = err == nil
	s.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist failed")
		s.notify(ctx, domain.NotifyError, domain.CodeSaveFailed, "Could not save the demarcation")
		return nil, fmt.Errorf("persist demarcation: %w", err)
	}

	metrics.DemarcationsSaved.Inc()
	span.SetAttributes(
		telemetry.KeyDemarcationID.String(d.ID),
		telemetry.KeyAreaHectares.Float64(d.AreaHectares),
		telemetry.KeyPointCount.Int(len(d.Points)),
	)
	s.notify(ctx, domain.NotifySuccess, domain.CodeSaved,
		fmt.Sprintf("Demarcation saved: %.2f ha, %.0f m perimeter", d.AreaHectares, d.PerimeterMeters))

	if s.deps.OnSaved != nil {
		s.deps.OnSaved(d)
	}
	return d, nil
}

// Close tears the session down: the walking timer is cancelled and listeners
// are told to release their resources. Close is idempotent.
func (s *CaptureSession) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var cancel func()
	if s.mode == domain.ModeWalking {
		cancel = s.stopWalkingLocked()
	}
	s.closed = true
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.cancelTick()

	for _, l := range s.deps.Listeners {
		l.SessionClosed(ctx, s.id)
	}
}

// Snapshot returns the current state without modifying it.
func (s *CaptureSession) Snapshot() domain.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Points returns a copy of the sequence.
func (s *CaptureSession) Points() []domain.GpsPoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.points)
}

// Area returns the current area in hectares (0 below three points).
func (s *CaptureSession) Area() float64 {
	return s.area(ringOf(s.Points()))
}

// Perimeter returns the current perimeter in meters (0 below two points).
func (s *CaptureSession) Perimeter() float64 {
	return geospatial.PerimeterMeters(ringOf(s.Points()))
}

// Mode returns the active capture mode.
func (s *CaptureSession) Mode() (domain.CaptureMode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.saved {
		return "", domain.ErrSessionClosed
	}
	return s.mode, nil
}

// tick is the walking timer callback for the activation identified by epoch.
func (s *CaptureSession) tick(epoch uint64) {
	s.mu.Lock()
	active := !s.closed && s.mode == domain.ModeWalking && s.walkEpoch == epoch
	s.mu.Unlock()
	if !active {
		return
	}

	if !s.inflight.TryAcquire(1) {
		metrics.WalkingTicksSkipped.Inc()
		slog.Debug("walking tick skipped, acquisition in flight", "session_id", s.id)
		return
	}
	defer s.inflight.Release(1)

	if _, err := s.acquireAndAppend(s.tickCtx, domain.ModeWalking, epoch); err != nil {
		slog.Debug("walking capture failed", "session_id", s.id, "error", err)
	}
}

func (s *CaptureSession) acquireAndAppend(ctx context.Context, source domain.CaptureMode, epoch uint64) (domain.GpsPoint, error) {
	actx, cancel := context.WithTimeout(ctx, s.cfg.PositionTimeout)
	fix, err := s.deps.Positioner.GetCurrentPosition(actx)
	cancel()
	if err == nil {
		err = (domain.GeoPoint{Lat: fix.Lat, Lng: fix.Lng}).Validate()
	}
	if err != nil {
		if !errors.Is(err, domain.ErrPositionUnavailable) {
			err = fmt.Errorf("%w: %v", domain.ErrPositionUnavailable, err)
		}
		s.captureFailed(ctx, source, err)
		return domain.GpsPoint{}, err
	}
	return s.appendFix(ctx, fix, source, epoch)
}

func (s *CaptureSession) appendFix(ctx context.Context, fix domain.Fix, source domain.CaptureMode, epoch uint64) (domain.GpsPoint, error) {
	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return domain.GpsPoint{}, err
	}
	if source == domain.ModeWalking && s.cfg.LateFixPolicy == LateFixDiscard &&
		(s.mode != domain.ModeWalking || s.walkEpoch != epoch) {
		s.mu.Unlock()
		slog.Debug("discarding late walking fix", "session_id", s.id)
		return domain.GpsPoint{}, errLateFixDiscarded
	}

	capturedAt := fix.Timestamp
	if capturedAt.IsZero() {
		capturedAt = s.deps.Now()
	}
	p := domain.GpsPoint{
		ID:         s.deps.NewID(),
		Lat:        fix.Lat,
		Lng:        fix.Lng,
		Accuracy:   fix.Accuracy,
		CapturedAt: capturedAt.UTC(),
	}
	s.points = append(s.points, p)
	index := len(s.points)
	s.emitLocked(ctx)
	s.mu.Unlock()

	metrics.PointsCaptured.WithLabelValues(string(source)).Inc()
	if p.Accuracy > s.cfg.AccuracyWarningMeters {
		metrics.LowAccuracyWarnings.Inc()
		s.notify(ctx, domain.NotifyWarning, domain.CodeLowAccuracy,
			fmt.Sprintf("Low GPS accuracy: %.0f m", p.Accuracy))
	}
	s.notify(ctx, domain.NotifySuccess, domain.CodePointCaptured, fmt.Sprintf("Point %d captured", index))
	return p, nil
}

func (s *CaptureSession) startWalkingLocked() {
	s.walkEpoch++
	epoch := s.walkEpoch
	s.mode = domain.ModeWalking
	s.stopWalk = s.deps.Scheduler.Every(s.cfg.WalkingInterval, func() { s.tick(epoch) })
	metrics.WalkingSessions.Inc()
}

// stopWalkingLocked switches to manual and returns the timer's cancel func,
// which the caller must invoke after releasing s.mu.
func (s *CaptureSession) stopWalkingLocked() func() {
	s.walkEpoch++
	s.mode = domain.ModeManual
	cancel := s.stopWalk
	s.stopWalk = nil
	metrics.WalkingSessions.Dec()
	return cancel
}

func (s *CaptureSession) emitLocked(ctx context.Context) {
	s.version++
	snap := s.snapshotLocked()
	for _, l := range s.deps.Listeners {
		l.SequenceChanged(ctx, snap)
	}
}

func (s *CaptureSession) snapshotLocked() domain.SessionSnapshot {
	points := slices.Clone(s.points)
	ring := ringOf(points)
	return domain.SessionSnapshot{
		SessionID:       s.id,
		ProducerID:      s.producerID,
		Mode:            s.mode,
		Points:          points,
		AreaHectares:    s.area(ring),
		PerimeterMeters: geospatial.PerimeterMeters(ring),
		Version:         s.version,
		Closed:          s.closed,
	}
}

func (s *CaptureSession) checkWritable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writableLocked()
}

func (s *CaptureSession) writableLocked() error {
	switch {
	case s.closed, s.saved:
		return domain.ErrSessionClosed
	case s.saving:
		return domain.ErrSaveInProgress
	}
	return nil
}

func (s *CaptureSession) captureFailed(ctx context.Context, source domain.CaptureMode, err error) {
	metrics.CaptureFailures.WithLabelValues(string(source)).Inc()
	slog.WarnContext(ctx, "position acquisition failed", "session_id", s.id, "mode", source, "error", err)
	s.notify(ctx, domain.NotifyError, domain.CodeCaptureFailed, "Could not get the current location")
}

func (s *CaptureSession) notify(ctx context.Context, kind domain.NotificationKind, code, msg string) {
	if s.deps.Notifier == nil {
		return
	}
	n := domain.Notification{
		SessionID: s.id,
		Kind:      kind,
		Code:      code,
		Message:   msg,
		Time:      s.deps.Now().UTC(),
	}
	if err := s.deps.Notifier.Notify(ctx, n); err != nil {
		slog.WarnContext(ctx, "notification delivery failed", "session_id", s.id, "code", code, "error", err)
	}
}

func ringOf(points []domain.GpsPoint) orb.Ring {
	ring := make(orb.Ring, len(points))
	for i, p := range points {
		ring[i] = geospatial.Point(p.Lat, p.Lng)
	}
	return ring
}

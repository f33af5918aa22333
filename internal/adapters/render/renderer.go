// Package render turns capture session snapshots into map frames.
package render

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-polyline"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
	"github.com/samirrijal/agrodemarc/internal/pkg/geospatial"
)

// Marker is one numbered vertex on the map.
type Marker struct {
	Label    string  `json:"label"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy"`
}

// Frame is everything a map client needs to draw a session.
type Frame struct {
	SessionID       string                     `json:"session_id"`
	Version         uint64                     `json:"version"`
	Mode            domain.CaptureMode         `json:"mode"`
	Markers         []Marker                   `json:"markers"`
	Polyline        string                     `json:"polyline"`
	Features        *geojson.FeatureCollection `json:"features"`
	AreaHectares    float64                    `json:"area_hectares"`
	PerimeterMeters float64                    `json:"perimeter_meters"`
	Cleared         bool                       `json:"cleared,omitempty"`
}

// Render builds a frame from a snapshot. Markers are labelled from 1, the
// connecting line follows capture order and the polygon appears from three
// points on.
func Render(snap domain.SessionSnapshot) Frame {
	f := Frame{
		SessionID:       snap.SessionID,
		Version:         snap.Version,
		Mode:            snap.Mode,
		Markers:         make([]Marker, len(snap.Points)),
		Features:        geojson.NewFeatureCollection(),
		AreaHectares:    snap.AreaHectares,
		PerimeterMeters: snap.PerimeterMeters,
	}

	line := make(orb.LineString, len(snap.Points))
	coords := make([][]float64, len(snap.Points))
	for i, p := range snap.Points {
		label := strconv.Itoa(i + 1)
		f.Markers[i] = Marker{Label: label, Lat: p.Lat, Lng: p.Lng, Accuracy: p.Accuracy}
		line[i] = geospatial.Point(p.Lat, p.Lng)
		coords[i] = []float64{p.Lat, p.Lng}

		marker := geojson.NewFeature(line[i])
		marker.Properties["kind"] = "marker"
		marker.Properties["label"] = label
		f.Features.Append(marker)
	}

	if len(line) >= 2 {
		path := geojson.NewFeature(line)
		path.Properties["kind"] = "line"
		f.Features.Append(path)
	}
	if len(line) >= domain.MinPolygonPoints {
		poly := geojson.NewFeature(orb.Polygon{geospatial.Closed(orb.Ring(line))})
		poly.Properties["kind"] = "polygon"
		poly.Properties["area_hectares"] = snap.AreaHectares
		f.Features.Append(poly)
	}
	f.Polyline = string(polyline.EncodeCoords(coords))
	return f
}

// FrameSink receives encoded frames, usually the NATS publisher.
type FrameSink interface {
	PublishFrame(ctx context.Context, sessionID string, frame []byte) error
}

const publishTimeout = 5 * time.Second

// Layer is the render state owned by one session. With a sink attached, a
// per-layer goroutine publishes the newest frame; frames superseded while a
// publish is in flight are skipped.
type Layer struct {
	mu      sync.Mutex
	frame   Frame
	pending *outgoing
	final   bool
	wake    chan struct{}
}

type outgoing struct {
	ctx   context.Context
	frame Frame
}

// Frame returns the last frame drawn on the layer.
func (l *Layer) Frame() Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frame
}

// set stores f unless a newer version is already drawn.
func (l *Layer) set(f Frame) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f.Version < l.frame.Version {
		return false
	}
	l.frame = f
	return true
}

func (l *Layer) enqueue(ctx context.Context, f Frame, final bool) {
	if l.wake == nil {
		return
	}
	l.mu.Lock()
	l.pending = &outgoing{ctx: context.WithoutCancel(ctx), frame: f}
	l.final = l.final || final
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Layer) next() (*outgoing, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.pending
	l.pending = nil
	return out, l.final
}

// MapRenderer implements ports.SessionListener. It keeps one layer per
// session and forwards frames to the sink off the caller's goroutine, so a
// slow broker never holds up the session. It never touches sessions.
type MapRenderer struct {
	sink FrameSink
	wg   sync.WaitGroup

	mu     sync.Mutex
	layers map[string]*Layer
}

// NewMapRenderer creates a renderer. sink may be nil.
func NewMapRenderer(sink FrameSink) *MapRenderer {
	return &MapRenderer{sink: sink, layers: make(map[string]*Layer)}
}

// SequenceChanged redraws the session's layer.
func (r *MapRenderer) SequenceChanged(ctx context.Context, snap domain.SessionSnapshot) {
	f := Render(snap)
	l := r.layer(snap.SessionID)
	if l.set(f) {
		l.enqueue(ctx, f, false)
	}
}

// SessionClosed releases the session's layer.
func (r *MapRenderer) SessionClosed(ctx context.Context, sessionID string) {
	r.Release(ctx, sessionID)
}

// Release drops the layer and tells clients to wipe it. The layer's
// publisher exits after sending the cleared frame.
func (r *MapRenderer) Release(ctx context.Context, sessionID string) {
	r.mu.Lock()
	l, ok := r.layers[sessionID]
	delete(r.layers, sessionID)
	r.mu.Unlock()
	if !ok {
		return
	}
	l.enqueue(ctx, Frame{
		SessionID: sessionID,
		Markers:   []Marker{},
		Features:  geojson.NewFeatureCollection(),
		Cleared:   true,
	}, true)
}

// Close releases every layer and waits for pending frames to be published
// or for ctx to end.
func (r *MapRenderer) Close(ctx context.Context) error {
	r.mu.Lock()
	ids := make([]string, 0, len(r.layers))
	for id := range r.layers {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		r.Release(ctx, id)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Layer returns the session's layer if it has been drawn.
func (r *MapRenderer) Layer(sessionID string) (*Layer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.layers[sessionID]
	return l, ok
}

func (r *MapRenderer) layer(sessionID string) *Layer {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.layers[sessionID]
	if !ok {
		l = &Layer{}
		if r.sink != nil {
			l.wake = make(chan struct{}, 1)
			r.wg.Add(1)
			go r.run(l)
		}
		r.layers[sessionID] = l
	}
	return l
}

func (r *MapRenderer) run(l *Layer) {
	defer r.wg.Done()
	for range l.wake {
		out, final := l.next()
		if out != nil {
			r.publish(out.ctx, out.frame)
		}
		if final {
			return
		}
	}
}

func (r *MapRenderer) publish(ctx context.Context, f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		slog.ErrorContext(ctx, "encode frame", "session_id", f.SessionID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := r.sink.PublishFrame(ctx, f.SessionID, data); err != nil {
		slog.WarnContext(ctx, "publish frame failed", "session_id", f.SessionID, "error", err)
	}
}

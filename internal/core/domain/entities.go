package domain

import (
	"fmt"
	"time"
)

// MinPolygonPoints is the number of vertices required for a polygon with area.
const MinPolygonPoints = 3

// GpsPoint is one captured vertex. Points are immutable once created.
type GpsPoint struct {
	ID         string    `json:"id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Accuracy   float64   `json:"accuracy"` // meters, device-reported horizontal error
	CapturedAt time.Time `json:"captured_at"`
}

// Location returns the point's coordinate.
func (p GpsPoint) Location() GeoPoint {
	return GeoPoint{Lat: p.Lat, Lng: p.Lng}
}

// Fix is a position reading returned by a positioning source.
type Fix struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
}

// CaptureMode selects how points enter a session.
type CaptureMode string

const (
	ModeManual  CaptureMode = "manual"
	ModeWalking CaptureMode = "walking"
)

// ParseCaptureMode accepts "manual" or "walking".
func ParseCaptureMode(s string) (CaptureMode, error) {
	switch CaptureMode(s) {
	case ModeManual, ModeWalking:
		return CaptureMode(s), nil
	default:
		return "", fmt.Errorf("unknown capture mode %q", s)
	}
}

// SessionSnapshot is a read-only view of a capture session after a change.
// Version increases by one with every mutation.
type SessionSnapshot struct {
	SessionID       string      `json:"session_id"`
	ProducerID      string      `json:"producer_id"`
	Mode            CaptureMode `json:"mode"`
	Points          []GpsPoint  `json:"points"`
	AreaHectares    float64     `json:"area_hectares"`
	PerimeterMeters float64     `json:"perimeter_meters"`
	Version         uint64      `json:"version"`
	Closed          bool        `json:"closed"`
}

// Demarcation is a saved parcel boundary.
type Demarcation struct {
	ID              string     `json:"id"`
	ProducerID      string     `json:"producer_id"`
	Points          []GpsPoint `json:"points"`
	AreaHectares    float64    `json:"area_hectares"`
	PerimeterMeters float64    `json:"perimeter_meters"`
	Bounds          Bounds     `json:"bounds"`
	CreatedAt       time.Time  `json:"created_at"`
}

// NotificationKind classifies user-facing messages.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyWarning NotificationKind = "warning"
	NotifyError   NotificationKind = "error"
)

// Notification is a user-facing message emitted by a capture session.
type Notification struct {
	SessionID string           `json:"session_id"`
	Kind      NotificationKind `json:"kind"`
	Code      string           `json:"code"`
	Message   string           `json:"message"`
	Time      time.Time        `json:"time"`
}

// Notification codes.
const (
	CodePointCaptured   = "point_captured"
	CodeLowAccuracy     = "low_accuracy"
	CodeCaptureFailed   = "capture_failed"
	CodeInsufficient    = "insufficient_points"
	CodeSaved           = "demarcation_saved"
	CodeSaveFailed      = "save_failed"
	CodeWalkingStarted  = "walking_started"
	CodeWalkingStopped  = "walking_stopped"
	CodeInvalidLocation = "invalid_coordinate"
)

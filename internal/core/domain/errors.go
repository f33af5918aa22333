package domain

import "errors"

var (
	// ErrPositionUnavailable means the device denied or failed to provide a fix.
	ErrPositionUnavailable = errors.New("position unavailable")

	// ErrInsufficientPoints means a save was attempted with fewer than MinPolygonPoints.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrInvalidCoordinate means a latitude or longitude is out of range.
	ErrInvalidCoordinate = errors.New("invalid coordinate")

	// ErrSessionClosed is returned by operations on a torn-down capture session.
	ErrSessionClosed = errors.New("capture session closed")

	// ErrSaveInProgress is returned while a session's save is persisting.
	ErrSaveInProgress = errors.New("save in progress")

	// ErrNotFound is returned by repositories and the session registry.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument marks malformed input other than coordinates.
	ErrInvalidArgument = errors.New("invalid argument")
)

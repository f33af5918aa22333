package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/agrodemarc/internal/adapters/render"
	"github.com/samirrijal/agrodemarc/internal/core/domain"
	"github.com/samirrijal/agrodemarc/internal/pkg/metrics"
)

type startSessionRequest struct {
	ProducerID string `json:"producer_id"`
}

// StartSessionHandler opens a capture session for a producer.
func StartSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req startSessionRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		sess, err := deps.Demarcations.StartSession(c.UserContext(), req.ProducerID)
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Location("/v1/sessions/" + sess.ID())
		return c.Status(fiber.StatusCreated).JSON(sess.Snapshot())
	}
}

// GetSessionHandler returns a session's current snapshot.
func GetSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := deps.Demarcations.Session(c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(sess.Snapshot())
	}
}

// CloseSessionHandler tears a session down without saving.
func CloseSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Demarcations.CloseSession(c.UserContext(), c.Params("id")); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

type addPointRequest struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// AddPointHandler appends a vertex. With lat and lng in the body the point
// is placed explicitly; with an empty body the device position is used.
func AddPointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := deps.Demarcations.Session(c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}

		var at *domain.GeoPoint
		if len(c.Body()) > 0 {
			var req addPointRequest
			if err := c.BodyParser(&req); err != nil {
				return errBadRequest(c, "invalid request body")
			}
			switch {
			case req.Lat != nil && req.Lng != nil:
				at = &domain.GeoPoint{Lat: *req.Lat, Lng: *req.Lng}
			case req.Lat != nil || req.Lng != nil:
				return errBadRequest(c, "lat and lng must be given together")
			}
		}

		p, err := sess.AddPoint(c.UserContext(), at)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"point":   p,
			"session": sess.Snapshot(),
		})
	}
}

// RemoveLastPointHandler undoes the most recent vertex.
func RemoveLastPointHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := deps.Demarcations.Session(c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		removed, err := sess.RemoveLastPoint(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{
			"removed": removed,
			"session": sess.Snapshot(),
		})
	}
}

// ClearPointsHandler drops every vertex of a session.
func ClearPointsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := deps.Demarcations.Session(c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		if err := sess.ClearAllPoints(c.UserContext()); err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(sess.Snapshot())
	}
}

// ToggleWalkingHandler switches between manual and walking capture.
func ToggleWalkingHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := deps.Demarcations.Session(c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		mode, err := sess.ToggleWalkingMode(c.UserContext())
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"mode": mode})
	}
}

type setModeRequest struct {
	Mode string `json:"mode"`
}

// SetModeHandler sets the capture mode explicitly.
func SetModeHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req setModeRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		mode, err := domain.ParseCaptureMode(strings.ToLower(req.Mode))
		if err != nil {
			return errBadRequest(c, err.Error())
		}
		sess, err := deps.Demarcations.Session(c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		mode, err = sess.SetMode(c.UserContext(), mode)
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(fiber.Map{"mode": mode})
	}
}

type fixRequest struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Accuracy  float64   `json:"accuracy"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// PushFixHandler accepts a position reading (or a positioning failure) from
// the device walking the boundary.
func PushFixHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := deps.Demarcations.Session(id); err != nil {
			return errFromDomain(c, err)
		}

		var req fixRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		metrics.FixesReceived.WithLabelValues("http").Inc()

		if req.Error != "" {
			if err := deps.Positions.Fail(id, req.Error); err != nil {
				return errFromDomain(c, err)
			}
			return c.SendStatus(fiber.StatusAccepted)
		}
		fix := domain.Fix{Lat: req.Lat, Lng: req.Lng, Accuracy: req.Accuracy, Timestamp: req.Timestamp}
		if err := deps.Positions.Push(id, fix); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusAccepted)
	}
}

// SaveSessionHandler stores the session's polygon and closes the session.
func SaveSessionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := deps.Demarcations.SaveSession(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Location("/v1/demarcations/" + d.ID)
		return c.Status(fiber.StatusCreated).JSON(d)
	}
}

// FrameHandler returns the map frame last drawn for a session, for clients
// that poll instead of holding a websocket.
func FrameHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sess, err := deps.Demarcations.Session(c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Set("Cache-Control", "no-store")
		if deps.Renderer != nil {
			if layer, ok := deps.Renderer.Layer(sess.ID()); ok {
				return c.JSON(layer.Frame())
			}
		}
		return c.JSON(render.Render(sess.Snapshot()))
	}
}

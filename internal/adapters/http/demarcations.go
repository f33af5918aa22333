package http

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/agrodemarc/internal/adapters/export"
	"github.com/samirrijal/agrodemarc/internal/core/domain"
	"github.com/samirrijal/agrodemarc/internal/core/usecases"
	"github.com/samirrijal/agrodemarc/internal/pkg/geospatial"
)

// GetDemarcationHandler returns a saved demarcation by ID.
func GetDemarcationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := deps.Demarcations.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(d)
	}
}

// DemarcationGeoJSONHandler returns a saved demarcation as a GeoJSON feature.
func DemarcationGeoJSONHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := deps.Demarcations.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		f, err := export.Feature(d)
		if err != nil {
			return errFromDomain(c, err)
		}
		data, err := f.MarshalJSON()
		if err != nil {
			return errInternal(c, err.Error())
		}
		c.Set(fiber.HeaderContentType, export.FormatGeoJSON.ContentType())
		return c.Send(data)
	}
}

// DemarcationKMLHandler returns a saved demarcation as a KML document.
func DemarcationKMLHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		d, err := deps.Demarcations.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}
		c.Set(fiber.HeaderContentType, export.FormatKML.ContentType())
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.kml"`, d.ID))
		if err := export.WriteKML(c.Response().BodyWriter(), []domain.Demarcation{*d}); err != nil {
			return errFromDomain(c, err)
		}
		return nil
	}
}

// DeleteDemarcationHandler removes a saved demarcation.
func DeleteDemarcationHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := deps.Demarcations.Delete(c.UserContext(), c.Params("id")); err != nil {
			return errFromDomain(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DemarcationsInBoundsHandler returns demarcations overlapping a map viewport
// given as bbox=minLng,minLat,maxLng,maxLat, or around a point given as
// near=lat,lng with an optional radius in meters.
func DemarcationsInBoundsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var (
			b   domain.Bounds
			err error
		)
		if near := c.Query("near"); near != "" && c.Query("bbox") == "" {
			b, err = parseNear(near, c.QueryFloat("radius", defaultNearRadius))
		} else {
			b, err = parseBBox(c.Query("bbox"))
		}
		if err != nil {
			return errFromDomain(c, err)
		}
		ds, err := deps.Demarcations.ListInBounds(c.UserContext(), b, c.QueryInt("limit", 100))
		if err != nil {
			return errFromDomain(c, err)
		}
		if ds == nil {
			ds = []domain.Demarcation{}
		}
		return c.JSON(ds)
	}
}

// ProducerDemarcationsHandler lists a producer's demarcations, newest first,
// with offset/limit pagination.
func ProducerDemarcationsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ds, err := deps.Demarcations.ListByProducer(c.UserContext(), c.Params("id"))
		if err != nil {
			return errFromDomain(c, err)
		}

		page, pg := paginate(ds, c.QueryInt("offset", 0), c.QueryInt("limit", 50), 200)
		if page == nil {
			page = []domain.Demarcation{}
		}
		SetLinkHeaders(c, pg)
		return c.JSON(PaginatedResponse{Data: page, Pagination: pg})
	}
}

type measureRequest struct {
	Points []domain.GeoPoint `json:"points"`
	Method string            `json:"method"`
}

// MeasureHandler computes area and perimeter of an outline without storing it.
func MeasureHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req measureRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if len(req.Points) > 10000 {
			return errBadRequest(c, "too many points (max 10000)")
		}

		var (
			m   usecases.Measurement
			err error
		)
		if req.Method == "" {
			m, err = deps.Demarcations.Measure(req.Points)
		} else {
			method, perr := geospatial.ParseAreaMethod(req.Method)
			if perr != nil {
				return errBadRequest(c, perr.Error())
			}
			m, err = usecases.Measure(req.Points, method)
		}
		if err != nil {
			return errFromDomain(c, err)
		}
		return c.JSON(m)
	}
}

func parseBBox(s string) (domain.Bounds, error) {
	if s == "" {
		return domain.Bounds{}, fmt.Errorf("%w: bbox query parameter is required", domain.ErrInvalidArgument)
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return domain.Bounds{}, fmt.Errorf("%w: bbox must be minLng,minLat,maxLng,maxLat", domain.ErrInvalidArgument)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return domain.Bounds{}, fmt.Errorf("%w: bbox value %q is not a number", domain.ErrInvalidArgument, p)
		}
		v[i] = f
	}
	return domain.Bounds{MinLng: v[0], MinLat: v[1], MaxLng: v[2], MaxLat: v[3]}, nil
}

const (
	defaultNearRadius = 500.0
	maxNearRadius     = 50000.0
)

// parseNear turns "lat,lng" and a radius into the enclosing box.
func parseNear(s string, radius float64) (domain.Bounds, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return domain.Bounds{}, fmt.Errorf("%w: near must be lat,lng", domain.ErrInvalidArgument)
	}
	p := domain.GeoPoint{}
	var err error
	if p.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return domain.Bounds{}, fmt.Errorf("%w: near latitude %q is not a number", domain.ErrInvalidArgument, lat)
	}
	if p.Lng, err = strconv.ParseFloat(strings.TrimSpace(lng), 64); err != nil {
		return domain.Bounds{}, fmt.Errorf("%w: near longitude %q is not a number", domain.ErrInvalidArgument, lng)
	}
	if err := p.Validate(); err != nil {
		return domain.Bounds{}, err
	}
	if radius <= 0 || radius > maxNearRadius {
		return domain.Bounds{}, fmt.Errorf("%w: radius must be in (0, %.0f] meters", domain.ErrInvalidArgument, maxNearRadius)
	}
	minLat, minLng, maxLat, maxLng := geospatial.BoundingBox(p.Lat, p.Lng, radius)
	return domain.Bounds{MinLat: minLat, MinLng: minLng, MaxLat: maxLat, MaxLng: maxLng}, nil
}

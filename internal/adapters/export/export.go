// Package export writes saved demarcations in the formats GIS tools and
// agronomy platforms import: GeoJSON, KML and ESRI Shapefile.
package export

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
	"github.com/samirrijal/agrodemarc/internal/pkg/geospatial"
)

// Format names an export encoding.
type Format string

const (
	FormatGeoJSON   Format = "geojson"
	FormatKML       Format = "kml"
	FormatShapefile Format = "shp"
)

// ParseFormat accepts geojson, kml or shp, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatGeoJSON, FormatKML, FormatShapefile:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown export format %q", domain.ErrInvalidArgument, s)
	}
}

// ContentType returns the media type of a single-file format.
func (f Format) ContentType() string {
	switch f {
	case FormatGeoJSON:
		return "application/geo+json"
	case FormatKML:
		return "application/vnd.google-earth.kml+xml"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	return string(f)
}

// outline returns the closed boundary ring in the requested winding order.
func outline(d *domain.Demarcation, orientation orb.Orientation) (orb.Ring, error) {
	if len(d.Points) < domain.MinPolygonPoints {
		return nil, fmt.Errorf("demarcation %s: %w", d.ID, domain.ErrInsufficientPoints)
	}
	ring := make(orb.Ring, len(d.Points))
	for i, p := range d.Points {
		ring[i] = geospatial.Point(p.Lat, p.Lng)
	}
	ring = geospatial.Closed(ring)
	if ring.Orientation() != orientation {
		ring.Reverse()
	}
	return ring, nil
}

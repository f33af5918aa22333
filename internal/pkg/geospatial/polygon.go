package geospatial

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
)

// Vertex sequences in this package are orb.Ring values holding the open
// polygon outline in capture order: orb.Point{lng, lat}, with the closing
// edge from the last vertex back to the first implied.

// Point builds a vertex from latitude and longitude.
func Point(lat, lng float64) orb.Point {
	return orb.Point{lng, lat}
}

// AreaMethod selects the area estimator.
type AreaMethod string

const (
	// AreaPlanar is the shoelace estimate scaled at the first vertex's latitude.
	AreaPlanar AreaMethod = "planar"
	// AreaGeodesic is the spherical ring area.
	AreaGeodesic AreaMethod = "geodesic"
)

// ParseAreaMethod validates a configured method name.
func ParseAreaMethod(s string) (AreaMethod, error) {
	switch AreaMethod(s) {
	case AreaPlanar, AreaGeodesic:
		return AreaMethod(s), nil
	default:
		return "", fmt.Errorf("unknown area method %q", s)
	}
}

// AreaFunc returns the estimator for a method. Unknown methods fall back to planar.
func AreaFunc(m AreaMethod) func(orb.Ring) float64 {
	if m == AreaGeodesic {
		return GeodesicAreaHectares
	}
	return PlanarAreaHectares
}

// PlanarAreaHectares returns the polygon area using the shoelace formula over
// lat/lng degrees, converted to square meters with a longitude scale taken at the
// first vertex's latitude only. Accuracy degrades for parcels that span a
// large latitude range; small field parcels are the intended input.
// Fewer than three vertices yield 0.
func PlanarAreaHectares(ring orb.Ring) float64 {
	n := len(ring)
	if n < 3 {
		return 0
	}

	// Offsets from the first vertex keep the cross products small; the
	// shoelace sum is translation invariant.
	lat0, lng0 := ring[0].Lat(), ring[0].Lon()
	var sum float64
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		ai, aj := ring[i].Lat()-lat0, ring[j].Lat()-lat0
		bi, bj := ring[i].Lon()-lng0, ring[j].Lon()-lng0
		sum += ai*bj - aj*bi
	}
	raw := math.Abs(sum) / 2

	sqMeters := raw * metersPerDegree * metersPerDegree * math.Cos(toRad(lat0))
	return sqMeters / 10000
}

// GeodesicAreaHectares returns the ring area on a spherical earth.
func GeodesicAreaHectares(ring orb.Ring) float64 {
	if len(ring) < 3 {
		return 0
	}
	return geo.Area(ring) / 10000
}

// PerimeterMeters sums the great-circle length of every edge including the
// closing edge. Fewer than two vertices yield 0.
func PerimeterMeters(ring orb.Ring) float64 {
	n := len(ring)
	if n < 2 {
		return 0
	}

	var total float64
	for i := 0; i < n; i++ {
		a, b := ring[i], ring[(i+1)%n]
		total += Haversine(a.Lat(), a.Lon(), b.Lat(), b.Lon())
	}
	return total
}

// Closed returns a copy of the ring with the first vertex repeated at the end,
// as GeoJSON, KML and WKB polygons require.
func Closed(ring orb.Ring) orb.Ring {
	if len(ring) == 0 {
		return orb.Ring{}
	}
	out := make(orb.Ring, 0, len(ring)+1)
	out = append(out, ring...)
	if ring[0] != ring[len(ring)-1] {
		out = append(out, ring[0])
	}
	return out
}

// Centroid returns the planar centroid of the outline, used for map labels.
// Degenerate outlines fall back to the centroid of their vertices.
func Centroid(ring orb.Ring) orb.Point {
	if len(ring) == 0 {
		return orb.Point{}
	}
	if len(ring) < 3 {
		c, _ := planar.CentroidArea(orb.MultiPoint(ring))
		return c
	}
	c, _ := planar.CentroidArea(orb.Polygon{Closed(ring)})
	return c
}

package geospatial

import "math"

const (
	earthRadiusMeters = 6371000.0

	// metersPerDegree is the length of one degree of latitude (and of
	// longitude at the equator) used by the planar approximations.
	metersPerDegree = 111320.0
)

// Haversine returns the great-circle distance in meters between two
// coordinates on a sphere of radius 6371 km.
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	if lat1 == lat2 && lng1 == lng2 {
		return 0
	}

	sinLat := math.Sin(toRad(lat2-lat1) / 2)
	sinLng := math.Sin(toRad(lng2-lng1) / 2)
	h := sinLat*sinLat + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*sinLng*sinLng

	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// BoundingBox returns the box that encloses a circle of radiusMeters around
// a point. Longitude extent widens with latitude.
func BoundingBox(lat, lng, radiusMeters float64) (minLat, minLng, maxLat, maxLng float64) {
	dLat := radiusMeters / metersPerDegree
	dLng := radiusMeters / (metersPerDegree * math.Cos(toRad(lat)))
	return lat - dLat, lng - dLng, lat + dLat, lng + dLng
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

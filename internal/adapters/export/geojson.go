package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

// Feature converts a demarcation to a GeoJSON polygon feature with a
// counter-clockwise outer ring, as RFC 7946 recommends.
func Feature(d *domain.Demarcation) (*geojson.Feature, error) {
	ring, err := outline(d, orb.CCW)
	if err != nil {
		return nil, err
	}
	f := geojson.NewFeature(orb.Polygon{ring})
	f.ID = d.ID
	f.Properties["producer_id"] = d.ProducerID
	f.Properties["area_hectares"] = d.AreaHectares
	f.Properties["perimeter_meters"] = d.PerimeterMeters
	f.Properties["points"] = len(d.Points)
	f.Properties["created_at"] = d.CreatedAt.UTC().Format(time.RFC3339)
	return f, nil
}

// WriteGeoJSON writes a FeatureCollection with one feature per demarcation.
func WriteGeoJSON(w io.Writer, ds []domain.Demarcation) error {
	fc := geojson.NewFeatureCollection()
	for i := range ds {
		f, err := Feature(&ds[i])
		if err != nil {
			return err
		}
		fc.Append(f)
	}
	if err := json.NewEncoder(w).Encode(fc); err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	return nil
}

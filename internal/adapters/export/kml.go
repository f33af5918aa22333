package export

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/twpayne/go-kml"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

// Placemark converts a demarcation to a KML placemark holding its polygon.
func Placemark(d *domain.Demarcation) (*kml.CompoundElement, error) {
	ring, err := outline(d, orb.CCW)
	if err != nil {
		return nil, err
	}
	coords := make([]kml.Coordinate, len(ring))
	for i, p := range ring {
		coords[i] = kml.Coordinate{Lon: p.Lon(), Lat: p.Lat()}
	}
	return kml.Placemark(
		kml.Name(d.ID),
		kml.Description(fmt.Sprintf("%.2f ha, %.0f m perimeter", d.AreaHectares, d.PerimeterMeters)),
		kml.TimeStamp(kml.When(d.CreatedAt.UTC())),
		kml.ExtendedData(
			data("producer_id", d.ProducerID),
			data("area_hectares", strconv.FormatFloat(d.AreaHectares, 'f', 4, 64)),
			data("perimeter_meters", strconv.FormatFloat(d.PerimeterMeters, 'f', 2, 64)),
		),
		kml.Polygon(
			kml.OuterBoundaryIs(
				kml.LinearRing(kml.Coordinates(coords...)),
			),
		),
	), nil
}

// WriteKML writes a KML document with one placemark per demarcation.
func WriteKML(w io.Writer, ds []domain.Demarcation) error {
	doc := kml.Document(kml.Name("Demarcations"))
	for i := range ds {
		pm, err := Placemark(&ds[i])
		if err != nil {
			return err
		}
		doc.Add(pm)
	}
	if err := kml.KML(doc).WriteIndent(w, "", "  "); err != nil {
		return fmt.Errorf("encode kml: %w", err)
	}
	return nil
}

func data(name, value string) *kml.CompoundElement {
	el := kml.Data(kml.Value(value))
	el.Attr = append(el.Attr, xml.Attr{Name: xml.Name{Local: "name"}, Value: name})
	return el
}

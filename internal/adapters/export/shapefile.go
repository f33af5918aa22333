package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

// Attribute columns of the DBF table. DBF names are limited to ten characters.
var shapeFields = []shp.Field{
	shp.StringField("ID", 40),
	shp.StringField("PRODUCER", 64),
	shp.FloatField("AREA_HA", 16, 4),
	shp.FloatField("PERIM_M", 16, 2),
	shp.DateField("CREATED"),
}

// WriteShapefile writes path (.shp) with its .shx index and .dbf attribute
// table. Outer rings are clockwise, as the ESRI format requires.
func WriteShapefile(path string, ds []domain.Demarcation) error {
	rings := make([]orb.Ring, len(ds))
	for i := range ds {
		r, err := outline(&ds[i], orb.CW)
		if err != nil {
			return err
		}
		rings[i] = r
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	w, err := shp.Create(base+".shp", shp.POLYGON)
	if err != nil {
		return fmt.Errorf("create shapefile: %w", err)
	}
	err = writeShapes(w, ds, rings)
	w.Close()
	if err != nil {
		return err
	}
	return fixDBFName(base)
}

func writeShapes(w *shp.Writer, ds []domain.Demarcation, rings []orb.Ring) error {
	if err := w.SetFields(shapeFields); err != nil {
		return fmt.Errorf("set shapefile fields: %w", err)
	}
	for i, d := range ds {
		pts := make([]shp.Point, len(rings[i]))
		for j, p := range rings[i] {
			pts[j] = shp.Point{X: p.Lon(), Y: p.Lat()}
		}
		poly := shp.Polygon(*shp.NewPolyLine([][]shp.Point{pts}))
		row := int(w.Write(&poly))

		for field, value := range []any{d.ID, d.ProducerID, d.AreaHectares, d.PerimeterMeters, d.CreatedAt.UTC().Format("20060102")} {
			if err := w.WriteAttribute(row, field, value); err != nil {
				return fmt.Errorf("write attributes of %s: %w", d.ID, err)
			}
		}
	}
	return nil
}

// fixDBFName moves the attribute table go-shp v0.1.1 writes as "<base>dbf"
// to "<base>.dbf", where readers look for it.
func fixDBFName(base string) error {
	want := base + ".dbf"
	if _, err := os.Stat(want); err == nil {
		return nil
	}
	if err := os.Rename(base+"dbf", want); err != nil {
		return fmt.Errorf("rename shapefile attribute table: %w", err)
	}
	return nil
}

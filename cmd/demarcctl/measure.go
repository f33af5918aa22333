package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
	"github.com/samirrijal/agrodemarc/internal/core/usecases"
	"github.com/samirrijal/agrodemarc/internal/pkg/geospatial"
)

var measureCmd = &cobra.Command{
	Use:   "measure <file.geojson|file.csv>",
	Short: "Print area and perimeter of an outline",
	Long: "Reads an outline from a GeoJSON polygon or line, or from a CSV of lat,lng rows " +
		"in vertex order, and prints its area in hectares and its perimeter in meters.",
	Args: cobra.ExactArgs(1),
	RunE: runMeasure,
}

func init() {
	measureCmd.Flags().String("method", "", "area method: planar or geodesic (default from config)")
	measureCmd.Flags().Bool("json", false, "print the measurement as JSON")
	rootCmd.AddCommand(measureCmd)
}

func runMeasure(cmd *cobra.Command, args []string) error {
	method := cfg.Capture.AreaMethod
	if m, _ := cmd.Flags().GetString("method"); m != "" {
		method = m
	}
	am, err := geospatial.ParseAreaMethod(method)
	if err != nil {
		return err
	}

	points, err := readOutline(args[0])
	if err != nil {
		return err
	}
	if len(points) < domain.MinPolygonPoints {
		return fmt.Errorf("%w: %s has %d points", domain.ErrInsufficientPoints, args[0], len(points))
	}

	m, err := usecases.Measure(points, am)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}
	fmt.Fprintf(out, "Points:     %d\n", m.Points)
	fmt.Fprintf(out, "Area:       %.4f ha (%s)\n", m.AreaHectares, am)
	fmt.Fprintf(out, "Perimeter:  %.2f m\n", m.PerimeterMeters)
	fmt.Fprintf(out, "Centroid:   %.6f, %.6f\n", m.Centroid.Lat, m.Centroid.Lng)
	return nil
}

// readOutline loads vertices from a GeoJSON or CSV file. A closing vertex
// equal to the first is dropped.
func readOutline(path string) ([]domain.GeoPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var points []domain.GeoPoint
	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		points, err = readGeoJSONOutline(f)
	case ".csv":
		points, err = readCSVOutline(f)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", domain.ErrInvalidArgument, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if n := len(points); n > 1 && points[0] == points[n-1] {
		points = points[:n-1]
	}
	return points, nil
}

func readGeoJSONOutline(r io.Reader) ([]domain.GeoPoint, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, err
	}

	var g orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return nil, err
		}
		if len(fc.Features) == 0 {
			return nil, errors.New("feature collection is empty")
		}
		g = fc.Features[0].Geometry
	case "Feature":
		feat, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return nil, err
		}
		g = feat.Geometry
	default:
		geom, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return nil, err
		}
		g = geom.Geometry()
	}

	var pts []orb.Point
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 {
			return nil, errors.New("polygon has no rings")
		}
		pts = v[0]
	case orb.LineString:
		pts = v
	case orb.Ring:
		pts = v
	default:
		return nil, fmt.Errorf("unsupported geometry %T", g)
	}

	out := make([]domain.GeoPoint, len(pts))
	for i, p := range pts {
		out[i] = domain.GeoPoint{Lat: p.Lat(), Lng: p.Lon()}
	}
	return out, nil
}

// readCSVOutline reads lat,lng rows. A header row is skipped.
func readCSVOutline(r io.Reader) ([]domain.GeoPoint, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var out []domain.GeoPoint
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: want lat,lng", line)
		}
		lat, latErr := strconv.ParseFloat(rec[0], 64)
		lng, lngErr := strconv.ParseFloat(rec[1], 64)
		if latErr != nil || lngErr != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: %w: %q,%q", line, domain.ErrInvalidCoordinate, rec[0], rec[1])
		}
		out = append(out, domain.GeoPoint{Lat: lat, Lng: lng})
	}
}

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"measure", "export", "replay", "watch"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, "geojson", flag.DefValue)
	require.NotNil(t, exportCmd.Flags().Lookup("out"))
	require.NotNil(t, exportCmd.Flags().Lookup("producer"))
}

func TestReplayCommand_Flags(t *testing.T) {
	flag := replayCmd.Flags().Lookup("interval")
	require.NotNil(t, flag)
	assert.Equal(t, "5s", flag.DefValue)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadOutline_CSV(t *testing.T) {
	path := writeFile(t, "track.csv", "lat,lng\n42.85,-2.67\n42.85, -2.669\n42.851,-2.669\n42.85,-2.67\n")

	pts, err := readOutline(path)
	require.NoError(t, err)
	require.Len(t, pts, 3, "header skipped and closing vertex dropped")
	assert.Equal(t, domain.GeoPoint{Lat: 42.85, Lng: -2.669}, pts[1])
}

func TestReadOutline_CSVBadRow(t *testing.T) {
	path := writeFile(t, "track.csv", "42.85,-2.67\nnorth,east\n")

	_, err := readOutline(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidCoordinate)
}

func TestReadOutline_GeoJSON(t *testing.T) {
	polygon := `{"type":"Polygon","coordinates":[[[-2.67,42.85],[-2.669,42.85],[-2.669,42.851],[-2.67,42.851],[-2.67,42.85]]]}`
	feature := `{"type":"Feature","properties":{},"geometry":` + polygon + `}`
	collection := `{"type":"FeatureCollection","features":[` + feature + `]}`
	line := `{"type":"LineString","coordinates":[[-2.67,42.85],[-2.669,42.85],[-2.669,42.851]]}`

	for name, doc := range map[string]string{
		"geometry":   polygon,
		"feature":    feature,
		"collection": collection,
	} {
		t.Run(name, func(t *testing.T) {
			pts, err := readOutline(writeFile(t, "parcel.geojson", doc))
			require.NoError(t, err)
			require.Len(t, pts, 4)
			assert.Equal(t, domain.GeoPoint{Lat: 42.85, Lng: -2.67}, pts[0])
		})
	}

	pts, err := readOutline(writeFile(t, "walk.geojson", line))
	require.NoError(t, err)
	assert.Len(t, pts, 3)
}

func TestReadOutline_UnsupportedExtension(t *testing.T) {
	_, err := readOutline(writeFile(t, "parcel.kml", "<kml/>"))
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestMeasureCommand_JSON(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "parcel.csv", "42.85,-2.67\n42.85,-2.669\n42.851,-2.669\n42.851,-2.67\n")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"measure", path, "--json"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		_ = measureCmd.Flags().Set("json", "false")
	})

	require.NoError(t, rootCmd.Execute())

	var m struct {
		Points          int     `json:"points"`
		AreaHectares    float64 `json:"area_hectares"`
		PerimeterMeters float64 `json:"perimeter_meters"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &m))
	assert.Equal(t, 4, m.Points)
	// 0.001 deg square at 42.85N, planar estimate.
	assert.InDelta(t, 0.9085, m.AreaHectares, 0.005)
	assert.InDelta(t, 385.4, m.PerimeterMeters, 1.5)
}

func TestMeasureCommand_TooFewPoints(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "parcel.csv", "42.85,-2.67\n42.85,-2.669\n")

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"measure", path})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	assert.ErrorIs(t, err, domain.ErrInsufficientPoints)
}

func TestExportCommand_MemoryStoreIsEmpty(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AGRODEMARC_DATABASE_DRIVER", "memory")

	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"export", "--producer", "p1"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		_ = exportCmd.Flags().Set("producer", "")
	})

	err := rootCmd.Execute()
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSavedLine(t *testing.T) {
	d := &domain.Demarcation{
		ID:              "d1",
		ProducerID:      "p1",
		AreaHectares:    1.234,
		PerimeterMeters: 456.7,
		Points:          make([]domain.GpsPoint, 5),
		CreatedAt:       time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC),
	}
	line := savedLine(d)
	assert.Contains(t, line, "2026-05-04 09:30:00")
	assert.Contains(t, line, "producer=p1")
	assert.Contains(t, line, "1.23 ha")
	assert.Contains(t, line, "457 m")
	assert.Contains(t, line, "5 points")
}

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/samirrijal/agrodemarc/internal/adapters/export"
	"github.com/samirrijal/agrodemarc/internal/adapters/storage"
	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

var exportCmd = &cobra.Command{
	Use:   "export [id...]",
	Short: "Export saved demarcations as KML, GeoJSON or a shapefile",
	Long: "Writes the given demarcations, or all of a producer's with --producer, " +
		"to --out (stdout when omitted; shapefiles need a path).",
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringP("format", "f", "geojson", "output format: geojson, kml or shp")
	exportCmd.Flags().StringP("out", "o", "", "output path")
	exportCmd.Flags().String("producer", "", "export every demarcation of this producer")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	formatName, _ := cmd.Flags().GetString("format")
	format, err := export.ParseFormat(formatName)
	if err != nil {
		return err
	}
	outPath, _ := cmd.Flags().GetString("out")
	producer, _ := cmd.Flags().GetString("producer")

	if len(args) == 0 && producer == "" {
		return errors.New("give demarcation ids or --producer")
	}
	if format == export.FormatShapefile && outPath == "" {
		return errors.New("--out is required for shapefiles")
	}

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	var ds []domain.Demarcation
	if producer != "" {
		ds, err = store.Repo.ListByProducer(ctx, producer)
		if err != nil {
			return fmt.Errorf("list producer %s: %w", producer, err)
		}
	}
	for _, id := range args {
		d, err := store.Repo.GetByID(ctx, id)
		if err != nil {
			return fmt.Errorf("get %s: %w", id, err)
		}
		ds = append(ds, *d)
	}
	if len(ds) == 0 {
		return fmt.Errorf("%w: nothing to export", domain.ErrNotFound)
	}

	if format == export.FormatShapefile {
		if err := export.WriteShapefile(outPath, ds); err != nil {
			return err
		}
		slog.Info("shapefile written", "path", outPath, "demarcations", len(ds))
		return nil
	}

	var w io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	switch format {
	case export.FormatKML:
		err = export.WriteKML(w, ds)
	default:
		err = export.WriteGeoJSON(w, ds)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", format, err)
	}
	slog.Debug("export written", "format", string(format), "demarcations", len(ds))
	return nil
}

package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	natsadapter "github.com/samirrijal/agrodemarc/internal/adapters/nats"
)

var replayCmd = &cobra.Command{
	Use:   "replay <session-id> <track.csv|track.geojson>",
	Short: "Publish a recorded track as device fixes for a capture session",
	Long: "Sends each vertex of the track on the session's fix subject, one per --interval, " +
		"the way the field app relays GPS fixes while walking a boundary.",
	Args: cobra.ExactArgs(2),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().Duration("interval", 5*time.Second, "delay between fixes")
	replayCmd.Flags().Float64("accuracy", 4, "reported horizontal accuracy in meters")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessionID := args[0]
	interval, _ := cmd.Flags().GetDuration("interval")
	accuracy, _ := cmd.Flags().GetFloat64("accuracy")

	points, err := readOutline(args[1])
	if err != nil {
		return err
	}
	if cfg.NATS.URL == "" {
		return fmt.Errorf("nats.url is not configured")
	}

	pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer pub.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i, p := range points {
		msg := natsadapter.FixMessage{Lat: p.Lat, Lng: p.Lng, Accuracy: accuracy, Timestamp: time.Now().UTC()}
		if err := pub.PublishFix(ctx, sessionID, msg); err != nil {
			return fmt.Errorf("fix %d: %w", i+1, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "sent %d/%d  %.6f,%.6f\n", i+1, len(points), p.Lat, p.Lng)

		if i == len(points)-1 {
			break
		}
		select {
		case <-ctx.Done():
			slog.Info("replay interrupted", "sent", i+1)
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	natsadapter "github.com/samirrijal/agrodemarc/internal/adapters/nats"
	"github.com/samirrijal/agrodemarc/internal/core/domain"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print demarcations as they are saved",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.NATS.URL == "" {
			return fmt.Errorf("nats.url is not configured")
		}
		sub, err := natsadapter.NewSubscriber(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer sub.Close()

		out := cmd.OutOrStdout()
		err = sub.SubscribeDemarcationsSaved(ctx, func(_ context.Context, d *domain.Demarcation) error {
			_, err := fmt.Fprintln(out, savedLine(d))
			return err
		})
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stderr, "watching saved demarcations, Ctrl-C to stop")
		<-ctx.Done()
		return nil
	},
}

func init() { rootCmd.AddCommand(watchCmd) }

func savedLine(d *domain.Demarcation) string {
	return fmt.Sprintf("%s  %-36s  producer=%s  %.2f ha  %.0f m  %d points",
		d.CreatedAt.Format("2006-01-02 15:04:05"), d.ID, d.ProducerID,
		d.AreaHectares, d.PerimeterMeters, len(d.Points))
}

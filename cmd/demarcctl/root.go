package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/samirrijal/agrodemarc/internal/pkg/config"
	"github.com/samirrijal/agrodemarc/internal/pkg/logging"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "demarcctl",
	Short: "Operator tool for parcel demarcations",
	Long:  "Measures outlines from files, exports saved demarcations, replays device tracks and follows saved events.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load("agrodemarc-cli")
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		// Results go to stdout, logs to stderr.
		slog.SetDefault(logging.New(os.Stderr, "", cfg.Log.Level, "text"))
		return nil
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

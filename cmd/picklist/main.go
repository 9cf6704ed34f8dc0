// Command picklist matches free-text order items to catalog products and
// suppliers, learns from manual overrides and serves the same over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"picklist/internal/app"
	"picklist/internal/config"
	"picklist/internal/logging"
)

var (
	cfg    config.Config
	logger *zap.Logger
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "picklist",
	Short:         "Build supplier picklists from free-text orders",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger, err = logging.New(cfg.LogLevel, cfg.LogFormat)
		return err
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd, runCmd, overrideCmd, cleanupCmd, serveCmd)
}

func openApp(cmd *cobra.Command) (*app.App, error) {
	return app.Open(cmd.Context(), cfg, logger)
}

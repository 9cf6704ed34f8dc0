package main

import (
	"github.com/spf13/cobra"

	"picklist/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the picklist HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		srv := server.New(a.Processing, a.Learner, a.DB, logger.Named("http"))
		return srv.Run(cmd.Context(), cfg.HTTPAddr)
	},
}

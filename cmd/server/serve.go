package main

import (
	"github.com/spf13/cobra"

	"github.com/sozercan/auditai-backend/internal/server"
)

func serveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return server.New(*a.cfg, a.analyzer, a.store).Run(cmd.Context())
		},
	}
}

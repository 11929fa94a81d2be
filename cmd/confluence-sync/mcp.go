package main

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	mcpserver "github.com/phoorichet/confluence-sync-sub002/internal/mcp"
	"github.com/phoorichet/confluence-sync-sub002/internal/state"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve sync inspection tools over MCP stdio",
		Long: `Mcp exposes the workspace to MCP clients over stdio with read-only
tools for manifest status, change detection, and path resolution.
Mutations stay on the CLI.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.buildApp()
			if err != nil {
				return err
			}

			srv := mcpserver.NewServer(mcpserver.Dependencies{
				Engine:  app.engine,
				Cache:   state.NewCache(),
				BaseURL: app.client.BaseURL(),
				Logger:  app.logger,
			})

			return server.ServeStdio(srv)
		},
	}
}

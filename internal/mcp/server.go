package mcp

import (
	"log/slog"

	"github.com/phoorichet/confluence-sync-sub002/internal/state"
	"github.com/phoorichet/confluence-sync-sub002/internal/sync"

	"github.com/mark3labs/mcp-go/server"
)

// Dependencies bundles what the MCP server needs.
type Dependencies struct {
	Engine  *sync.Engine
	Cache   *state.Cache
	BaseURL string
	Logger  *slog.Logger
}

// NewServer builds an MCP server with the sync inspection tools registered.
func NewServer(deps Dependencies) *server.MCPServer {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	srv := server.NewMCPServer(
		"Confluence Sync",
		"0.1.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("Tools for inspecting a Confluence sync workspace: manifest status, change detection, and local path resolution. Edits go through the confluence-sync CLI."),
		server.WithRecovery(),
	)

	if deps.Cache == nil {
		deps.Cache = state.NewCache()
	}

	if deps.Engine != nil {
		NewSyncTools(srv, deps.Engine, deps.Cache, deps.BaseURL)
	}

	return srv
}

package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/phoorichet/confluence-sync-sub002/internal/state"
	"github.com/phoorichet/confluence-sync-sub002/internal/sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// detectCacheAge bounds how long a detection pass may be reused before a
// tool call triggers a fresh one.
const detectCacheAge = 30 * time.Second

// SyncTools wires engine queries into MCP tools.
type SyncTools struct {
	engine  *sync.Engine
	cache   *state.Cache
	baseURL string
}

// NewSyncTools registers the sync tools on the server.
func NewSyncTools(s *server.MCPServer, engine *sync.Engine, cache *state.Cache, baseURL string) *SyncTools {
	st := &SyncTools{
		engine:  engine,
		cache:   cache,
		baseURL: strings.TrimRight(baseURL, "/"),
	}

	s.AddTool(
		mcp.NewTool(
			"sync.status",
			mcp.WithDescription("Report the sync workspace status from the manifest"),
			mcp.WithInputSchema[SyncStatusArgs](),
			mcp.WithOutputSchema[SyncStatusResult](),
		),
		mcp.NewTypedToolHandler(st.handleStatus),
	)

	s.AddTool(
		mcp.NewTool(
			"sync.detect_changes",
			mcp.WithDescription("Classify every tracked page as unchanged, local-only, remote-only, or both-changed"),
			mcp.WithInputSchema[SyncDetectArgs](),
			mcp.WithOutputSchema[SyncDetectResult](),
		),
		mcp.NewTypedToolHandler(st.handleDetectChanges),
	)

	s.AddTool(
		mcp.NewTool(
			"sync.resolve_path",
			mcp.WithDescription("Resolve the local file path for a tracked page or folder ID"),
			mcp.WithInputSchema[SyncResolvePathArgs](),
			mcp.WithOutputSchema[SyncResolvePathResult](),
		),
		mcp.NewTypedToolHandler(st.handleResolvePath),
	)

	return st
}

// SyncStatusArgs parameters for workspace status.
type SyncStatusArgs struct{}

// SyncStatusResult summarizes the manifest.
type SyncStatusResult struct {
	SpaceKey      string         `json:"spaceKey"`
	ConfluenceURL string         `json:"confluenceUrl,omitempty"`
	LastSyncTime  string         `json:"lastSyncTime,omitempty"`
	SyncMode      string         `json:"syncMode,omitempty"`
	Pages         int            `json:"pages"`
	Folders       int            `json:"folders"`
	ByStatus      map[string]int `json:"byStatus,omitempty"`
}

func (st *SyncTools) handleStatus(_ context.Context, _ mcp.CallToolRequest, _ SyncStatusArgs) (*mcp.CallToolResult, error) {
	sum := st.engine.Summary()

	result := SyncStatusResult{
		SpaceKey:      st.engine.SpaceKey(),
		ConfluenceURL: sum.ConfluenceURL,
		SyncMode:      sum.SyncMode,
		Pages:         sum.Pages,
		Folders:       sum.Folders,
	}
	if !sum.LastSyncTime.IsZero() {
		result.LastSyncTime = sum.LastSyncTime.UTC().Format(time.RFC3339)
	}
	if len(sum.ByStatus) > 0 {
		result.ByStatus = make(map[string]int, len(sum.ByStatus))
		for status, n := range sum.ByStatus {
			result.ByStatus[string(status)] = n
		}
	}

	fallback := fmt.Sprintf("Tracking %d pages and %d folders in space %s", result.Pages, result.Folders, result.SpaceKey)
	return mcp.NewToolResultStructured(result, fallback), nil
}

// SyncDetectArgs parameters for change detection.
type SyncDetectArgs struct {
	Refresh bool `json:"refresh,omitempty" jsonschema_description:"Bypass the cached detection pass and query Confluence again"`
}

// SyncChange describes one page that moved on either side.
type SyncChange struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Title string `json:"title,omitempty"`
	Path  string `json:"path,omitempty"`
}

// SyncDetectResult wraps a detection pass.
type SyncDetectResult struct {
	SpaceKey  string       `json:"spaceKey"`
	Total     int          `json:"total"`
	Unchanged int          `json:"unchanged"`
	Changes   []SyncChange `json:"changes"`
	Cached    bool         `json:"cached"`
}

func (st *SyncTools) handleDetectChanges(ctx context.Context, _ mcp.CallToolRequest, args SyncDetectArgs) (*mcp.CallToolResult, error) {
	space := st.engine.SpaceKey()

	states, cached := st.cache.Changes(space, detectCacheAge)
	if args.Refresh || !cached {
		states = st.engine.DetectAll(ctx)
		st.cache.SetChanges(space, states)
		cached = false
	}

	result := SyncDetectResult{
		SpaceKey: space,
		Total:    len(states),
		Changes:  make([]SyncChange, 0, len(states)),
		Cached:   cached,
	}
	for _, item := range states {
		if item.State == sync.StateUnchanged {
			result.Unchanged++
			continue
		}
		change := SyncChange{ID: item.ID, State: item.State.String()}
		if rec, ok := st.engine.Tracked(item.ID); ok {
			change.Title = rec.Title
			change.Path = rec.LocalPath
		}
		result.Changes = append(result.Changes, change)
	}

	fallback := fmt.Sprintf("%d of %d tracked pages changed", len(result.Changes), result.Total)
	return mcp.NewToolResultStructured(result, fallback), nil
}

// SyncResolvePathArgs parameters for path resolution.
type SyncResolvePathArgs struct {
	ID string `json:"id" jsonschema:"required" jsonschema_description:"Tracked page or folder ID"`
}

// SyncResolvePathResult response for path resolution.
type SyncResolvePathResult struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

func (st *SyncTools) handleResolvePath(_ context.Context, _ mcp.CallToolRequest, args SyncResolvePathArgs) (*mcp.CallToolResult, error) {
	id := strings.TrimSpace(args.ID)
	if id == "" {
		return mcp.NewToolResultError("id must not be empty"), nil
	}

	path, err := st.engine.ResolvePath(id)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("path resolution failed", err), nil
	}

	result := SyncResolvePathResult{ID: id, Path: path}
	if rec, ok := st.engine.Tracked(id); ok {
		result.Title = rec.Title
		if st.baseURL != "" {
			result.URL = fmt.Sprintf("%s/pages/%s", st.baseURL, id)
		}
	}

	fallback := fmt.Sprintf("%s resolves to %s", id, path)
	return mcp.NewToolResultStructured(result, fallback), nil
}

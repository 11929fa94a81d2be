package integration

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phoorichet/confluence-sync-sub002/internal/config"
	"github.com/phoorichet/confluence-sync-sub002/internal/confluence"
	"github.com/phoorichet/confluence-sync-sub002/internal/manifest"
	"github.com/phoorichet/confluence-sync-sub002/internal/resilience"
	syncer "github.com/phoorichet/confluence-sync-sub002/internal/sync"
	"github.com/phoorichet/confluence-sync-sub002/pkg/logging"
)

// requireIntegration skips the test if CONFLUENCE_SYNC_INTEGRATION is not set.
func requireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("CONFLUENCE_SYNC_INTEGRATION") == "" {
		t.Skip("CONFLUENCE_SYNC_INTEGRATION not set; skipping integration tests")
	}
}

// ensureHTTPS adds an https:// prefix to site URLs if not already present.
func ensureHTTPS(site string) string {
	trimmed := strings.TrimSpace(site)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/")
	}
	return "https://" + strings.TrimRight(trimmed, "/")
}

// resolveEnv returns the first non-empty environment variable value from the provided keys.
func resolveEnv(keys ...string) string {
	for _, key := range keys {
		if val := os.Getenv(key); strings.TrimSpace(val) != "" {
			return val
		}
	}
	return ""
}

// loadCredentials reads service credentials from the same environment
// variables the CLI's config layer binds.
func loadCredentials() config.ServiceCredentials {
	return config.ServiceCredentials{
		Email:      os.Getenv("CONFLUENCE_SYNC_CONFLUENCE_AUTH_EMAIL"),
		APIToken:   os.Getenv("CONFLUENCE_SYNC_CONFLUENCE_AUTH_API_TOKEN"),
		OAuthToken: os.Getenv("CONFLUENCE_SYNC_CONFLUENCE_AUTH_OAUTH_TOKEN"),
	}
}

// credsValid checks if credentials are usable (either OAuth token or email+API token).
func credsValid(creds config.ServiceCredentials) bool {
	if creds.OAuthToken != "" {
		return true
	}
	return creds.Email != "" && creds.APIToken != ""
}

// setupClient creates a Confluence client from environment variables.
// Skips the test if the site or credentials are not available.
func setupClient(t *testing.T) *confluence.Client {
	t.Helper()

	site := ensureHTTPS(resolveEnv(
		"CONFLUENCE_SYNC_CONFLUENCE_SITE",
		"CONFLUENCE_SYNC_SITE",
	))
	if site == "" {
		t.Skip("CONFLUENCE_SYNC_CONFLUENCE_SITE not set")
	}

	creds := loadCredentials()
	if !credsValid(creds) {
		t.Skip("Confluence credentials not provided")
	}

	client, err := confluence.NewClient(site, creds, logging.New("warn"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

// testSpaceKey returns the space the integration suite may read from.
// Skips the test when unset.
func testSpaceKey(t *testing.T) string {
	t.Helper()

	key := resolveEnv(
		"CONFLUENCE_SYNC_CONFLUENCE_SPACE_KEY",
		"CONFLUENCE_SYNC_SPACE_KEY",
	)
	if key == "" {
		t.Skip("CONFLUENCE_SYNC_CONFLUENCE_SPACE_KEY not set")
	}
	return key
}

// setupEngine builds a sync engine against a throwaway workspace, wired
// the same way the CLI wires it. The manifest lives inside the temp root
// and disappears with it.
func setupEngine(t *testing.T) (*syncer.Engine, string) {
	t.Helper()

	client := setupClient(t)
	space := testSpaceKey(t)
	logger := logging.New("warn")

	limiter := resilience.NewRateLimiter(resilience.RateLimitConfig{}, logger)
	client.SetQuotaSink(limiter)
	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{})
	protector := resilience.NewProtector(limiter, breaker, resilience.DefaultRetryPolicy(), logger)

	root := t.TempDir()
	store := manifest.NewStore(filepath.Join(root, ".confluence-sync.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("Load manifest: %v", err)
	}

	engine, err := syncer.New(syncer.Config{
		Root:      root,
		SpaceKey:  space,
		Client:    client,
		Store:     store,
		Protector: protector,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("New engine: %v", err)
	}
	return engine, root
}

// skipIfEmpty skips the test if the provided slice is empty with a helpful message.
func skipIfEmpty[T any](t *testing.T, items []T, itemType string) {
	t.Helper()
	if len(items) == 0 {
		t.Skipf("no %s found; cannot proceed with test", itemType)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func isolateNetrc(t *testing.T) {
	t.Helper()
	t.Setenv("NETRC", filepath.Join(t.TempDir(), "absent"))
}

const minimalConfig = `
confluence:
  site: https://example.atlassian.net
  space_key: DOCS
  auth:
    email: user@example.com
    api_token: token
`

func TestLoadAppliesDefaults(t *testing.T) {
	isolateNetrc(t)

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q, want info", cfg.Log.Level)
	}
	if cfg.Sync.Mode != "manual" {
		t.Errorf("sync mode = %q, want manual", cfg.Sync.Mode)
	}
	if cfg.Sync.Dir != "docs" {
		t.Errorf("sync dir = %q, want docs", cfg.Sync.Dir)
	}
	if want := filepath.Join("docs", ".confluence-sync.json"); cfg.Sync.ManifestPath != want {
		t.Errorf("manifest path = %q, want %q", cfg.Sync.ManifestPath, want)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.InitialDelay != 500*time.Millisecond || cfg.Retry.Factor != 2.0 || !cfg.Retry.Jitter {
		t.Errorf("retry defaults wrong: %+v", cfg.Retry)
	}
	if cfg.Breaker.FailureThreshold != 5 || cfg.Breaker.SuccessThreshold != 2 || cfg.Breaker.ResetTimeout != time.Minute {
		t.Errorf("breaker defaults wrong: %+v", cfg.Breaker)
	}
	if cfg.Limits.RequestsPerHour != 1000 || cfg.Limits.ReadSlots != 8 || cfg.Limits.WriteSlots != 4 {
		t.Errorf("limit defaults wrong: %+v", cfg.Limits)
	}
	if cfg.Timeouts.Single != 30*time.Second || cfg.Timeouts.Bulk != 2*time.Minute {
		t.Errorf("timeout defaults wrong: %+v", cfg.Timeouts)
	}
	if cfg.Watch.Debounce != 2*time.Second {
		t.Errorf("watch debounce = %v, want 2s", cfg.Watch.Debounce)
	}
}

func TestLoadOverrides(t *testing.T) {
	isolateNetrc(t)

	cfg, err := Load(writeConfig(t, `
confluence:
  site: https://example.atlassian.net
  space_key: ENG
  auth:
    oauth_token: oauth
sync:
  dir: wiki
  mode: watch
log:
  level: debug
retry:
  max_retries: 5
  initial_delay: 1s
  max_delay: 2m
  factor: 3
  jitter: false
timeouts:
  single: 10s
  bulk: 5m
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Confluence.SpaceKey != "ENG" {
		t.Errorf("space key = %q, want ENG", cfg.Confluence.SpaceKey)
	}
	if cfg.Sync.Mode != "watch" {
		t.Errorf("mode = %q, want watch", cfg.Sync.Mode)
	}
	if want := filepath.Join("wiki", ".confluence-sync.json"); cfg.Sync.ManifestPath != want {
		t.Errorf("manifest path = %q, want %q", cfg.Sync.ManifestPath, want)
	}
	if cfg.Retry.MaxRetries != 5 || cfg.Retry.InitialDelay != time.Second || cfg.Retry.MaxDelay != 2*time.Minute || cfg.Retry.Jitter {
		t.Errorf("retry overrides wrong: %+v", cfg.Retry)
	}
	if cfg.Timeouts.Single != 10*time.Second || cfg.Timeouts.Bulk != 5*time.Minute {
		t.Errorf("timeout overrides wrong: %+v", cfg.Timeouts)
	}
}

func TestLoadRequiresSite(t *testing.T) {
	isolateNetrc(t)

	_, err := Load(writeConfig(t, `
sync:
  dir: wiki
`))
	if err == nil || !strings.Contains(err.Error(), "confluence.site is required") {
		t.Fatalf("Load() error = %v, want missing-site error", err)
	}
}

func TestLoadRequiresCredentials(t *testing.T) {
	isolateNetrc(t)

	_, err := Load(writeConfig(t, `
confluence:
  site: https://example.atlassian.net
`))
	if err == nil || !strings.Contains(err.Error(), "auth requires") {
		t.Fatalf("Load() error = %v, want missing-credentials error", err)
	}
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	isolateNetrc(t)

	_, err := Load(writeConfig(t, minimalConfig+`
sync:
  mode: hourly
`))
	if err == nil || !strings.Contains(err.Error(), "sync.mode") {
		t.Fatalf("Load() error = %v, want mode error", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	isolateNetrc(t)
	t.Setenv("CONFLUENCE_SYNC_CONFLUENCE_SITE", "https://env.atlassian.net")
	t.Setenv("CONFLUENCE_SYNC_CONFLUENCE_AUTH_OAUTH_TOKEN", "env-token")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Confluence.Site != "https://env.atlassian.net" {
		t.Errorf("site = %q, want env value", cfg.Confluence.Site)
	}
	if cfg.Confluence.Auth.OAuthToken != "env-token" {
		t.Errorf("oauth token = %q, want env value", cfg.Confluence.Auth.OAuthToken)
	}
}

func TestServiceCredentialsValidate(t *testing.T) {
	t.Parallel()

	creds := ServiceCredentials{Email: "user@example.com", APIToken: "token"}
	if err := creds.validate(); err != nil {
		t.Fatalf("expected credentials to be valid, got %v", err)
	}

	creds = ServiceCredentials{OAuthToken: "token"}
	if err := creds.validate(); err != nil {
		t.Fatalf("expected oauth credentials to be valid, got %v", err)
	}

	creds = ServiceCredentials{Email: "user@example.com"}
	if err := creds.validate(); err == nil {
		t.Fatalf("expected error for incomplete credentials")
	}
}

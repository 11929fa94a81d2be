package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the full application configuration loaded from file/env.
type Config struct {
	Confluence ConfluenceConfig `mapstructure:"confluence"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Log        LogConfig        `mapstructure:"log"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Timeouts   TimeoutsConfig   `mapstructure:"timeouts"`
	Watch      WatchConfig      `mapstructure:"watch"`
}

// ConfluenceConfig points the tool at a single site and space.
type ConfluenceConfig struct {
	Site     string             `mapstructure:"site"`
	SpaceKey string             `mapstructure:"space_key"`
	Auth     ServiceCredentials `mapstructure:"auth"`
}

// ServiceCredentials describes authentication against the site.
type ServiceCredentials struct {
	Email      string `mapstructure:"email"`
	APIToken   string `mapstructure:"api_token"`
	OAuthToken string `mapstructure:"oauth_token"`
}

// SyncConfig locates the local tree and the manifest.
type SyncConfig struct {
	Dir          string `mapstructure:"dir"`
	ManifestPath string `mapstructure:"manifest_path"`
	Mode         string `mapstructure:"mode"`
}

// LogConfig tunes logging output. File fields only apply when File is set.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// LimitsConfig tunes the shared rate limiter.
type LimitsConfig struct {
	RequestsPerHour int `mapstructure:"requests_per_hour"`
	ReadSlots       int `mapstructure:"read_slots"`
	WriteSlots      int `mapstructure:"write_slots"`
}

// RetryConfig tunes the backoff policy for remote calls.
type RetryConfig struct {
	MaxRetries   int           `mapstructure:"max_retries"`
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	Factor       float64       `mapstructure:"factor"`
	Jitter       bool          `mapstructure:"jitter"`
}

// BreakerConfig tunes the shared circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

// TimeoutsConfig sets per-call deadlines: single-item calls get the short
// one, bulk/listing calls the long one.
type TimeoutsConfig struct {
	Single time.Duration `mapstructure:"single"`
	Bulk   time.Duration `mapstructure:"bulk"`
}

// WatchConfig tunes watch mode.
type WatchConfig struct {
	Debounce         time.Duration `mapstructure:"debounce"`
	MaxPushesPerHour int           `mapstructure:"max_pushes_per_hour"`
}

// Load reads configuration from the provided path (file or directory) and
// environment variables prefixed CONFLUENCE_SYNC.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if path != "" {
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			v.AddConfigPath(path)
		} else {
			v.SetConfigFile(path)
		}
	} else {
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("confluence_sync")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.applyNetrcDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults registers every tunable. Keys without a registered default
// are invisible to Unmarshal when supplied only through the environment,
// so credential keys default to empty strings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("confluence.site", "")
	v.SetDefault("confluence.space_key", "")
	v.SetDefault("confluence.auth.email", "")
	v.SetDefault("confluence.auth.api_token", "")
	v.SetDefault("confluence.auth.oauth_token", "")

	v.SetDefault("sync.dir", "docs")
	v.SetDefault("sync.manifest_path", "")
	v.SetDefault("sync.mode", "manual")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("limits.requests_per_hour", 1000)
	v.SetDefault("limits.read_slots", 8)
	v.SetDefault("limits.write_slots", 4)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.initial_delay", "500ms")
	v.SetDefault("retry.max_delay", "30s")
	v.SetDefault("retry.factor", 2.0)
	v.SetDefault("retry.jitter", true)

	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.success_threshold", 2)
	v.SetDefault("breaker.reset_timeout", "60s")

	v.SetDefault("timeouts.single", "30s")
	v.SetDefault("timeouts.bulk", "120s")

	v.SetDefault("watch.debounce", "2s")
	v.SetDefault("watch.max_pushes_per_hour", 120)
}

func (c *Config) validate() error {
	if c.Confluence.Site == "" {
		return fmt.Errorf("config: confluence.site is required")
	}

	if err := c.Confluence.Auth.validate(); err != nil {
		return err
	}

	switch c.Sync.Mode {
	case "", "manual", "watch":
	default:
		return fmt.Errorf("config: sync.mode %q is not one of manual, watch", c.Sync.Mode)
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Sync.Mode == "" {
		c.Sync.Mode = "manual"
	}
	if c.Sync.Dir == "" {
		c.Sync.Dir = "docs"
	}
	if c.Sync.ManifestPath == "" {
		c.Sync.ManifestPath = filepath.Join(c.Sync.Dir, ".confluence-sync.json")
	}

	return nil
}

func (s ServiceCredentials) validate() error {
	if s.OAuthToken == "" && (s.Email == "" || s.APIToken == "") {
		return fmt.Errorf("config: confluence auth requires either oauth_token or email/api_token")
	}
	return nil
}

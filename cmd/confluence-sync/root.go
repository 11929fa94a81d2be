package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phoorichet/confluence-sync-sub002/internal/config"
	"github.com/phoorichet/confluence-sync-sub002/internal/confluence"
	"github.com/phoorichet/confluence-sync-sub002/internal/manifest"
	"github.com/phoorichet/confluence-sync-sub002/internal/resilience"
	"github.com/phoorichet/confluence-sync-sub002/internal/sync"
	"github.com/phoorichet/confluence-sync-sub002/pkg/logging"
)

// rootOptions carries the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	space      string
	dir        string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "confluence-sync",
		Short: "Sync a Confluence space with a local markdown tree",
		Long: `confluence-sync mirrors a Confluence space into a local directory of
markdown files with YAML frontmatter and pushes local edits back. A
manifest records the last confirmed sync point per page, so changes on
either side are detected before anything is overwritten.`,
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "path to a configuration file or directory")
	pf.StringVar(&opts.space, "space", "", "space key to sync (overrides configuration)")
	pf.StringVar(&opts.dir, "dir", "", "local workspace directory (overrides configuration)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, or error")

	cmd.AddCommand(
		newPullCmd(opts),
		newPushCmd(opts),
		newStatusCmd(opts),
		newDetectCmd(opts),
		newPruneCmd(opts),
		newDeleteCmd(opts),
		newWatchCmd(opts),
		newMCPCmd(opts),
		newVersionCmd(),
	)

	return cmd
}

// app bundles the collaborators a command constructs once configuration
// is resolved: config, logger, client, resilience pipeline, manifest,
// engine, in that order.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	client    *confluence.Client
	store     *manifest.Store
	protector *resilience.Protector
	engine    *sync.Engine
}

func (o *rootOptions) buildApp() (*app, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	if o.space != "" {
		cfg.Confluence.SpaceKey = o.space
	}
	if o.dir != "" {
		cfg.Sync.Dir = o.dir
		cfg.Sync.ManifestPath = filepath.Join(o.dir, ".confluence-sync.json")
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if cfg.Confluence.SpaceKey == "" {
		return nil, errors.New("a space key is required: set --space or confluence.space_key")
	}

	logger := logging.NewWithFile(cfg.Log.Level, logging.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	client, err := confluence.NewClient(cfg.Confluence.Site, cfg.Confluence.Auth, logger)
	if err != nil {
		return nil, err
	}
	client.SetTimeouts(cfg.Timeouts.Single, cfg.Timeouts.Bulk)

	limiter := resilience.NewRateLimiter(resilience.RateLimitConfig{
		RequestsPerHour: cfg.Limits.RequestsPerHour,
		ReadSlots:       cfg.Limits.ReadSlots,
		WriteSlots:      cfg.Limits.WriteSlots,
	}, logger)
	client.SetQuotaSink(limiter)

	breaker := resilience.NewCircuitBreaker(resilience.BreakerConfig{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		ResetTimeout:     cfg.Breaker.ResetTimeout,
	})

	protector := resilience.NewProtector(limiter, breaker, resilience.RetryPolicy{
		MaxRetries:   cfg.Retry.MaxRetries,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Factor:       cfg.Retry.Factor,
		Jitter:       cfg.Retry.Jitter,
	}, logger)

	store := manifest.NewStore(cfg.Sync.ManifestPath)
	if err := store.Load(); err != nil {
		return nil, err
	}

	engine, err := sync.New(sync.Config{
		Root:      cfg.Sync.Dir,
		SpaceKey:  cfg.Confluence.SpaceKey,
		Client:    client,
		Store:     store,
		Protector: protector,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		client:    client,
		store:     store,
		protector: protector,
		engine:    engine,
	}, nil
}

// signalContext cancels on SIGINT or SIGTERM so long-running commands
// shut down cleanly.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func printReport(cmd *cobra.Command, r *sync.Report) {
	out := cmd.OutOrStdout()

	label := ""
	if r.DryRun {
		label = " (dry run)"
	}
	fmt.Fprintf(out, "Run %s%s: %d written, %d created, %d updated, %d deleted, %d unchanged, %d skipped\n",
		r.RunID, label, r.Written, r.Created, r.Updated, r.Deleted, r.Unchanged, r.Skipped)

	for _, id := range r.Conflicts {
		fmt.Fprintf(out, "conflict: %s\n", id)
	}
	for _, f := range r.Failures {
		if f.ID != "" {
			fmt.Fprintf(out, "failed %s %s: %s\n", f.Op, f.ID, f.Message)
			continue
		}
		fmt.Fprintf(out, "failed %s: %s\n", f.Op, f.Message)
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phoorichet/confluence-sync-sub002/internal/resilience"
	"github.com/phoorichet/confluence-sync-sub002/internal/sync"
	"github.com/phoorichet/confluence-sync-sub002/internal/watch"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the workspace and push edits as they settle",
		Long: `Watch observes the workspace directory and runs a push once file
events go quiet for the configured debounce window. Push frequency is
capped by watch.max_pushes_per_hour. Stop with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.buildApp()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			app.store.SetSyncMode("watch")

			var throttle *resilience.TokenBucket
			if n := app.cfg.Watch.MaxPushesPerHour; n > 0 {
				throttle = resilience.NewTokenBucket(3, n)
			}

			w, err := watch.New(watch.Config{
				Root:     app.cfg.Sync.Dir,
				Debounce: app.cfg.Watch.Debounce,
				Throttle: throttle,
				Push: func(ctx context.Context, paths []string) error {
					report, err := app.engine.Push(ctx, sync.Options{})
					if err != nil {
						return err
					}
					printReport(cmd, report)
					return nil
				},
				Logger: app.logger,
			})
			if err != nil {
				return err
			}

			if err := w.Start(ctx); err != nil {
				return err
			}
			defer w.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes; press Ctrl-C to stop\n", app.cfg.Sync.Dir)
			<-ctx.Done()
			return nil
		},
	}
}

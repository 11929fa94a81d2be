package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/phoorichet/confluence-sync-sub002/internal/manifest"
	"github.com/phoorichet/confluence-sync-sub002/internal/sync"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show what the manifest tracks for this workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.buildApp()
			if err != nil {
				return err
			}

			sum := app.engine.Summary()
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Space:     %s\n", app.engine.SpaceKey())
			if sum.ConfluenceURL != "" {
				fmt.Fprintf(out, "Site:      %s\n", sum.ConfluenceURL)
			}
			if sum.SyncMode != "" {
				fmt.Fprintf(out, "Mode:      %s\n", sum.SyncMode)
			}
			if sum.LastSyncTime.IsZero() {
				fmt.Fprintln(out, "Last sync: never")
			} else {
				fmt.Fprintf(out, "Last sync: %s\n", sum.LastSyncTime.Local().Format(time.RFC1123))
			}
			fmt.Fprintf(out, "Tracked:   %d pages, %d folders\n", sum.Pages, sum.Folders)

			for _, status := range []manifest.Status{manifest.StatusSynced, manifest.StatusModified, manifest.StatusConflict} {
				if n := sum.ByStatus[status]; n > 0 {
					fmt.Fprintf(out, "  %-9s %d\n", status, n)
				}
			}
			return nil
		},
	}
}

func newDetectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Classify every tracked page against the live space",
		Long: `Detect compares each tracked page's local content hash and remote
version number against the manifest and reports which side moved. Nothing
is written on either side.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.buildApp()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			states := app.engine.DetectAll(ctx)
			out := cmd.OutOrStdout()

			changed := 0
			for _, item := range states {
				if item.State == sync.StateUnchanged {
					continue
				}
				changed++
				path := ""
				if rec, ok := app.engine.Tracked(item.ID); ok {
					path = rec.LocalPath
				}
				fmt.Fprintf(out, "%-12s %s  %s\n", item.State, item.ID, path)
			}
			fmt.Fprintf(out, "%d of %d tracked pages changed\n", changed, len(states))
			return nil
		},
	}
}

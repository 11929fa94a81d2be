package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phoorichet/confluence-sync-sub002/internal/sync"
)

func newPruneCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop manifest records for items deleted on the remote",
		Long: `Prune walks the live space tree and removes manifest records for pages
and folders that no longer exist remotely. Local files are left on disk;
only the bookkeeping is trimmed. An incomplete tree walk aborts the run
rather than guessing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.buildApp()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			removed, err := app.engine.Prune(ctx, sync.Options{DryRun: dryRun})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			verb := "pruned"
			if dryRun {
				verb = "would prune"
			}
			for _, id := range removed {
				fmt.Fprintf(out, "%s %s\n", verb, id)
			}
			fmt.Fprintf(out, "%d stale records\n", len(removed))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report stale records without removing them")
	return cmd
}

func newDeleteCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "delete id...",
		Short: "Delete tracked pages or folders remotely and locally",
		Long: `Delete removes the given tracked items from Confluence, drops their
manifest records, and deletes the matching local files. Items already
gone remotely are cleaned up locally without error.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.buildApp()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			report, err := app.engine.Delete(ctx, args, sync.Options{DryRun: dryRun})
			if err != nil {
				return err
			}

			printReport(cmd, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	return cmd
}

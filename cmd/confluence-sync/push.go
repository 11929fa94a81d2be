package main

import (
	"github.com/spf13/cobra"

	"github.com/phoorichet/confluence-sync-sub002/internal/sync"
)

func newPushCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Upload locally edited and newly created pages",
		Long: `Push updates remote pages from tracked files whose content changed
locally and creates pages for untracked markdown files, building folders
for directories the space does not have yet. Pages that also changed
remotely are reported as conflicts and left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.buildApp()
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			if !dryRun {
				app.store.SetSyncMode("manual")
			}

			report, err := app.engine.Push(ctx, sync.Options{DryRun: dryRun})
			if err != nil {
				return err
			}

			printReport(cmd, report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would change without writing anything")
	return cmd
}

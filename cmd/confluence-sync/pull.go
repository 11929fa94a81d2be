package main

import (
	"github.com/spf13/cobra"

	"github.com/phoorichet/confluence-sync-sub002/internal/sync"
)

func newPullCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download the space tree and write changed pages locally",
		Long: `Pull walks the remote space from its home page, converts pages to
markdown, and writes them under the workspace directory, parents before
children. Pages edited locally are skipped and conflicts are reported;
neither is overwritten.`,
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

			report, err := app.engine.Pull(ctx, sync.Options{DryRun: dryRun})
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

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "confluence-sync %s\n", version)
		},
	}
}

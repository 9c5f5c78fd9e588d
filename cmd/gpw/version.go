package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thehardbits/gpw/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "gpw\n")
			fmt.Fprintf(cmd.OutOrStdout(), " - version: %s\n", version.Version)
			fmt.Fprintf(cmd.OutOrStdout(), " - git: %s\n", version.GetShortCommit())
			fmt.Fprintf(cmd.OutOrStdout(), " - built: %s\n", version.BuildDate)
			return nil
		},
	}
}

package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	// Version is the current version of lpmigrate.
	Version = "0.1.0"
	// Build is set by the linker.
	Build = "dev"
)

func versionString() string {
	return fmt.Sprintf("%s (%s)", Version, Build)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lpmigrate version %s (%s) %s/%s\n",
				Version, Build, runtime.GOOS, runtime.GOARCH)
		},
	}
}

// Package cmd provides the command-line interface of tilesim.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "tilesim",
		Short: "tilesim simulates directory-based cache coherence.",
		Long: `tilesim simulates private caches kept coherent by home ` +
			`directories on a tiled multicore. It drives the system with ` +
			`random loads and stores and verifies the values and the ` +
			`directory state at the end.`,
	}

	rootCmd.AddCommand(newRunCmd(), newSchemesCmd())

	return rootCmd
}

// Execute runs the command named by the arguments. The registered exit
// handlers run before the process exits.
func Execute() {
	err := newRootCmd().Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}

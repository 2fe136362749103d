package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sarchlab/tilesim/mem/coherence/sharers"
)

func newSchemesCmd() *cobra.Command {
	var numTiles, maxHWSharers int

	schemesCmd := &cobra.Command{
		Use:   "schemes",
		Short: "List the sharer tracking schemes and their storage cost.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if numTiles <= 0 || maxHWSharers <= 0 {
				return fmt.Errorf("tiles and max hw sharers must be positive")
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "scheme\tbits per entry\n")

			for _, s := range sharers.Schemes {
				fmt.Fprintf(tw, "%s\t%d\n",
					s, sharers.StorageBits(s, maxHWSharers, numTiles))
			}

			return tw.Flush()
		},
	}

	schemesCmd.Flags().IntVar(&numTiles, "num-tiles", 64, "number of tiles")
	schemesCmd.Flags().IntVar(&maxHWSharers, "max-hw-sharers", 4,
		"sharers tracked in hardware by limited schemes")

	return schemesCmd
}

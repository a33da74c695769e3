package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"linkchain/internal/hostalias"
)

var aliasesCmd = &cobra.Command{
	Use:   "aliases",
	Short: "Print the effective host alias table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		table, err := hostalias.New(cfg.AliasPairs()...)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, p := range table.Pairs() {
			fmt.Fprintf(tw, "%s\t->\t%s\n", p.Old, p.New)
		}
		return tw.Flush()
	},
}

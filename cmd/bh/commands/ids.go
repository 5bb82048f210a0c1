package commands

import (
	"fmt"

	"bindharvest/pkg/types"

	"github.com/spf13/cobra"
)

var idsNewOnly bool

var idsCmd = &cobra.Command{
	Use:   "ids [set_id]",
	Short: "List binding identifiers in the given set",
	Long:  `Walks the OAI-PMH set page by page and prints one DC identifier per line. With --new-only (requires the ledger), only identifiers not seen in a previous run are printed.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		set := types.SetID(args[0])

		ids, err := BH.Source.BindingIdentifiers(ctx, set)
		if err != nil {
			return err
		}

		if idsNewOnly {
			if BH.Ledger == nil {
				return fmt.Errorf("--new-only requires ledger.enabled=true")
			}
			ids, err = BH.Ledger.MarkSeen(ctx, set, ids)
			if err != nil {
				return err
			}
		}

		for _, dc := range ids {
			fmt.Println(dc)
		}
		return nil
	},
}

func init() {
	idsCmd.Flags().BoolVar(&idsNewOnly, "new-only", false, "only print bindings not seen before")
	rootCmd.AddCommand(idsCmd)
}

package commands

import (
	"errors"
	"fmt"

	"bindharvest/pkg/meta"
	"bindharvest/pkg/types"

	"github.com/spf13/cobra"
)

var (
	statusBinding string
	statusType    string
)

var statusCmd = &cobra.Command{
	Use:   "status [set_id]",
	Short: "Show harvest progress for a set from the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if BH.Ledger == nil {
			return errors.New("status requires ledger.enabled=true")
		}
		set := types.SetID(args[0])

		if statusBinding != "" {
			row, err := BH.Ledger.LastHarvest(ctx, types.DCIdentifier(statusBinding), types.ParseFileType(statusType))
			if errors.Is(err, meta.ErrHarvestNotFound) {
				fmt.Printf("%s: no %s harvest recorded\n", statusBinding, statusType)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s [%s]: %d files, %d downloaded, %d skipped, %d ignored, %d failed (completed %s)\n",
				row.DCIdentifier, row.FileType, row.Total, row.Downloaded, row.Skipped, row.Ignored, row.Failed,
				row.CompletedAt.Format("2006-01-02 15:04:05"))
			return nil
		}

		seen, err := BH.Ledger.SeenCount(ctx, set)
		if err != nil {
			return err
		}
		incomplete, err := BH.Ledger.Incomplete(ctx, set)
		if err != nil {
			return err
		}

		fmt.Printf("set %s: %d bindings seen, %d with failed files\n", set, seen, len(incomplete))
		for _, row := range incomplete {
			fmt.Printf("  %s [%s]: %d/%d failed\n", row.DCIdentifier, row.FileType, row.Failed, row.Total)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusBinding, "binding", "", "show the last harvest of a single binding instead")
	statusCmd.Flags().StringVar(&statusType, "type", "alto", "file type to look up with --binding")
	rootCmd.AddCommand(statusCmd)
}

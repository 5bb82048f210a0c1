package commands

import (
	"bindharvest/pkg/types"

	"github.com/spf13/cobra"
)

var (
	flagRoot   string
	flagSubdir string
)

var metsCmd = &cobra.Command{
	Use:   "mets [dc_identifier...]",
	Short: "Download METS manifests for the given bindings",
	Long:  `Fetches each binding's METS document into <root>/<bindingID>/<subdir>/. Bindings whose manifest is already present (non-empty) are skipped.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		for _, arg := range args {
			if err := BH.Engine.HarvestMets(ctx, types.DCIdentifier(arg), flagRoot, flagSubdir); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	metsCmd.Flags().StringVar(&flagRoot, "root", "", "destination root inside the storage channel")
	metsCmd.Flags().StringVar(&flagSubdir, "subdir", "", "manifest subdirectory under the binding directory (default \"mets\")")
	rootCmd.AddCommand(metsCmd)
}

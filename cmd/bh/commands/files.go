package commands

import (
	"fmt"

	"bindharvest/pkg/paths"
	"bindharvest/pkg/types"

	"github.com/spf13/cobra"
)

var (
	filesRoot     string
	filesSubdir   string
	filesType     string
	filesMetsPath string
)

var filesCmd = &cobra.Command{
	Use:   "files [dc_identifier]",
	Short: "Download content files of one binding according to its stored METS",
	Long: `Re-reads the binding's METS from destination storage and downloads all
files of the requested type. Files already present (non-empty) are skipped;
individual transfer failures are logged and skipped without aborting the rest.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dc := types.DCIdentifier(args[0])

		metsPath := filesMetsPath
		if metsPath == "" {
			metsPath = paths.MetsPath(dc, filesRoot, "", "")
		}

		report, err := BH.Engine.HarvestFiles(ctx, dc, metsPath, filesRoot, filesSubdir, types.ParseFileType(filesType))
		if err != nil {
			return err
		}

		fmt.Println(report)
		return nil
	},
}

func init() {
	filesCmd.Flags().StringVar(&filesRoot, "root", "", "destination root inside the storage channel")
	filesCmd.Flags().StringVar(&filesSubdir, "subdir", "", "content subdirectory override (default: derived from each file's location)")
	filesCmd.Flags().StringVar(&filesType, "type", "alto", "file type to download (alto, image, ...)")
	filesCmd.Flags().StringVar(&filesMetsPath, "mets-path", "", "explicit path of the stored METS (default: conventional location)")
	rootCmd.AddCommand(filesCmd)
}

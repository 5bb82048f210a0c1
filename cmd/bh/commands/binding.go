package commands

import (
	"context"
	"fmt"

	"bindharvest/pkg/app"
	"bindharvest/pkg/harvester"
	"bindharvest/pkg/paths"
	"bindharvest/pkg/types"

	"github.com/spf13/cobra"
)

var (
	bindingRoot   string
	bindingSubdir string
	bindingType   string
)

var bindingCmd = &cobra.Command{
	Use:   "binding [dc_identifier...]",
	Short: "Harvest one or more bindings end to end (METS + content files)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		for _, arg := range args {
			report, err := harvestBinding(ctx, BH, "", types.DCIdentifier(arg), bindingRoot, bindingSubdir, types.ParseFileType(bindingType))
			if err != nil {
				return err
			}
			fmt.Println(report)
		}
		return nil
	},
}

// harvestBinding 对单个 binding 跑完整流程：
// METS 落盘 -> 按落盘的 METS 下载内容文件 -> (可选) 写账本。
// set 和 binding 两个命令共用它。
func harvestBinding(ctx context.Context, a *app.App, set types.SetID, dc types.DCIdentifier, root, subdir string, ft types.FileType) (*harvester.Report, error) {
	if err := a.Engine.HarvestMets(ctx, dc, root, subdir); err != nil {
		return nil, err
	}

	metsPath := paths.MetsPath(dc, root, subdir, "")
	report, err := a.Engine.HarvestFiles(ctx, dc, metsPath, root, "", ft)
	if err != nil {
		return nil, err
	}

	if a.Ledger != nil {
		if err := a.Ledger.RecordHarvest(ctx, set, report); err != nil {
			a.Log.Warn().Err(err).Str("binding", string(dc)).Msg("failed to record harvest in ledger")
		}
	}
	return report, nil
}

func init() {
	bindingCmd.Flags().StringVar(&bindingRoot, "root", "", "destination root inside the storage channel")
	bindingCmd.Flags().StringVar(&bindingSubdir, "subdir", "", "manifest subdirectory under the binding directory (default \"mets\")")
	bindingCmd.Flags().StringVar(&bindingType, "type", "alto", "file type to download (alto, image, ...)")
	rootCmd.AddCommand(bindingCmd)
}

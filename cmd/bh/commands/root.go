package commands

import (
	"fmt"
	"os"

	"bindharvest/pkg/app"
	"bindharvest/pkg/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	// 全局应用实例，供子命令使用
	// (set 命令的并行 worker 不用它，各自另建实例)
	BH *app.App
)

var rootCmd = &cobra.Command{
	Use:   "bh",
	Short: "bindharvest: replicate digitized bindings from NLF to storage",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		BH, err = app.New(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize bindharvest: %w", err)
		}
		return nil
	},
}

// Execute 是入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.bh/config.yaml)")

	// 常用配置同时开放为全局 flag，yaml / 环境变量 / flag 三者等价
	rootCmd.PersistentFlags().String("storage-path", "", "directory (or bucket prefix) to store downloads")
	rootCmd.PersistentFlags().String("api-url", "", "OAI-PMH endpoint of the source repository")
	rootCmd.PersistentFlags().String("ignore-file", "", "gitignore-style list of destination paths to never download")

	for flag, key := range map[string]string{
		"storage-path": "storage.path",
		"api-url":      "api.url",
		"ignore-file":  "ignore.file",
	} {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Println("Failed to bind flag:", err)
			os.Exit(1)
		}
	}
}

func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}
}

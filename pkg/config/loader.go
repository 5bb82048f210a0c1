package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 默认值
	setDefaults()

	// 2. 搜索路径
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath(".bh")
		viper.AddConfigPath(filepath.Join(home, ".bh"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// 3. 环境变量 (BH_STORAGE_TYPE 等)
	viper.SetEnvPrefix("BH")
	viper.AutomaticEnv()

	// 4. 读配置文件。没找到不算错 (可能全靠环境变量/默认值)，
	// 找到了但格式坏才是错。
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	}

	return nil
}

func setDefaults() {
	// 源端
	viper.SetDefault("api.url", "https://digi.kansalliskirjasto.fi/interfaces/OAI-PMH")

	// 目标存储
	wd, _ := os.Getwd()
	viper.SetDefault("storage.type", "disk")
	viper.SetDefault("storage.path", filepath.Join(wd, "downloads"))
	viper.SetDefault("storage.s3.region", "us-east-1")

	// Stat 缓存 (可选，url 为空则不启用)
	viper.SetDefault("cache.redis_url", "")
	viper.SetDefault("cache.ttl", 24*time.Hour)

	// 采集账本 (可选)
	viper.SetDefault("ledger.enabled", false)
	viper.SetDefault("ledger.driver", "sqlite")
	viper.SetDefault("ledger.dsn", filepath.Join(wd, ".bh", "ledger.db"))

	// 忽略集
	viper.SetDefault("ignore.file", "")

	viper.SetDefault("log.level", "info")
}

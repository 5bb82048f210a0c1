// pkg/app/app.go
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"bindharvest/pkg/harvester"
	"bindharvest/pkg/ignore"
	"bindharvest/pkg/meta"
	"bindharvest/pkg/source/nlf"
	"bindharvest/pkg/storage"
	"bindharvest/pkg/storage/cache"
	"bindharvest/pkg/storage/disk"
	"bindharvest/pkg/storage/s3"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器
// 它按配置组装好一套采集用的句柄；一个 App 实例对应一个 worker，
// 并行跑多个 binding 时每个 worker 各建一个 (句柄不共享)。
type App struct {
	Source *nlf.Client
	Store  storage.Store
	Engine *harvester.Engine
	Ignore *ignore.Matcher
	Log    zerolog.Logger

	// Ledger 可选，没启用时为 nil
	Ledger *meta.Repository
}

// New 按 Viper 配置组装一个 App
func New(ctx context.Context) (*App, error) {
	log := newLogger()

	// 1. 目标存储：disk 或 s3
	store, err := newStore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}

	// 2. 可选的 Redis Stat 缓存
	if url := viper.GetString("cache.redis_url"); url != "" {
		cached, err := cache.NewCachedStore(store, cache.Config{
			RedisURL: url,
			TTL:      viper.GetDuration("cache.ttl"),
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis cache: %w", err)
		}
		store = cached
	}

	// 3. 源端客户端
	src := nlf.New(viper.GetString("api.url"))

	// 4. 忽略集 (文件不存在时得到空 Matcher)
	matcher, err := ignore.NewMatcher(viper.GetString("ignore.file"))
	if err != nil {
		return nil, fmt.Errorf("failed to load ignore file: %w", err)
	}

	a := &App{
		Source: src,
		Store:  store,
		Engine: harvester.New(src, store, matcher, log),
		Ignore: matcher,
		Log:    log,
	}

	// 5. 可选账本
	if viper.GetBool("ledger.enabled") {
		db, err := meta.NewDB(ctx, meta.Config{
			Driver: viper.GetString("ledger.driver"),
			DSN:    viper.GetString("ledger.dsn"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		a.Ledger = meta.NewRepository(db)
	}

	return a, nil
}

func newStore(ctx context.Context) (storage.Store, error) {
	switch t := viper.GetString("storage.type"); t {
	case "disk", "":
		return disk.NewAdapter(viper.GetString("storage.path"))
	case "s3":
		return s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("storage.s3.endpoint"),
			Region:          viper.GetString("storage.s3.region"),
			Bucket:          viper.GetString("storage.s3.bucket"),
			Prefix:          viper.GetString("storage.s3.prefix"),
			AccessKeyID:     viper.GetString("storage.s3.access_key"),
			SecretAccessKey: viper.GetString("storage.s3.secret_key"),
		})
	default:
		return nil, fmt.Errorf("unknown storage.type %q", t)
	}
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(viper.GetString("log.level"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()
}

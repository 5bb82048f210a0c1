package meta

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config 账本数据库配置
// Driver: "sqlite" (本地/测试) 或 "postgres" (共享部署)
type Config struct {
	Driver string
	// DSN: sqlite 是文件路径，postgres 是连接串
	DSN string
}

// DB 封装 GORM 实例，作为账本层的入口
type DB struct {
	conn *gorm.DB
}

// NewDB 打开连接并迁移表结构
func NewDB(ctx context.Context, cfg Config) (*DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("meta: unsupported driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("meta: failed to connect: %w", err)
	}

	if cfg.Driver == "postgres" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := db.WithContext(ctx).AutoMigrate(&SeenBinding{}, &BindingHarvest{}); err != nil {
		return nil, fmt.Errorf("meta: migrate: %w", err)
	}

	return &DB{conn: db}, nil
}

func (d *DB) GetConn() *gorm.DB { return d.conn }

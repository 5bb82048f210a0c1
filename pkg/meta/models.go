package meta

import (
	"time"

	"gorm.io/datatypes"
)

// SeenBinding 记录某个集合里已经见过的 binding
// 枚举到但还没出现在这张表里的就是"新 binding"：
// 重跑时据此判断有没有活可干。
type SeenBinding struct {
	ID           uint   `gorm:"primaryKey"`
	SetID        string `gorm:"uniqueIndex:idx_set_binding;type:varchar(100)"`
	DCIdentifier string `gorm:"uniqueIndex:idx_set_binding;type:varchar(255)"`
	FirstSeenAt  time.Time
}

func (SeenBinding) TableName() string { return "seen_bindings" }

// BindingHarvest 是一次 (binding, 文件类型) 采集的结果投影
// 每对 (DCIdentifier, FileType) 只留最新一行，重跑覆盖。
type BindingHarvest struct {
	ID           uint   `gorm:"primaryKey"`
	SetID        string `gorm:"index;type:varchar(100)"`
	DCIdentifier string `gorm:"uniqueIndex:idx_binding_filetype;type:varchar(255)"`
	FileType     string `gorm:"uniqueIndex:idx_binding_filetype;type:varchar(32)"`

	Total      int
	Downloaded int
	Skipped    int
	Ignored    int
	Failed     int

	// Failures 存失败明细 [{"path":..,"location":..,"error":..}]
	// 非结构化，用 JSON 列而不是再开一张表
	Failures datatypes.JSON

	CompletedAt time.Time
}

func (BindingHarvest) TableName() string { return "binding_harvests" }

package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bindharvest/pkg/harvester"
	"bindharvest/pkg/types"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrHarvestNotFound = errors.New("meta: no harvest recorded")

// Repository 封装所有对账本数据库的操作
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// -----------------------------------------------------------------------------
// 1. 集合内已见 binding (新旧判断)
// -----------------------------------------------------------------------------

// MarkSeen 把一批枚举到的 binding 登记为已见，返回其中首次出现的那些
// 幂等：重复登记被唯一索引吸收，不报错。
func (r *Repository) MarkSeen(ctx context.Context, set types.SetID, ids []types.DCIdentifier) ([]types.DCIdentifier, error) {
	var fresh []types.DCIdentifier
	now := time.Now()

	err := r.db.GetConn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, dc := range ids {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&SeenBinding{
				SetID:        string(set),
				DCIdentifier: string(dc),
				FirstSeenAt:  now,
			})
			if res.Error != nil {
				return fmt.Errorf("mark seen %s: %w", dc, res.Error)
			}
			if res.RowsAffected > 0 {
				fresh = append(fresh, dc)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// SeenCount 返回集合里已登记的 binding 数
func (r *Repository) SeenCount(ctx context.Context, set types.SetID) (int64, error) {
	var n int64
	err := r.db.GetConn().WithContext(ctx).
		Model(&SeenBinding{}).
		Where("set_id = ?", set).
		Count(&n).Error
	return n, err
}

// -----------------------------------------------------------------------------
// 2. 采集结果
// -----------------------------------------------------------------------------

type failureDetail struct {
	Path     string `json:"path"`
	Location string `json:"location"`
	Error    string `json:"error"`
}

// RecordHarvest 落一行采集结果，同 (binding, 文件类型) 覆盖旧行
func (r *Repository) RecordHarvest(ctx context.Context, set types.SetID, report *harvester.Report) error {
	var details []failureDetail
	for _, f := range report.Failures() {
		details = append(details, failureDetail{
			Path:     f.Path,
			Location: f.Location,
			Error:    f.Err.Error(),
		})
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("meta: marshal failures: %w", err)
	}

	row := BindingHarvest{
		SetID:        string(set),
		DCIdentifier: string(report.DC),
		FileType:     string(report.FileType),
		Total:        report.Total(),
		Downloaded:   report.Downloaded(),
		Skipped:      report.Skipped(),
		Ignored:      report.Ignored(),
		Failed:       report.Failed(),
		Failures:     payload,
		CompletedAt:  time.Now(),
	}

	return r.db.GetConn().WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "dc_identifier"}, {Name: "file_type"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"set_id", "total", "downloaded", "skipped", "ignored", "failed", "failures", "completed_at",
			}),
		}).
		Create(&row).Error
}

// LastHarvest 查询某个 binding 最近一次采集结果
func (r *Repository) LastHarvest(ctx context.Context, dc types.DCIdentifier, ft types.FileType) (*BindingHarvest, error) {
	var row BindingHarvest
	err := r.db.GetConn().WithContext(ctx).
		Where("dc_identifier = ? AND file_type = ?", dc, ft).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrHarvestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Incomplete 返回集合里仍有失败文件的 binding
func (r *Repository) Incomplete(ctx context.Context, set types.SetID) ([]BindingHarvest, error) {
	var rows []BindingHarvest
	err := r.db.GetConn().WithContext(ctx).
		Where("set_id = ? AND failed > 0", set).
		Order("dc_identifier").
		Find(&rows).Error
	return rows, err
}

// Package mysql 实现持仓历史的 MySQL 审计仓储，基于 GORM
package mysql

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"github.com/quantex/strategyengine/internal/position/domain"
)

// PositionHistoryModel 持仓历史表模型
type PositionHistoryModel struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"`
	Action     string    `gorm:"type:varchar(32);not null"`
	PositionID string    `gorm:"type:varchar(64);index;not null"`
	Timestamp  time.Time `gorm:"index;not null"`
	Data       string    `gorm:"type:json"`
}

// TableName 指定表名
func (PositionHistoryModel) TableName() string {
	return "position_history"
}

type historyRepository struct {
	db *gorm.DB
}

// NewHistoryRepository 创建持仓历史仓储并迁移表结构
func NewHistoryRepository(db *gorm.DB) (domain.HistoryRepository, error) {
	if err := db.AutoMigrate(&PositionHistoryModel{}); err != nil {
		return nil, err
	}
	return &historyRepository{db: db}, nil
}

func (r *historyRepository) Append(ctx context.Context, record *domain.HistoryRecord) error {
	var data string
	if record.Data != nil {
		raw, err := json.Marshal(record.Data)
		if err != nil {
			return err
		}
		data = string(raw)
	}
	model := &PositionHistoryModel{
		Action:     record.Action,
		PositionID: record.PositionID,
		Timestamp:  record.Timestamp,
		Data:       data,
	}
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *historyRepository) ListByPosition(ctx context.Context, positionID string, limit int) ([]*domain.HistoryRecord, error) {
	var models []PositionHistoryModel
	err := r.db.WithContext(ctx).
		Where("position_id = ?", positionID).
		Order("timestamp DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toRecords(models)
}

func (r *historyRepository) ListRecent(ctx context.Context, limit int) ([]*domain.HistoryRecord, error) {
	var models []PositionHistoryModel
	err := r.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toRecords(models)
}

func toRecords(models []PositionHistoryModel) ([]*domain.HistoryRecord, error) {
	records := make([]*domain.HistoryRecord, 0, len(models))
	for _, m := range models {
		record := &domain.HistoryRecord{
			Action:     m.Action,
			PositionID: m.PositionID,
			Timestamp:  m.Timestamp,
		}
		if m.Data != "" {
			if err := json.Unmarshal([]byte(m.Data), &record.Data); err != nil {
				return nil, err
			}
		}
		records = append(records, record)
	}
	return records, nil
}

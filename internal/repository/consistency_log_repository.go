package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"spatial-hub-go/internal/consistency"
	"spatial-hub-go/internal/model"
	"spatial-hub-go/pkg/database"
)

// ConsistencyLogRepository 接口定义了一致性检查审计日志的持久化操作。
type ConsistencyLogRepository interface {
	Insert(ctx context.Context, entry *model.ConsistencyLog) error
	Recent(ctx context.Context, limit int) ([]model.ConsistencyLog, error)
	AutoMigrate() error
}

// consistencyLogRepository 是 ConsistencyLogRepository 接口的 GORM 实现。
type consistencyLogRepository struct {
	db *gorm.DB
}

// NewConsistencyLogRepository 创建一个新的 ConsistencyLogRepository 实例。
func NewConsistencyLogRepository(db *gorm.DB) ConsistencyLogRepository {
	return &consistencyLogRepository{db: db}
}

// Insert 追加一条审计日志。日志表不存在时返回包装了 consistency.ErrLogSinkMissing 的错误。
func (r *consistencyLogRepository) Insert(ctx context.Context, entry *model.ConsistencyLog) error {
	return translateLogError(r.db.WithContext(ctx).Create(entry).Error)
}

// Recent 返回最近的 limit 条审计日志，按创建时间倒序。
func (r *consistencyLogRepository) Recent(ctx context.Context, limit int) ([]model.ConsistencyLog, error) {
	var entries []model.ConsistencyLog
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, translateLogError(err)
	}
	return entries, nil
}

// AutoMigrate 创建审计日志表。
func (r *consistencyLogRepository) AutoMigrate() error {
	return r.db.AutoMigrate(&model.ConsistencyLog{})
}

func translateLogError(err error) error {
	if err == nil {
		return nil
	}
	if database.IsTableNotExist(err) {
		return fmt.Errorf("%w: %v", consistency.ErrLogSinkMissing, err)
	}
	return err
}

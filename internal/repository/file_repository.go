// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"spatial-hub-go/internal/model"
)

// FileRepository 接口定义了 files 表的读取和删除操作，供一致性引擎作为元数据存储使用。
type FileRepository interface {
	ListFiles(ctx context.Context, limit int) ([]model.FileRecord, error)
	FindFile(ctx context.Context, id string) (*model.FileRecord, error)
	DeleteFile(ctx context.Context, id string) error
}

// fileRepository 是 FileRepository 接口的 GORM 实现。
type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository 创建一个新的 FileRepository 实例。
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

// ListFiles 按创建时间倒序返回文件记录，limit <= 0 表示不限制条数。
func (r *fileRepository) ListFiles(ctx context.Context, limit int) ([]model.FileRecord, error) {
	var records []model.FileRecord
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	return records, err
}

// FindFile 根据 ID 查找文件记录，记录不存在时返回 (nil, nil)。
func (r *fileRepository) FindFile(ctx context.Context, id string) (*model.FileRecord, error) {
	var record model.FileRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteFile 删除一条文件记录。记录已不存在时不报错。
func (r *fileRepository) DeleteFile(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.FileRecord{}).Error
}

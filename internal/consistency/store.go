// Package consistency 实现对象存储与元数据库之间的一致性检查与修复。
//
// 引擎只依赖这里定义的三个能力接口，具体实现（MySQL、MinIO）由调用方在构造时注入，
// 连接的建立与关闭也由调用方负责。
package consistency

import (
	"context"

	"spatial-hub-go/internal/model"
	"spatial-hub-go/pkg/storage"
)

// MetadataStore 是元数据库提供的能力。
type MetadataStore interface {
	// ListFiles 返回文件记录；limit > 0 时按创建时间倒序截取，否则返回全部。
	ListFiles(ctx context.Context, limit int) ([]model.FileRecord, error)
	// FindFile 按 id 查找记录，不存在时返回 (nil, nil)。
	FindFile(ctx context.Context, id string) (*model.FileRecord, error)
	// DeleteFile 删除记录；记录已不存在时同样返回 nil。
	DeleteFile(ctx context.Context, id string) error
}

// ObjectStore 是对象存储提供的能力。
type ObjectStore interface {
	// List 返回 prefix 下一层的条目。
	List(ctx context.Context, prefix string) ([]storage.Entry, error)
	// Remove 删除一批对象，任一失败即整批返回错误；对象不存在视为成功。
	Remove(ctx context.Context, paths []string) error
	// Exists 判断单个对象是否存在。
	Exists(ctx context.Context, path string) (bool, error)
}

// LogStore 是审计日志的追加式存储。表不存在时实现应返回包装了 ErrLogSinkMissing 的错误。
type LogStore interface {
	Insert(ctx context.Context, entry *model.ConsistencyLog) error
	Recent(ctx context.Context, limit int) ([]model.ConsistencyLog, error)
}

package consistency

import (
	"context"
)

// CheckOne 检查单个文件两侧是否都存在，两个结果相互独立，调用方可以分辨缺失的是哪一侧。
func (e *Engine) CheckOne(ctx context.Context, id string) (*FileCheck, error) {
	result := &FileCheck{FileID: id, CheckedAt: e.now()}

	record, err := e.meta.FindFile(ctx, id)
	if err != nil {
		return nil, &QueryError{Op: "find file record " + id, Err: err}
	}
	if record != nil {
		result.DbRecordExists = true
		result.StoragePath = record.Path()
	}

	if result.StoragePath != "" {
		exists, err := e.objects.Exists(ctx, result.StoragePath)
		if err != nil {
			return nil, &ListError{Prefix: result.StoragePath, Err: err}
		}
		result.StorageObjectExists = exists
	}

	e.audit.RecordSingle(ctx, result)
	return result, nil
}

package consistency

import (
	"context"
	"encoding/json"
	"errors"

	"spatial-hub-go/internal/model"
	"spatial-hub-go/pkg/log"
)

// StatusFor 按孤立项数量推导审计状态：任一侧有孤立项为 warning，否则为 success。
func StatusFor(orphanedRecords, orphanedFiles int) string {
	if orphanedRecords+orphanedFiles > 0 {
		return model.CheckStatusWarning
	}
	return model.CheckStatusSuccess
}

// AuditLogger 把每次检查的摘要写入追加式日志。写入是尽力而为的，从不向调用方返回错误。
type AuditLogger struct {
	store       LogStore
	defaultSize int
}

// NewAuditLogger 创建一个新的 AuditLogger 实例。
func NewAuditLogger(store LogStore, defaultSize int) *AuditLogger {
	if defaultSize <= 0 {
		defaultSize = defaultRecentLogs
	}
	return &AuditLogger{store: store, defaultSize: defaultSize}
}

// checkDetails 序列化后写入日志的 details 字段。
type checkDetails struct {
	ReportID         string   `json:"reportId,omitempty"`
	DbRecordCount    int      `json:"dbRecordCount"`
	StorageFileCount int      `json:"storageFileCount"`
	SkippedRecords   int      `json:"skippedRecords,omitempty"`
	Limit            int      `json:"limit,omitempty"`
	DurationMs       int64    `json:"durationMs"`
	Partial          bool     `json:"partial,omitempty"`
	SkippedPrefixes  []string `json:"skippedPrefixes,omitempty"`
	FileID           string   `json:"fileId,omitempty"`
	StoragePath      string   `json:"storagePath,omitempty"`
	Error            string   `json:"error,omitempty"`
}

// Record 写入一份报告的摘要。
func (a *AuditLogger) Record(ctx context.Context, r *Report) AuditStatus {
	return a.persist(ctx, &model.ConsistencyLog{
		CheckType:       r.CheckType,
		Status:          r.Status(),
		OrphanedRecords: len(r.OrphanedDbRecords),
		OrphanedFiles:   len(r.OrphanedStorageFiles),
		ValidFiles:      r.ValidCount,
		Details: encodeDetails(checkDetails{
			ReportID:         r.ID,
			DbRecordCount:    r.DbRecordCount,
			StorageFileCount: r.StorageFileCount,
			SkippedRecords:   r.SkippedRecords,
			Limit:            r.Limit,
			DurationMs:       r.DurationMs,
			Partial:          r.Partial,
			SkippedPrefixes:  r.SkippedPrefixes,
		}),
	})
}

// RecordFailure 为一次失败的检查写入 error 状态的日志。
func (a *AuditLogger) RecordFailure(ctx context.Context, checkType string, cause error) AuditStatus {
	return a.persist(ctx, &model.ConsistencyLog{
		CheckType: checkType,
		Status:    model.CheckStatusError,
		Details:   encodeDetails(checkDetails{Error: cause.Error()}),
	})
}

// RecordSingle 写入单文件检查的结果。
func (a *AuditLogger) RecordSingle(ctx context.Context, fc *FileCheck) AuditStatus {
	entry := &model.ConsistencyLog{
		CheckType: model.CheckTypeSingle,
		Status:    model.CheckStatusSuccess,
		Details:   encodeDetails(checkDetails{FileID: fc.FileID, StoragePath: fc.StoragePath}),
	}
	switch {
	case fc.DbRecordExists && fc.StorageObjectExists:
		entry.ValidFiles = 1
	case fc.DbRecordExists:
		entry.OrphanedRecords = 1
		entry.Status = model.CheckStatusWarning
	default:
		entry.Status = model.CheckStatusWarning
	}
	return a.persist(ctx, entry)
}

func (a *AuditLogger) persist(ctx context.Context, entry *model.ConsistencyLog) AuditStatus {
	err := a.store.Insert(ctx, entry)
	switch {
	case err == nil:
		return AuditRecorded
	case errors.Is(err, ErrLogSinkMissing):
		log.Infof("[AuditLogger] 审计日志表不存在，跳过写入 (checkType=%s)", entry.CheckType)
		return AuditSinkMissing
	default:
		log.Warnw("failed to write consistency log", "checkType", entry.CheckType, "error", &LogWriteError{Err: err})
		return AuditWriteFailed
	}
}

// Recent 返回最近 n 条日志，按创建时间倒序。日志表不存在时返回空列表。
func (a *AuditLogger) Recent(ctx context.Context, n int) ([]model.ConsistencyLog, error) {
	if n <= 0 {
		n = a.defaultSize
	}
	if n > maxRecentLogs {
		n = maxRecentLogs
	}
	entries, err := a.store.Recent(ctx, n)
	if err != nil {
		if errors.Is(err, ErrLogSinkMissing) {
			return []model.ConsistencyLog{}, nil
		}
		return nil, &QueryError{Op: "read consistency logs", Err: err}
	}
	if entries == nil {
		entries = []model.ConsistencyLog{}
	}
	return entries, nil
}

func encodeDetails(d checkDetails) string {
	b, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(b)
}

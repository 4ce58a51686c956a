package consistency

import (
	"time"

	"spatial-hub-go/internal/model"
)

// CheckOptions 控制一次全量/增量检查。
type CheckOptions struct {
	IncludeValidFiles bool `json:"includeValidFiles"`
	// Limit > 0 时只取最新的 Limit 条元数据记录，检查类型记为 incremental。
	Limit int `json:"limit"`
}

// CheckType 返回这次检查在报告和审计日志中使用的类型。
func (o CheckOptions) CheckType() string {
	if o.Limit > 0 {
		return model.CheckTypeIncremental
	}
	return model.CheckTypeFull
}

// OrphanedRecord 是一条在对象存储中找不到对应对象的元数据记录。
type OrphanedRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	StoragePath string    `json:"storagePath"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ValidFile 是两侧都存在的文件。
type ValidFile struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// AuditStatus 描述报告写入审计日志的结果。
type AuditStatus string

const (
	AuditRecorded    AuditStatus = "recorded"
	AuditSinkMissing AuditStatus = "sink_missing"
	AuditWriteFailed AuditStatus = "write_failed"
)

// Report 是一次检查的结果快照，RunCheck 返回后不再修改。
type Report struct {
	ID                   string           `json:"id"`
	CheckType            string           `json:"checkType"`
	OrphanedDbRecords    []OrphanedRecord `json:"orphanedDbRecords"`
	OrphanedStorageFiles []string         `json:"orphanedStorageFiles"`
	ValidFiles           []ValidFile      `json:"validFiles,omitempty"`
	ValidCount           int              `json:"validCount"`
	DbRecordCount        int              `json:"dbRecordCount"`
	StorageFileCount     int              `json:"storageFileCount"`
	TotalChecked         int              `json:"totalChecked"`
	// SkippedRecords 是没有存储路径、未参与比对的记录数（仍计入 TotalChecked）。
	SkippedRecords int       `json:"skippedRecords"`
	Limit          int       `json:"limit,omitempty"`
	CheckedAt      time.Time `json:"checkedAt"`
	DurationMs     int64     `json:"durationMs"`
	// Partial 为 true 表示部分子目录列举失败，孤立对象可能被低估，孤立记录可能被高估。
	Partial         bool        `json:"partial"`
	SkippedPrefixes []string    `json:"skippedPrefixes,omitempty"`
	AuditStatus     AuditStatus `json:"auditStatus"`
}

// OrphanCount 返回两侧孤立项的总数。
func (r *Report) OrphanCount() int {
	return len(r.OrphanedDbRecords) + len(r.OrphanedStorageFiles)
}

// Status 按孤立项数量推导日志状态。
func (r *Report) Status() string {
	return StatusFor(len(r.OrphanedDbRecords), len(r.OrphanedStorageFiles))
}

// RepairFailure 是一个修复失败的项。
type RepairFailure struct {
	ID    string `json:"id,omitempty"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error"`
}

// RepairResult 记录一次修复中每一项的结果，每一项只会出现在 Success 或 Failed 之一。
type RepairResult struct {
	Success []string        `json:"success"`
	Failed  []RepairFailure `json:"failed"`
}

func newRepairResult() RepairResult {
	return RepairResult{Success: []string{}, Failed: []RepairFailure{}}
}

// FileCheck 是单文件检查的结果。
type FileCheck struct {
	FileID              string    `json:"fileId"`
	DbRecordExists      bool      `json:"dbRecordExists"`
	StorageObjectExists bool      `json:"storageObjectExists"`
	StoragePath         string    `json:"storagePath,omitempty"`
	CheckedAt           time.Time `json:"checkedAt"`
}

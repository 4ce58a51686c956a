package consistency

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"spatial-hub-go/internal/model"
	"spatial-hub-go/pkg/log"
)

const (
	defaultRepairBatchSize   = 100
	defaultRepairMaxInFlight = 4
	defaultRecentLogs        = 10
	maxRecentLogs            = 100
)

// Options 配置引擎的遍历起点和修复并发度。
type Options struct {
	RootPrefix        string
	RepairBatchSize   int
	RepairMaxInFlight int
	RecentLogsDefault int
}

func (o Options) withDefaults() Options {
	if o.RepairBatchSize <= 0 {
		o.RepairBatchSize = defaultRepairBatchSize
	}
	if o.RepairMaxInFlight <= 0 {
		o.RepairMaxInFlight = defaultRepairMaxInFlight
	}
	if o.RecentLogsDefault <= 0 {
		o.RecentLogsDefault = defaultRecentLogs
	}
	return o
}

// Engine 负责检查、修复和审计。每次调用相互独立，不持有跨调用的可变状态。
type Engine struct {
	meta    MetadataStore
	objects ObjectStore
	lister  *ObjectLister
	audit   *AuditLogger
	opts    Options
	now     func() time.Time
}

// NewEngine 创建一个新的 Engine 实例。
func NewEngine(meta MetadataStore, objects ObjectStore, logs LogStore, opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		meta:    meta,
		objects: objects,
		lister:  NewObjectLister(objects, opts.RootPrefix),
		audit:   NewAuditLogger(logs, opts.RecentLogsDefault),
		opts:    opts,
		now:     time.Now,
	}
}

// RunCheck 比对两侧的全部内容并生成报告。
//
// 元数据和对象列举并发执行；任意一侧无法列举时返回 *AggregateError，
// 并尽力写入一条 error 状态的审计日志。审计日志写入失败不会影响返回的报告。
func (e *Engine) RunCheck(ctx context.Context, opts CheckOptions) (*Report, error) {
	start := time.Now()
	checkType := opts.CheckType()

	var (
		records       []model.FileRecord
		listing       *Listing
		metaErr, lErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := e.meta.ListFiles(gctx, opts.Limit)
		if err != nil {
			metaErr = &QueryError{Op: "list file records", Err: err}
			return metaErr
		}
		records = recs
		return nil
	})
	g.Go(func() error {
		listing, lErr = e.lister.ListAll(gctx)
		return lErr
	})
	if err := g.Wait(); err != nil {
		aggErr := newAggregateError(metaErr, lErr)
		log.Error("[RunCheck] 一致性检查失败", aggErr)
		e.audit.RecordFailure(ctx, checkType, aggErr)
		return nil, aggErr
	}

	result := reconcile(records, listing.Paths, opts.IncludeValidFiles)
	report := &Report{
		ID:                   uuid.NewString(),
		CheckType:            checkType,
		OrphanedDbRecords:    result.orphanedRecords,
		OrphanedStorageFiles: result.orphanedObjects,
		ValidFiles:           result.valid,
		ValidCount:           result.validCount,
		DbRecordCount:        len(records),
		StorageFileCount:     len(listing.Paths),
		TotalChecked:         len(records),
		SkippedRecords:       result.skipped,
		Limit:                opts.Limit,
		CheckedAt:            e.now(),
		DurationMs:           time.Since(start).Milliseconds(),
		Partial:              listing.Partial(),
		SkippedPrefixes:      listing.SkippedPrefixes(),
	}
	report.AuditStatus = e.audit.Record(ctx, report)

	log.Infow("consistency check finished",
		"reportId", report.ID,
		"checkType", report.CheckType,
		"dbRecords", report.DbRecordCount,
		"storageFiles", report.StorageFileCount,
		"orphanedRecords", len(report.OrphanedDbRecords),
		"orphanedFiles", len(report.OrphanedStorageFiles),
		"partial", report.Partial,
		"durationMs", report.DurationMs,
	)
	return report, nil
}

// RecentLogs 返回最近 n 条审计日志。
func (e *Engine) RecentLogs(ctx context.Context, n int) ([]model.ConsistencyLog, error) {
	return e.audit.Recent(ctx, n)
}

type reconcileResult struct {
	orphanedRecords []OrphanedRecord
	orphanedObjects []string
	valid           []ValidFile
	validCount      int
	skipped         int
}

// reconcile 用集合成员关系划分两侧：每个有路径的记录要么有效要么孤立，
// 每个存储路径要么被某条记录引用要么孤立。没有路径的记录不进入任何集合。
func reconcile(records []model.FileRecord, paths []string, includeValid bool) reconcileResult {
	storagePaths := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		storagePaths[p] = struct{}{}
	}
	seen := make(map[string]struct{}, len(records))

	res := reconcileResult{
		orphanedRecords: []OrphanedRecord{},
		orphanedObjects: []string{},
	}
	if includeValid {
		res.valid = []ValidFile{}
	}

	for _, rec := range records {
		path := rec.Path()
		if path == "" {
			res.skipped++
			continue
		}
		seen[path] = struct{}{}
		if _, ok := storagePaths[path]; ok {
			res.validCount++
			if includeValid {
				res.valid = append(res.valid, ValidFile{ID: rec.ID, Name: rec.Name, Path: path, Size: rec.Size})
			}
			continue
		}
		res.orphanedRecords = append(res.orphanedRecords, OrphanedRecord{
			ID:          rec.ID,
			Name:        rec.Name,
			StoragePath: path,
			Size:        rec.Size,
			CreatedAt:   rec.CreatedAt,
		})
	}

	for p := range storagePaths {
		if _, ok := seen[p]; !ok {
			res.orphanedObjects = append(res.orphanedObjects, p)
		}
	}
	sort.Strings(res.orphanedObjects)
	return res
}

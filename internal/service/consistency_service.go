// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spatial-hub-go/internal/consistency"
	"spatial-hub-go/internal/metrics"
	"spatial-hub-go/internal/model"
	"spatial-hub-go/internal/repository"
	"spatial-hub-go/pkg/log"
	"spatial-hub-go/pkg/tasks"
)

// ErrOperationInProgress 表示另一个检查或修复正在进行。
var ErrOperationInProgress = errors.New("another consistency operation is in progress")

// operationLock 是检查和修复共用的锁名，同一时间只允许一个扫描或修复。
const operationLock = "operation"

// Reconciler 是服务所依赖的一致性引擎能力，由 *consistency.Engine 实现。
type Reconciler interface {
	RunCheck(ctx context.Context, opts consistency.CheckOptions) (*consistency.Report, error)
	RepairRecords(ctx context.Context, ids []string) consistency.RepairResult
	RepairObjects(ctx context.Context, paths []string) consistency.RepairResult
	RecentLogs(ctx context.Context, n int) ([]model.ConsistencyLog, error)
	CheckOne(ctx context.Context, id string) (*consistency.FileCheck, error)
}

// EventPublisher 发布检查/修复完成事件。
type EventPublisher interface {
	PublishEvent(ctx context.Context, event tasks.ConsistencyEvent) error
}

// ConsistencyService 接口定义了存储与元数据一致性相关的业务操作。
type ConsistencyService interface {
	RunCheck(ctx context.Context, opts consistency.CheckOptions) (*consistency.Report, error)
	// LastReport 返回缓存的最近一次报告，没有时返回 (nil, nil)。
	LastReport(ctx context.Context) (*consistency.Report, error)
	RepairRecords(ctx context.Context, ids []string) (consistency.RepairResult, error)
	RepairObjects(ctx context.Context, paths []string) (consistency.RepairResult, error)
	RecentLogs(ctx context.Context, n int) ([]model.ConsistencyLog, error)
	CheckFile(ctx context.Context, id string) (*consistency.FileCheck, error)
}

// ConsistencyServiceOptions 配置锁和报告缓存的有效期。
type ConsistencyServiceOptions struct {
	LockTTL   time.Duration
	ReportTTL time.Duration
}

// consistencyService 是 ConsistencyService 接口的实现。
type consistencyService struct {
	engine    Reconciler
	cache     repository.ConsistencyCacheRepository
	metrics   *metrics.ConsistencyMetrics
	publisher EventPublisher
	opts      ConsistencyServiceOptions
}

// NewConsistencyService 创建一个新的 ConsistencyService 实例。publisher 为 nil 时不发布事件。
func NewConsistencyService(
	engine Reconciler,
	cache repository.ConsistencyCacheRepository,
	m *metrics.ConsistencyMetrics,
	publisher EventPublisher,
	opts ConsistencyServiceOptions,
) ConsistencyService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	if opts.ReportTTL <= 0 {
		opts.ReportTTL = 24 * time.Hour
	}
	return &consistencyService{
		engine:    engine,
		cache:     cache,
		metrics:   m,
		publisher: publisher,
		opts:      opts,
	}
}

func (s *consistencyService) RunCheck(ctx context.Context, opts consistency.CheckOptions) (*consistency.Report, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	report, err := s.engine.RunCheck(ctx, opts)
	if err != nil {
		s.metrics.ObserveFailedCheck(opts.CheckType(), time.Since(start))
		s.publish(ctx, tasks.ConsistencyEvent{
			Kind:       tasks.KindCheck,
			CheckType:  opts.CheckType(),
			Status:     model.CheckStatusError,
			OccurredAt: time.Now(),
		})
		return nil, err
	}

	s.metrics.ObserveCheck(report.CheckType, report.Status(), time.Since(start),
		len(report.OrphanedDbRecords), len(report.OrphanedStorageFiles), report.Partial)

	if err := s.cache.SaveLastReport(context.WithoutCancel(ctx), report, s.opts.ReportTTL); err != nil {
		log.Warnw("failed to cache consistency report", "reportId", report.ID, "error", err)
	}

	s.publish(ctx, tasks.ConsistencyEvent{
		Kind:            tasks.KindCheck,
		ReportID:        report.ID,
		CheckType:       report.CheckType,
		Status:          report.Status(),
		OrphanedRecords: len(report.OrphanedDbRecords),
		OrphanedFiles:   len(report.OrphanedStorageFiles),
		Partial:         report.Partial,
		OccurredAt:      report.CheckedAt,
	})
	return report, nil
}

func (s *consistencyService) LastReport(ctx context.Context) (*consistency.Report, error) {
	return s.cache.GetLastReport(ctx)
}

func (s *consistencyService) RepairRecords(ctx context.Context, ids []string) (consistency.RepairResult, error) {
	return s.repair(ctx, tasks.KindRepairRecords, "records", func() consistency.RepairResult {
		return s.engine.RepairRecords(ctx, ids)
	})
}

func (s *consistencyService) RepairObjects(ctx context.Context, paths []string) (consistency.RepairResult, error) {
	return s.repair(ctx, tasks.KindRepairObjects, "objects", func() consistency.RepairResult {
		return s.engine.RepairObjects(ctx, paths)
	})
}

func (s *consistencyService) repair(ctx context.Context, kind, side string, run func() consistency.RepairResult) (consistency.RepairResult, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return consistency.RepairResult{}, err
	}
	defer release()

	result := run()
	s.metrics.ObserveRepair(side, len(result.Success), len(result.Failed))

	status := model.CheckStatusSuccess
	if len(result.Failed) > 0 {
		status = model.CheckStatusWarning
	}
	s.publish(ctx, tasks.ConsistencyEvent{
		Kind:       kind,
		Status:     status,
		Succeeded:  len(result.Success),
		Failed:     len(result.Failed),
		OccurredAt: time.Now(),
	})
	return result, nil
}

func (s *consistencyService) RecentLogs(ctx context.Context, n int) ([]model.ConsistencyLog, error) {
	return s.engine.RecentLogs(ctx, n)
}

func (s *consistencyService) CheckFile(ctx context.Context, id string) (*consistency.FileCheck, error) {
	return s.engine.CheckOne(ctx, id)
}

// acquire 获取操作锁，返回的 release 在调用方返回时释放锁。
func (s *consistencyService) acquire(ctx context.Context) (func(), error) {
	token, ok, err := s.cache.AcquireLock(ctx, operationLock, s.opts.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire consistency lock: %w", err)
	}
	if !ok {
		return nil, ErrOperationInProgress
	}
	return func() {
		if err := s.cache.ReleaseLock(context.WithoutCancel(ctx), operationLock, token); err != nil {
			log.Warnw("failed to release consistency lock", "error", err)
		}
	}, nil
}

func (s *consistencyService) publish(ctx context.Context, event tasks.ConsistencyEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishEvent(ctx, event); err != nil {
		log.Warnw("failed to publish consistency event", "kind", event.Kind, "error", err)
	}
}

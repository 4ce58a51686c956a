package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"spatial-hub-go/internal/consistency"
	"spatial-hub-go/internal/metrics"
	"spatial-hub-go/internal/model"
	"spatial-hub-go/internal/repository"
	"spatial-hub-go/pkg/tasks"
)

type stubReconciler struct {
	report   *consistency.Report
	err      error
	repair   consistency.RepairResult
	check    *consistency.FileCheck
	logs     []model.ConsistencyLog
	started  chan struct{}
	block    chan struct{}
	lastOpts consistency.CheckOptions
}

func (r *stubReconciler) RunCheck(_ context.Context, opts consistency.CheckOptions) (*consistency.Report, error) {
	r.lastOpts = opts
	if r.started != nil {
		close(r.started)
	}
	if r.block != nil {
		<-r.block
	}
	return r.report, r.err
}

func (r *stubReconciler) RepairRecords(context.Context, []string) consistency.RepairResult {
	return r.repair
}

func (r *stubReconciler) RepairObjects(context.Context, []string) consistency.RepairResult {
	return r.repair
}

func (r *stubReconciler) RecentLogs(context.Context, int) ([]model.ConsistencyLog, error) {
	return r.logs, nil
}

func (r *stubReconciler) CheckOne(context.Context, string) (*consistency.FileCheck, error) {
	return r.check, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []tasks.ConsistencyEvent
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, e tasks.ConsistencyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

type serviceFixture struct {
	svc       ConsistencyService
	engine    *stubReconciler
	publisher *recordingPublisher
	metrics   *metrics.ConsistencyMetrics
	redis     *miniredis.Miniredis
}

func newServiceFixture(t *testing.T, engine *stubReconciler) *serviceFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	m := metrics.NewConsistencyMetrics(prometheus.NewRegistry())
	pub := &recordingPublisher{}
	svc := NewConsistencyService(engine, repository.NewConsistencyCacheRepository(rdb), m, pub,
		ConsistencyServiceOptions{LockTTL: time.Minute, ReportTTL: time.Hour})
	return &serviceFixture{svc: svc, engine: engine, publisher: pub, metrics: m, redis: mr}
}

func sampleReport() *consistency.Report {
	return &consistency.Report{
		ID:                   "r-1",
		CheckType:            model.CheckTypeFull,
		OrphanedDbRecords:    []consistency.OrphanedRecord{{ID: "a"}},
		OrphanedStorageFiles: []string{"x", "y"},
		CheckedAt:            time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRunCheckCachesAndPublishes(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture(t, &stubReconciler{report: sampleReport()})

	last, err := f.svc.LastReport(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	report, err := f.svc.RunCheck(ctx, consistency.CheckOptions{IncludeValidFiles: true})
	require.NoError(t, err)
	assert.Equal(t, "r-1", report.ID)
	assert.True(t, f.engine.lastOpts.IncludeValidFiles)

	last, err = f.svc.LastReport(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "r-1", last.ID)

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	assert.Equal(t, tasks.KindCheck, ev.Kind)
	assert.Equal(t, model.CheckStatusWarning, ev.Status)
	assert.Equal(t, 1, ev.OrphanedRecords)
	assert.Equal(t, 2, ev.OrphanedFiles)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ChecksTotal.WithLabelValues("full", "warning")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.OrphanedFiles))

	// 锁在返回后已释放
	assert.False(t, f.redis.Exists("consistency:lock:operation"))
}

func TestRunCheckFailure(t *testing.T) {
	f := newServiceFixture(t, &stubReconciler{err: &consistency.AggregateError{Errs: []error{errors.New("db down")}}})

	_, err := f.svc.RunCheck(context.Background(), consistency.CheckOptions{Limit: 10})
	var aggErr *consistency.AggregateError
	require.ErrorAs(t, err, &aggErr)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ChecksTotal.WithLabelValues("incremental", "error")))
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, model.CheckStatusError, f.publisher.events[0].Status)

	last, err := f.svc.LastReport(context.Background())
	require.NoError(t, err)
	assert.Nil(t, last, "failed checks are not cached")
}

func TestConcurrentOperationsAreRejected(t *testing.T) {
	engine := &stubReconciler{report: sampleReport(), started: make(chan struct{}), block: make(chan struct{})}
	f := newServiceFixture(t, engine)

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.RunCheck(context.Background(), consistency.CheckOptions{})
		done <- err
	}()
	<-engine.started

	_, err := f.svc.RunCheck(context.Background(), consistency.CheckOptions{})
	assert.ErrorIs(t, err, ErrOperationInProgress)
	_, err = f.svc.RepairObjects(context.Background(), []string{"x"})
	assert.ErrorIs(t, err, ErrOperationInProgress)

	close(engine.block)
	require.NoError(t, <-done)

	// 第一次检查结束后锁被释放
	_, err = f.svc.RepairRecords(context.Background(), []string{"a"})
	assert.NoError(t, err)
}

func TestRepairPublishesAndCounts(t *testing.T) {
	engine := &stubReconciler{repair: consistency.RepairResult{
		Success: []string{"a", "b"},
		Failed:  []consistency.RepairFailure{{Path: "c", Error: "denied"}},
	}}
	f := newServiceFixture(t, engine)

	result, err := f.svc.RepairObjects(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Len(t, result.Success, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.RepairItemsTotal.WithLabelValues("objects", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.RepairItemsTotal.WithLabelValues("objects", "failed")))
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, tasks.KindRepairObjects, f.publisher.events[0].Kind)
	assert.Equal(t, model.CheckStatusWarning, f.publisher.events[0].Status)
	assert.Equal(t, 1, f.publisher.events[0].Failed)
}

func TestPublishFailureIsIgnored(t *testing.T) {
	f := newServiceFixture(t, &stubReconciler{report: sampleReport()})
	f.publisher.err = errors.New("broker unavailable")

	_, err := f.svc.RunCheck(context.Background(), consistency.CheckOptions{})
	assert.NoError(t, err)
}

func TestRedisUnavailable(t *testing.T) {
	f := newServiceFixture(t, &stubReconciler{report: sampleReport()})
	f.redis.Close()

	_, err := f.svc.RunCheck(context.Background(), consistency.CheckOptions{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrOperationInProgress)
}

func TestPassThroughOperations(t *testing.T) {
	engine := &stubReconciler{
		check: &consistency.FileCheck{FileID: "a", DbRecordExists: true},
		logs:  []model.ConsistencyLog{{ID: 1}},
	}
	f := newServiceFixture(t, engine)

	fc, err := f.svc.CheckFile(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, fc.DbRecordExists)

	logs, err := f.svc.RecentLogs(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

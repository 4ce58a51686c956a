package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"spatial-hub-go/internal/consistency"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestConsistencyCacheRepositoryLock(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	repo := NewConsistencyCacheRepository(rdb)

	token, ok, err := repo.AcquireLock(ctx, "check", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, token)

	_, ok, err = repo.AcquireLock(ctx, "check", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while held")

	// 其他锁名互不影响
	_, ok, err = repo.AcquireLock(ctx, "repair", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// 错误的令牌不能释放锁
	require.NoError(t, repo.ReleaseLock(ctx, "check", "not-the-owner"))
	assert.True(t, mr.Exists(consistencyLockKeyPrefix+"check"))

	require.NoError(t, repo.ReleaseLock(ctx, "check", token))
	assert.False(t, mr.Exists(consistencyLockKeyPrefix+"check"))

	_, ok, err = repo.AcquireLock(ctx, "check", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsistencyCacheRepositoryLockExpires(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	repo := NewConsistencyCacheRepository(rdb)

	_, ok, err := repo.AcquireLock(ctx, "check", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)
	_, ok, err = repo.AcquireLock(ctx, "check", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestConsistencyCacheRepositoryLastReport(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	repo := NewConsistencyCacheRepository(rdb)

	report, err := repo.GetLastReport(ctx)
	require.NoError(t, err)
	assert.Nil(t, report)

	saved := &consistency.Report{
		ID:                   "r-1",
		CheckType:            "full",
		OrphanedDbRecords:    []consistency.OrphanedRecord{{ID: "a", StoragePath: "x/a.png"}},
		OrphanedStorageFiles: []string{"x/b.png"},
		CheckedAt:            time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Partial:              true,
		SkippedPrefixes:      []string{"tiles"},
		AuditStatus:          consistency.AuditRecorded,
	}
	require.NoError(t, repo.SaveLastReport(ctx, saved, time.Hour))

	loaded, err := repo.GetLastReport(ctx)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, saved.ID, loaded.ID)
	assert.Equal(t, saved.OrphanedStorageFiles, loaded.OrphanedStorageFiles)
	assert.True(t, saved.CheckedAt.Equal(loaded.CheckedAt))
	assert.True(t, loaded.Partial)
	assert.Equal(t, time.Hour, mr.TTL(lastReportKey))

	mr.FastForward(2 * time.Hour)
	loaded, err = repo.GetLastReport(ctx)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

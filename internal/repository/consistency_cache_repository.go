package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"spatial-hub-go/internal/consistency"
)

const (
	consistencyLockKeyPrefix = "consistency:lock:"
	lastReportKey            = "consistency:report:latest"
)

// releaseLockScript 只有在锁仍属于调用方时才删除它。
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ConsistencyCacheRepository 接口定义了一致性操作的互斥锁和最近一次报告的缓存。
type ConsistencyCacheRepository interface {
	// AcquireLock 尝试获取名为 name 的锁，成功时返回持有者令牌。
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, name, token string) error
	SaveLastReport(ctx context.Context, report *consistency.Report, ttl time.Duration) error
	// GetLastReport 在没有缓存报告时返回 (nil, nil)。
	GetLastReport(ctx context.Context) (*consistency.Report, error)
}

// consistencyCacheRepository 是 ConsistencyCacheRepository 接口的 Redis 实现。
type consistencyCacheRepository struct {
	redisClient *redis.Client
}

// NewConsistencyCacheRepository 创建一个新的 ConsistencyCacheRepository 实例。
func NewConsistencyCacheRepository(redisClient *redis.Client) ConsistencyCacheRepository {
	return &consistencyCacheRepository{redisClient: redisClient}
}

func (r *consistencyCacheRepository) AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.redisClient.SetNX(ctx, consistencyLockKeyPrefix+name, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *consistencyCacheRepository) ReleaseLock(ctx context.Context, name, token string) error {
	return releaseLockScript.Run(ctx, r.redisClient, []string{consistencyLockKeyPrefix + name}, token).Err()
}

// SaveLastReport 以 JSON 形式缓存报告。
func (r *consistencyCacheRepository) SaveLastReport(ctx context.Context, report *consistency.Report, ttl time.Duration) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return r.redisClient.Set(ctx, lastReportKey, data, ttl).Err()
}

func (r *consistencyCacheRepository) GetLastReport(ctx context.Context) (*consistency.Report, error) {
	data, err := r.redisClient.Get(ctx, lastReportKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var report consistency.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

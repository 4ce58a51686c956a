// Package bootstrap 按配置组装一致性服务的全部依赖，供 HTTP 服务和命令行工具共用。
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/minio/minio-go/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"
	"spatial-hub-go/internal/config"
	"spatial-hub-go/internal/consistency"
	"spatial-hub-go/internal/metrics"
	"spatial-hub-go/internal/repository"
	"spatial-hub-go/internal/service"
	"spatial-hub-go/pkg/database"
	"spatial-hub-go/pkg/kafka"
	"spatial-hub-go/pkg/log"
	"spatial-hub-go/pkg/storage"
	"spatial-hub-go/pkg/token"
)

// App 持有进程生命周期内的全部客户端和服务。
type App struct {
	Config   *config.Config
	DB       *gorm.DB
	Redis    *redis.Client
	MinIO    *minio.Client
	Producer *kafka.Producer // Kafka 未配置时为 nil

	Registry   *prometheus.Registry
	Metrics    *metrics.ConsistencyMetrics
	JWTManager *token.JWTManager

	FileRepo    repository.FileRepository
	LogRepo     repository.ConsistencyLogRepository
	Engine      *consistency.Engine
	Consistency service.ConsistencyService
}

// New 连接 MySQL、Redis、MinIO（以及可选的 Kafka），并组装一致性服务。
// 任一连接失败时会关闭已打开的连接并返回错误。
func New(ctx context.Context, cfg *config.Config) (app *App, err error) {
	app = &App{Config: cfg}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	if app.DB, err = database.NewMySQL(cfg.Database.MySQL.DSN); err != nil {
		return app, err
	}
	if app.Redis, err = database.NewRedis(ctx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB); err != nil {
		return app, err
	}
	if app.MinIO, err = storage.NewMinIO(ctx, cfg.MinIO); err != nil {
		return app, err
	}

	app.FileRepo = repository.NewFileRepository(app.DB)
	app.LogRepo = repository.NewConsistencyLogRepository(app.DB)
	if cfg.Consistency.AutoMigrate {
		if err = app.LogRepo.AutoMigrate(); err != nil {
			return app, fmt.Errorf("迁移一致性日志表失败: %w", err)
		}
		log.Info("一致性日志表迁移完成")
	}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	app.Metrics = metrics.NewConsistencyMetrics(app.Registry)
	app.JWTManager = token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)

	var publisher service.EventPublisher
	if cfg.Kafka.Enabled() {
		app.Producer = kafka.NewProducer(cfg.Kafka)
		publisher = app.Producer
	}

	app.Engine = consistency.NewEngine(
		app.FileRepo,
		storage.NewMinioStore(app.MinIO, cfg.MinIO.BucketName),
		app.LogRepo,
		consistency.Options{
			RootPrefix:        cfg.Consistency.RootPrefix,
			RepairBatchSize:   cfg.Consistency.RepairBatchSize,
			RepairMaxInFlight: cfg.Consistency.RepairMaxInFlight,
			RecentLogsDefault: cfg.Consistency.RecentLogsDefault,
		},
	)
	app.Consistency = service.NewConsistencyService(
		app.Engine,
		repository.NewConsistencyCacheRepository(app.Redis),
		app.Metrics,
		publisher,
		service.ConsistencyServiceOptions{
			LockTTL:   cfg.Consistency.LockTTL,
			ReportTTL: cfg.Consistency.ReportTTL,
		},
	)
	return app, nil
}

// Close 关闭所有已打开的客户端。MinIO 客户端无需关闭。
func (a *App) Close() error {
	var errs []error
	if a.Producer != nil {
		errs = append(errs, a.Producer.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, database.CloseMySQL(a.DB))
	}
	return errors.Join(errs...)
}

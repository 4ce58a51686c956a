// Package main 是一致性服务 HTTP 进程的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"spatial-hub-go/internal/bootstrap"
	"spatial-hub-go/internal/config"
	"spatial-hub-go/internal/handler"
	"spatial-hub-go/internal/middleware"
	"spatial-hub-go/internal/pipeline"
	"spatial-hub-go/pkg/kafka"
	"spatial-hub-go/pkg/log"
)

const defaultConfigPath = "./configs/config.yaml"

func main() {
	// 1. 初始化配置
	configPath := os.Getenv("SPATIALHUB_CONFIG")
	if configPath == "" {
		configPath = defaultConfigPath
	}
	config.Init(configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化 MySQL、Redis、MinIO、Kafka 以及一致性服务
	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()
	app, err := bootstrap.New(rootCtx, &cfg)
	if err != nil {
		log.Fatal("初始化依赖失败", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("关闭依赖失败", err)
		}
	}()

	// 4. 启动后台 Kafka 消费者处理异步一致性任务
	consumerDone := make(chan struct{})
	if cfg.Kafka.Enabled() && cfg.Kafka.TaskTopic != "" {
		go func() {
			defer close(consumerDone)
			kafka.StartConsumer(rootCtx, cfg.Kafka, app.Redis, pipeline.NewProcessor(app.Consistency))
		}()
	} else {
		close(consumerDone)
	}

	// 5. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(app.Registry, promhttp.HandlerOpts{})))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": nil})
	})

	apiV1 := r.Group("/api/v1")
	{
		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin := apiV1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(app.JWTManager), middleware.AdminAuthMiddleware())
		{
			handler.NewConsistencyHandler(app.Consistency).RegisterRoutes(admin.Group("/consistency"))
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止 Kafka 消费者并等待当前任务退出
	stop()
	select {
	case <-consumerDone:
	case <-ctx.Done():
		log.Warnf("等待 Kafka 消费者退出超时")
	}
	log.Info("服务已优雅关闭")
}

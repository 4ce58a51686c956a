// Package main 是一致性检查命令行工具的入口点。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"spatial-hub-go/internal/bootstrap"
	"spatial-hub-go/internal/config"
	"spatial-hub-go/pkg/log"
)

var (
	configPath string
	jsonOutput bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile the spatial file store with its metadata table",
		Long: `Compare objects in the MinIO bucket with rows in the files table,
report orphans on either side and delete them on request.

Examples:
  # Full check, print orphans
  reconcile check

  # Check only the newest 500 records and fail when orphans exist (for cron/CI)
  reconcile check --limit 500 --fail-on-orphans

  # Delete orphaned objects found by the last cached check
  reconcile repair objects --from-last-report`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs/config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.AddCommand(
		newCheckCmd(),
		newReportCmd(),
		newRepairCmd(),
		newLogsCmd(),
		newInspectCmd(),
		newTokenCmd(),
	)
	return rootCmd
}

// loadConfig 读取配置并初始化日志。
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	return cfg, nil
}

// withApp 组装依赖，执行 fn 后关闭所有连接。
func withApp(ctx context.Context, fn func(app *bootstrap.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("关闭依赖失败", err)
		}
	}()
	return fn(app)
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"spatial-hub-go/internal/bootstrap"
	"spatial-hub-go/internal/consistency"
	"spatial-hub-go/pkg/kafka"
	"spatial-hub-go/pkg/tasks"
	"spatial-hub-go/pkg/token"
)

var errNoReport = errors.New("no cached report; run 'reconcile check' first")

func newCheckCmd() *cobra.Command {
	var (
		opts          consistency.CheckOptions
		async         bool
		failOnOrphans bool
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a full or incremental consistency check",
		RunE: func(cmd *cobra.Command, args []string) error {
			if async {
				return submitTask(cmd, tasks.ConsistencyTask{
					Kind:              tasks.KindCheck,
					IncludeValidFiles: opts.IncludeValidFiles,
					Limit:             opts.Limit,
				})
			}
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				report, err := app.Consistency.RunCheck(cmd.Context(), opts)
				if err != nil {
					return err
				}
				if err := render(os.Stdout, report, printReport); err != nil {
					return err
				}
				if failOnOrphans && report.OrphanCount() > 0 {
					return fmt.Errorf("check found %d orphan(s)", report.OrphanCount())
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&opts.IncludeValidFiles, "include-valid", false, "include files present on both sides in the report")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "only check the newest N records (0 = all)")
	cmd.Flags().BoolVar(&async, "async", false, "submit the check to the Kafka task topic instead of running it")
	cmd.Flags().BoolVar(&failOnOrphans, "fail-on-orphans", false, "exit non-zero when orphans are found")
	return cmd
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Show the last cached check report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				report, err := app.Consistency.LastReport(cmd.Context())
				if err != nil {
					return err
				}
				if report == nil {
					return errNoReport
				}
				return render(os.Stdout, report, printReport)
			})
		},
	}
}

func newRepairCmd() *cobra.Command {
	repairCmd := &cobra.Command{
		Use:   "repair",
		Short: "Delete orphaned records or objects",
	}

	var fromLast, force bool
	recordsCmd := &cobra.Command{
		Use:   "records [id...]",
		Short: "Delete orphaned metadata records",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				ids := args
				if fromLast {
					report, err := app.Consistency.LastReport(cmd.Context())
					if err != nil {
						return err
					}
					if ids, err = recordsFromReport(report, force); err != nil {
						return err
					}
				}
				if len(ids) == 0 {
					return errors.New("nothing to repair")
				}
				result, err := app.Consistency.RepairRecords(cmd.Context(), ids)
				if err != nil {
					return err
				}
				return finishRepair(result)
			})
		},
	}
	recordsCmd.Flags().BoolVar(&fromLast, "from-last-report", false, "repair every orphaned record in the last cached report")
	recordsCmd.Flags().BoolVar(&force, "force", false, "use the cached report even when its storage listing was partial")

	var objectsFromLast, objectsForce bool
	objectsCmd := &cobra.Command{
		Use:   "objects [path...]",
		Short: "Delete orphaned storage objects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				paths := args
				if objectsFromLast {
					report, err := app.Consistency.LastReport(cmd.Context())
					if err != nil {
						return err
					}
					if paths, err = objectsFromReport(report, objectsForce); err != nil {
						return err
					}
				}
				if len(paths) == 0 {
					return errors.New("nothing to repair")
				}
				result, err := app.Consistency.RepairObjects(cmd.Context(), paths)
				if err != nil {
					return err
				}
				return finishRepair(result)
			})
		},
	}
	objectsCmd.Flags().BoolVar(&objectsFromLast, "from-last-report", false, "repair every orphaned object in the last cached report")
	objectsCmd.Flags().BoolVar(&objectsForce, "force", false, "use the cached report even when it came from a limited check")

	repairCmd.AddCommand(recordsCmd, objectsCmd)
	return repairCmd
}

func newLogsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "List recent consistency check log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				entries, err := app.Consistency.RecentLogs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				return render(os.Stdout, entries, printLogs)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of entries (0 = configured default, max 100)")
	return cmd
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file-id>",
		Short: "Check whether one file exists on both sides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				fc, err := app.Consistency.CheckFile(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return render(os.Stdout, fc, printFileCheck)
			})
		},
	}
}

// newTokenCmd 只需要配置中的 JWT 密钥，不连接任何后端。
func newTokenCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "token <username>",
		Short: "Issue an access token for the admin API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tok, err := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours).GenerateToken(args[0], role)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", token.RoleAdmin, "role claim")
	return cmd
}

func submitTask(cmd *cobra.Command, task tasks.ConsistencyTask) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Kafka.Enabled() || cfg.Kafka.TaskTopic == "" {
		return errors.New("kafka is not configured; --async needs kafka.brokers and kafka.task_topic")
	}
	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	task.TaskID = uuid.NewString()
	task.RequestedBy = "cli"
	if err := producer.PublishTask(cmd.Context(), task); err != nil {
		return fmt.Errorf("submit task: %w", err)
	}
	fmt.Printf("submitted %s task %s at %s\n", task.Kind, task.TaskID, time.Now().Format(time.RFC3339))
	return nil
}

func finishRepair(result consistency.RepairResult) error {
	if err := render(os.Stdout, result, printRepair); err != nil {
		return err
	}
	if len(result.Failed) > 0 {
		return fmt.Errorf("%d item(s) could not be repaired", len(result.Failed))
	}
	return nil
}

// recordsFromReport 返回缓存报告中的孤立记录。
// 部分目录列举失败时，引用这些目录中对象的记录也会被报告为孤立，除非 force，否则拒绝使用。
func recordsFromReport(report *consistency.Report, force bool) ([]string, error) {
	if report == nil {
		return nil, errNoReport
	}
	if report.Partial && !force {
		return nil, fmt.Errorf("report %s has a partial storage listing (skipped %s); rerun the check or pass --force",
			report.ID, strings.Join(report.SkippedPrefixes, ", "))
	}
	return orphanIDs(report), nil
}

// objectsFromReport 返回缓存报告中的孤立对象。
// 带 limit 的检查只读取最新的记录，较早记录引用的对象会被误报为孤立，除非 force，否则拒绝使用。
func objectsFromReport(report *consistency.Report, force bool) ([]string, error) {
	if report == nil {
		return nil, errNoReport
	}
	if report.Limit > 0 && !force {
		return nil, fmt.Errorf("report %s only covered the newest %d records; run a full check or pass --force",
			report.ID, report.Limit)
	}
	return report.OrphanedStorageFiles, nil
}

func orphanIDs(r *consistency.Report) []string {
	ids := make([]string, 0, len(r.OrphanedDbRecords))
	for _, o := range r.OrphanedDbRecords {
		ids = append(ids, o.ID)
	}
	return ids
}

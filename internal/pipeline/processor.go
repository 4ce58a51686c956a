// Package pipeline 把 Kafka 中的异步一致性任务分派给一致性服务执行。
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"spatial-hub-go/internal/consistency"
	"spatial-hub-go/internal/service"
	"spatial-hub-go/pkg/kafka"
	"spatial-hub-go/pkg/log"
	"spatial-hub-go/pkg/tasks"
)

// Processor 封装了处理一致性任务所需的依赖。
type Processor struct {
	consistencyService service.ConsistencyService
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(consistencyService service.ConsistencyService) *Processor {
	return &Processor{consistencyService: consistencyService}
}

// Process 执行一个任务。返回错误时消费者会重试；无法识别的任务直接丢弃。
// 另一个检查或修复正在进行时返回 kafka.ErrRetryLater，任务排队等待而不计入失败次数。
func (p *Processor) Process(ctx context.Context, task tasks.ConsistencyTask) error {
	err := p.dispatch(ctx, task)
	if errors.Is(err, service.ErrOperationInProgress) {
		return fmt.Errorf("%w: %w", kafka.ErrRetryLater, err)
	}
	return err
}

func (p *Processor) dispatch(ctx context.Context, task tasks.ConsistencyTask) error {
	log.Infof("[Processor] 开始处理任务, ID: %s, Kind: %s, RequestedBy: %s", task.TaskID, task.Kind, task.RequestedBy)

	switch task.Kind {
	case tasks.KindCheck:
		report, err := p.consistencyService.RunCheck(ctx, consistency.CheckOptions{
			IncludeValidFiles: task.IncludeValidFiles,
			Limit:             task.Limit,
		})
		if err != nil {
			return fmt.Errorf("一致性检查失败: %w", err)
		}
		log.Infof("[Processor] 检查完成, ID: %s, Report: %s, 孤立记录: %d, 孤立对象: %d",
			task.TaskID, report.ID, len(report.OrphanedDbRecords), len(report.OrphanedStorageFiles))

	case tasks.KindInspect:
		fc, err := p.consistencyService.CheckFile(ctx, task.FileID)
		if err != nil {
			return fmt.Errorf("单文件检查失败: %w", err)
		}
		log.Infof("[Processor] 单文件检查完成, ID: %s, File: %s, 记录: %t, 对象: %t",
			task.TaskID, fc.FileID, fc.DbRecordExists, fc.StorageObjectExists)

	case tasks.KindRepairRecords:
		if len(task.IDs) == 0 {
			log.Warnf("[Processor] 任务 %s 没有需要修复的记录，跳过", task.TaskID)
			return nil
		}
		result, err := p.consistencyService.RepairRecords(ctx, task.IDs)
		if err != nil {
			return fmt.Errorf("修复元数据记录失败: %w", err)
		}
		log.Infof("[Processor] 记录修复完成, ID: %s, 成功: %d, 失败: %d", task.TaskID, len(result.Success), len(result.Failed))

	case tasks.KindRepairObjects:
		if len(task.Paths) == 0 {
			log.Warnf("[Processor] 任务 %s 没有需要修复的对象，跳过", task.TaskID)
			return nil
		}
		result, err := p.consistencyService.RepairObjects(ctx, task.Paths)
		if err != nil {
			return fmt.Errorf("修复存储对象失败: %w", err)
		}
		log.Infof("[Processor] 对象修复完成, ID: %s, 成功: %d, 失败: %d", task.TaskID, len(result.Success), len(result.Failed))

	default:
		log.Errorf("[Processor] 未知的任务类型 '%s', ID: %s, 已丢弃", task.Kind, task.TaskID)
	}
	return nil
}

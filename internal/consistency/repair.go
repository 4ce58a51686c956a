package consistency

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"
	"spatial-hub-go/pkg/log"
)

var errEmptyItem = errors.New("empty identifier")

// RepairRecords 逐条删除元数据记录。
//
// 单条失败不影响其余记录，已完成的删除不会回滚。记录已不存在视为成功。
func (e *Engine) RepairRecords(ctx context.Context, ids []string) RepairResult {
	result := newRepairResult()
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			result.Failed = append(result.Failed, RepairFailure{ID: id, Error: (&RepairItemError{Item: id, Err: errEmptyItem}).Error()})
			continue
		}
		if err := e.meta.DeleteFile(ctx, id); err != nil {
			itemErr := &RepairItemError{Item: id, Err: err}
			log.Warnw("failed to delete orphaned file record", "id", id, "error", err)
			result.Failed = append(result.Failed, RepairFailure{ID: id, Error: itemErr.Error()})
			continue
		}
		result.Success = append(result.Success, id)
	}

	log.Infof("[RepairRecords] 元数据修复完成, 成功: %d, 失败: %d", len(result.Success), len(result.Failed))
	return result
}

// RepairObjects 分批删除存储对象，最多 RepairMaxInFlight 个批次并发执行。
//
// 整批删除失败时退回逐个删除，避免一个坏路径阻塞整批。每个路径只会出现在
// Success 或 Failed 之一，两个列表都保持输入顺序。
func (e *Engine) RepairObjects(ctx context.Context, paths []string) RepairResult {
	batches := chunk(paths, e.opts.RepairBatchSize)
	results := make([]RepairResult, len(batches))

	var g errgroup.Group
	g.SetLimit(e.opts.RepairMaxInFlight)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			results[i] = e.removeBatch(ctx, batch)
			return nil
		})
	}
	_ = g.Wait()

	merged := newRepairResult()
	for _, r := range results {
		merged.Success = append(merged.Success, r.Success...)
		merged.Failed = append(merged.Failed, r.Failed...)
	}

	log.Infof("[RepairObjects] 存储修复完成, 批次: %d, 成功: %d, 失败: %d", len(batches), len(merged.Success), len(merged.Failed))
	return merged
}

func (e *Engine) removeBatch(ctx context.Context, batch []string) RepairResult {
	result := newRepairResult()
	valid := make([]string, 0, len(batch))
	for _, p := range batch {
		if strings.TrimSpace(p) == "" {
			result.Failed = append(result.Failed, RepairFailure{Path: p, Error: (&RepairItemError{Item: p, Err: errEmptyItem}).Error()})
			continue
		}
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return result
	}

	err := e.objects.Remove(ctx, valid)
	if err == nil {
		result.Success = append(result.Success, valid...)
		return result
	}

	log.Warnw("batch object removal failed, falling back to single removals", "batchSize", len(valid), "error", err)
	for _, p := range valid {
		if err := e.objects.Remove(ctx, []string{p}); err != nil {
			itemErr := &RepairItemError{Item: p, Err: err}
			result.Failed = append(result.Failed, RepairFailure{Path: p, Error: itemErr.Error()})
			continue
		}
		result.Success = append(result.Success, p)
	}
	return result
}

func chunk(items []string, size int) [][]string {
	if size <= 0 {
		size = defaultRepairBatchSize
	}
	var batches [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}

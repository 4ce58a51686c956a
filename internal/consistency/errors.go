package consistency

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrLogSinkMissing 表示审计日志表不存在。它只作为提示信息，不会让检查失败。
var ErrLogSinkMissing = errors.New("consistency log sink does not exist")

// ListError 表示对象存储的某一侧完全无法列举，对本次检查是致命的。
type ListError struct {
	Prefix string
	Err    error
}

func (e *ListError) Error() string {
	return fmt.Sprintf("list storage objects under %q: %v", e.Prefix, e.Err)
}

func (e *ListError) Unwrap() error { return e.Err }

// PartialListError 记录遍历中某个子目录列举失败。该分支被跳过，遍历继续。
type PartialListError struct {
	Prefix string
	Err    error
}

func (e PartialListError) Error() string {
	return fmt.Sprintf("skipped storage prefix %q: %v", e.Prefix, e.Err)
}

func (e PartialListError) Unwrap() error { return e.Err }

// QueryError 表示元数据或审计日志存储查询失败。
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// RepairItemError 是单个修复项的失败，只记录在该项的结果里。
type RepairItemError struct {
	Item string
	Err  error
}

func (e *RepairItemError) Error() string {
	return fmt.Sprintf("repair %q: %v", e.Item, e.Err)
}

func (e *RepairItemError) Unwrap() error { return e.Err }

// LogWriteError 是一次审计日志写入失败，会被吞掉并记录在报告的 AuditStatus 中。
type LogWriteError struct {
	Err error
}

func (e *LogWriteError) Error() string {
	return fmt.Sprintf("write consistency log: %v", e.Err)
}

func (e *LogWriteError) Unwrap() error { return e.Err }

// AggregateError 汇总一次检查中所有致命错误（元数据查询、对象列举）。
type AggregateError struct {
	Errs []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, 0, len(e.Errs))
	for _, err := range e.Errs {
		msgs = append(msgs, err.Error())
	}
	return "consistency check failed: " + strings.Join(msgs, "; ")
}

func (e *AggregateError) Unwrap() []error { return e.Errs }

// newAggregateError 过滤掉 nil；当存在真正的失败时，丢弃由兄弟任务取消引起的 context.Canceled。
func newAggregateError(errs ...error) *AggregateError {
	var kept, real []error
	for _, err := range errs {
		if err == nil {
			continue
		}
		kept = append(kept, err)
		if !errors.Is(err, context.Canceled) {
			real = append(real, err)
		}
	}
	if len(real) > 0 {
		kept = real
	}
	return &AggregateError{Errs: kept}
}

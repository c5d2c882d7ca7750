package task

import (
	"context"

	"SeiFlow/internal/intent"
)

// RecoveryHandler 定义了在任务不可重试地失败时的补偿策略。
type RecoveryHandler interface {
	// Recover 返回的结果将作为降级结果写入任务；返回 nil 则继续按照失败流程处理。
	Recover(ctx context.Context, job *Job, cause error) (*intent.ParsedIntentResult, error)
}

// ExecutorRecovery 使用备用解析器（通常基于 mock 模型）给出降级结果。
type ExecutorRecovery struct {
	Executor Executor
}

// Recover 实现 RecoveryHandler。
func (r ExecutorRecovery) Recover(ctx context.Context, job *Job, _ error) (*intent.ParsedIntentResult, error) {
	if r.Executor == nil {
		return nil, nil
	}
	return r.Executor.Parse(ctx, job.Input)
}

package task

import (
	"context"

	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/intent"
)

// Store 抽象了任务状态的保存。任务状态是临时的，实现可以按 TTL 淘汰。
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Claim 将任务置为运行中并增加尝试次数。
	Claim(ctx context.Context, id string) (*Job, error)
	MarkSucceeded(ctx context.Context, id string, result intent.ParsedIntentResult, degraded bool) error
	// MarkFailed 记录失败；terminal 为 false 时任务回到 pending 等待重试。
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	Stats(ctx context.Context, opts ListOptions) (JobStats, error)
	Close() error
}

// claimTransition 校验并执行 Claim 的状态迁移，供各存储实现共用。
func claimTransition(job *Job, now int64) error {
	switch job.Status {
	case StatusSucceeded:
		return ErrJobCompleted
	case StatusRunning:
		return ErrJobConflict
	case StatusFailed:
		return ErrJobExhausted
	}
	if job.MaxRetries > 0 && job.Attempts >= job.MaxRetries {
		return ErrJobExhausted
	}
	job.Status = StatusRunning
	job.Attempts++
	job.UpdatedAt = now
	return nil
}

func succeedTransition(job *Job, result intent.ParsedIntentResult, degraded bool, now int64) {
	job.Status = StatusSucceeded
	job.Result = &result
	job.Degraded = degraded
	job.LastError = ""
	job.ErrorCode = ""
	job.UpdatedAt = now
}

func failTransition(job *Job, code xerrors.Code, lastError string, terminal bool, now int64) {
	job.Status = StatusPending
	if terminal {
		job.Status = StatusFailed
	}
	job.LastError = lastError
	job.ErrorCode = string(code)
	job.UpdatedAt = now
}

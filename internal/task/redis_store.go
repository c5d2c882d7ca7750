package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/intent"
)

// RedisStoreConfig 描述 Redis 任务存储的连接参数。
type RedisStoreConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	// TTL 为每个任务键的过期时间，0 表示不过期。
	TTL time.Duration
}

// RedisStore 将任务序列化为 JSON 保存在 Redis 中，并用有序集合维护索引。
// 任务键随 TTL 过期，索引中失效的成员在读取时清理。
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	owned  bool
}

// NewRedisStore 创建 Redis 任务存储并检查连通性。
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	s := NewRedisStoreWithClient(client, cfg.Prefix, cfg.TTL)
	s.owned = true
	return s, nil
}

// NewRedisStoreWithClient 复用已有连接，Close 不会关闭该连接。
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "seiflow:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) jobKey(id string) string { return s.prefix + "job:" + id }
func (s *RedisStore) indexKey() string        { return s.prefix + "jobs" }

// Create 实现 Store 接口。
func (s *RedisStore) Create(ctx context.Context, job *Job) error {
	if job == nil || job.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "任务 ID 不能为空")
	}
	now := time.Now().Unix()
	if job.CreatedAt == 0 {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	data, err := json.Marshal(job)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化任务失败")
	}
	created, err := s.client.SetNX(ctx, s.jobKey(job.ID), data, s.ttl).Result()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入任务失败")
	}
	if !created {
		return ErrJobConflict
	}
	if err := s.client.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(job.CreatedAt), Member: job.ID}).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入任务索引失败")
	}
	return nil
}

// Get 实现 Store 接口。
func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取任务失败")
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析任务失败")
	}
	return &job, nil
}

// update 在 WATCH 事务中读取、修改并写回任务。mutate 返回错误时不写回。
func (s *RedisStore) update(ctx context.Context, id string, mutate func(*Job) error) (*Job, error) {
	key := s.jobKey(id)
	var (
		result    *Job
		mutateErr error
	)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrJobNotFound
			}
			return err
		}
		var job Job
		if err := json.Unmarshal(data, &job); err != nil {
			return err
		}
		result = &job
		if mutateErr = mutate(&job); mutateErr != nil {
			return nil
		}
		updated, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, s.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < 5; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		switch {
		case err == nil:
			return result, mutateErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrJobNotFound):
			return nil, ErrJobNotFound
		default:
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, fmt.Sprintf("更新任务 %s 失败", id))
		}
	}
	return nil, ErrJobConflict
}

// Claim 实现 Store 接口。
func (s *RedisStore) Claim(ctx context.Context, id string) (*Job, error) {
	return s.update(ctx, id, func(job *Job) error {
		return claimTransition(job, time.Now().Unix())
	})
}

// MarkSucceeded 实现 Store 接口。
func (s *RedisStore) MarkSucceeded(ctx context.Context, id string, result intent.ParsedIntentResult, degraded bool) error {
	_, err := s.update(ctx, id, func(job *Job) error {
		succeedTransition(job, result, degraded, time.Now().Unix())
		return nil
	})
	return err
}

// MarkFailed 实现 Store 接口。
func (s *RedisStore) MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error {
	_, err := s.update(ctx, id, func(job *Job) error {
		failTransition(job, code, lastError, terminal, time.Now().Unix())
		return nil
	})
	return err
}

// all 读取索引中仍存在的任务。
func (s *RedisStore) all(ctx context.Context) ([]*Job, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取任务索引失败")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "批量读取任务失败")
	}

	jobs := make([]*Job, 0, len(values))
	var expired []any
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, &job)
	}
	if len(expired) > 0 {
		_ = s.client.ZRem(ctx, s.indexKey(), expired...).Err()
	}
	return jobs, nil
}

// List 实现 Store 接口。
func (s *RedisStore) List(ctx context.Context, opts ListOptions) ([]*Job, error) {
	opts.applyDefaults()
	jobs, err := s.all(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]*Job, 0, len(jobs))
	for _, job := range jobs {
		if opts.matches(job) {
			results = append(results, job)
		}
	}
	sortJobs(results, opts.Order)
	return opts.page(results), nil
}

// Stats 实现 Store 接口。
func (s *RedisStore) Stats(ctx context.Context, opts ListOptions) (JobStats, error) {
	opts.applyDefaults()
	jobs, err := s.all(ctx)
	if err != nil {
		return JobStats{}, err
	}
	stats := JobStats{}
	for _, job := range jobs {
		if opts.matches(job) {
			stats.add(job)
		}
	}
	return stats, nil
}

// Close 关闭自建的 Redis 连接。
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil || !s.owned {
		return nil
	}
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)

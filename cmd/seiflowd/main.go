package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SeiFlow/internal/api"
	"SeiFlow/internal/cache"
	"SeiFlow/internal/chain"
	"SeiFlow/internal/config"
	"SeiFlow/internal/knowledge"
	"SeiFlow/internal/llm/mock"
	"SeiFlow/internal/observability/alerting"
	"SeiFlow/internal/observability/metrics"
	"SeiFlow/internal/parser"
	"SeiFlow/internal/sei"
	"SeiFlow/internal/task"
	"SeiFlow/pkg/logger"
)

// main 是 SeiFlow 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("seiflowd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	lg := logger.Named("seiflowd")

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	registry, err := cfg.Chains.Registry()
	if err != nil {
		return err
	}

	intentParser, err := createParser(cfg, registry)
	if err != nil {
		return err
	}

	sharedCache, err := cache.New(cfg.Cache)
	if err != nil {
		return err
	}
	defer sharedCache.Close()

	seiCfg, err := cfg.Sei.ServiceConfig()
	if err != nil {
		return err
	}
	seiSession := sei.NewSession(seiCfg, func(c sei.Config) (*sei.Service, error) {
		return sei.NewService(c, sei.WithCache(sharedCache), sei.WithChainRegistry(registry))
	})
	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	err = seiSession.Connect(connectCtx)
	connectCancel()
	if err != nil {
		return err
	}
	defer seiSession.Close()

	taskStore, err := createTaskStore(cfg)
	if err != nil {
		return err
	}
	taskQueue, err := createTaskQueue(cfg)
	if err != nil {
		_ = taskStore.Close()
		return err
	}
	taskService := task.NewService(taskStore, taskQueue, cfg.Storage.TaskStore.Retries)
	defer func() {
		if err := taskService.Close(); err != nil {
			lg.Error("关闭任务服务失败", slog.Any("error", err))
		}
	}()

	processor := task.NewProcessor(intentParser, taskStore, taskQueue, taskQueue,
		task.WithWorkerCount(cfg.TaskQueue.Worker),
		task.WithRecoveryHandler(task.ExecutorRecovery{
			Executor: parser.NewParser(mock.Fallback(), parser.WithRegistry(registry)),
		}),
		task.WithAlertDispatcher(createAlerting(cfg)),
	)

	processorCtx, processorCancel := context.WithCancel(ctx)
	defer processorCancel()
	go func() {
		if err := processor.Start(processorCtx); err != nil && !errors.Is(err, context.Canceled) {
			lg.Error("任务处理器异常退出", slog.Any("error", err))
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				lg.Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	server := api.NewServer(cfg.Server.Address,
		api.WithParser(intentParser),
		api.WithTaskService(taskService),
		api.WithSei(seiSession),
		api.WithChainRegistry(registry),
	)
	lg.Info("seiflowd 启动",
		slog.String("provider", string(intentParser.Provider())),
		slog.String("network", seiSession.ChainInfo().Network),
		slog.Uint64("block", seiSession.ChainInfo().BlockNumber),
		slog.String("task_queue", cfg.TaskQueue.Driver),
		slog.String("task_store", cfg.Storage.TaskStore.Driver),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createParser(cfg *config.Config, registry *chain.Registry) (*parser.Parser, error) {
	opts := []parser.Option{parser.WithRegistry(registry)}
	if cfg.Knowledge.Source != "" {
		provider, err := knowledge.LoadStaticProvider(cfg.Knowledge.Source, cfg.Knowledge.MaxResults)
		if err != nil {
			return nil, err
		}
		opts = append(opts, parser.WithKnowledgeProvider(provider))
	}
	return parser.New(cfg.LLM.ParserConfig(), opts...)
}

func createTaskStore(cfg *config.Config) (task.Store, error) {
	store := cfg.Storage.TaskStore
	switch store.Driver {
	case "", "memory":
		return task.NewMemoryStore(store.TTL()), nil
	case "redis":
		return task.NewRedisStore(task.RedisStoreConfig{
			Address:  store.Redis.Address,
			Password: store.Redis.Password,
			DB:       store.Redis.DB,
			Prefix:   store.Redis.Prefix,
			TTL:      store.TTL(),
		})
	default:
		return nil, fmt.Errorf("未知的任务存储驱动: %s", store.Driver)
	}
}

func createTaskQueue(cfg *config.Config) (task.Queue, error) {
	q := cfg.TaskQueue
	switch q.Driver {
	case "", "memory":
		return task.NewMemoryQueue(q.Buffer), nil
	case "redis":
		return task.NewRedisQueue(task.RedisQueueConfig{
			Address:   q.Redis.Address,
			Password:  q.Redis.Password,
			DB:        q.Redis.DB,
			Queue:     q.Redis.Queue,
			BlockWait: time.Duration(q.Redis.BlockWait) * time.Second,
		})
	case "rabbitmq":
		return task.NewRabbitMQQueue(task.RabbitMQConfig{
			URL:        q.RabbitMQ.URL,
			Queue:      q.RabbitMQ.Queue,
			Prefetch:   q.RabbitMQ.Prefetch,
			Durable:    q.RabbitMQ.Durable,
			AutoDelete: q.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的队列驱动: %s", q.Driver)
	}
}

func createAlerting(cfg *config.Config) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if cfg.Alerting.Log {
		notifiers = append(notifiers, &alerting.LogNotifier{})
	}
	for _, hook := range cfg.Alerting.Webhooks {
		if hook.URL == "" {
			continue
		}
		notifiers = append(notifiers, &alerting.WebhookNotifier{
			URL:     hook.URL,
			Format:  hook.Format,
			Headers: hook.Headers,
		})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}

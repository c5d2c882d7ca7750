package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "SeiFlow/internal/errors"
	"SeiFlow/internal/intent"
	"SeiFlow/internal/observability/alerting"
)

type fakeParser struct {
	processed atomic.Int32
	latency   time.Duration
	// failures 为每个输入前若干次调用返回的错误。
	mu       sync.Mutex
	failures map[string][]error
}

func (f *fakeParser) Parse(ctx context.Context, input string) (*intent.ParsedIntentResult, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	if queue := f.failures[input]; len(queue) > 0 {
		err := queue[0]
		f.failures[input] = queue[1:]
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()
	f.processed.Add(1)
	return &intent.ParsedIntentResult{
		Intent:     intent.Intent{UserInput: input, Type: intent.TypeTransfer},
		Confidence: 0.9,
	}, nil
}

type recordingAlerter struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingAlerter) Notify(_ context.Context, e alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAlerter) stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Metadata["stage"]
	}
	return out
}

func startProcessor(t *testing.T, p *Processor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func waitFor(t *testing.T, svc *Service, id string) *Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := svc.WaitUntilCompleted(ctx, id, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("wait for %s: %v", id, err)
	}
	return job
}

func TestProcessorHandlesConcurrentJobs(t *testing.T) {
	store := NewMemoryStore(0)
	queue := NewMemoryQueue(1024)
	parser := &fakeParser{latency: 5 * time.Millisecond}

	service := NewService(store, queue, 3)
	stop := startProcessor(t, NewProcessor(parser, store, queue, queue, WithWorkerCount(8)))
	defer stop()

	total := 100
	for i := 0; i < total; i++ {
		if _, err := service.Submit(context.Background(), SubmitRequest{Input: fmt.Sprintf("send %d SEI", i)}); err != nil {
			t.Fatalf("提交任务失败: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for {
		stats, err := service.Stats(context.Background())
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats.Succeeded == total {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("任务未能及时处理: %+v", stats)
		case <-time.After(20 * time.Millisecond):
		}
	}
	if got := int(parser.processed.Load()); got != total {
		t.Fatalf("expected %d parses, got %d", total, got)
	}
}

func TestProcessorRetriesRetryableErrors(t *testing.T) {
	store := NewMemoryStore(0)
	queue := NewMemoryQueue(16)
	parser := &fakeParser{failures: map[string][]error{
		"flaky": {xerrors.New(xerrors.CodeTimeout, "llm timeout"), xerrors.New(xerrors.CodeTimeout, "llm timeout")},
	}}
	alerts := &recordingAlerter{}
	service := NewService(store, queue, 3)
	stop := startProcessor(t, NewProcessor(parser, store, queue, queue, WithAlertDispatcher(alerts)))
	defer stop()

	job, err := service.Submit(context.Background(), SubmitRequest{Input: "flaky"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	done := waitFor(t, service, job.ID)
	if done.Status != StatusSucceeded || done.Attempts != 3 || done.Result == nil {
		t.Fatalf("expected success on third attempt, got %+v", done)
	}
	if len(alerts.stages()) != 0 {
		t.Fatalf("retries should not alert, got %v", alerts.stages())
	}
}

func TestProcessorAlertsOnTerminalFailure(t *testing.T) {
	store := NewMemoryStore(0)
	queue := NewMemoryQueue(16)
	parser := &fakeParser{failures: map[string][]error{
		"always": {
			xerrors.New(xerrors.CodeTimeout, "t1"),
			xerrors.New(xerrors.CodeTimeout, "t2"),
		},
		"garbage": {xerrors.New(xerrors.CodeInvalidArgument, "bad input")},
	}}
	alerts := &recordingAlerter{}
	service := NewService(store, queue, 2)
	stop := startProcessor(t, NewProcessor(parser, store, queue, queue, WithAlertDispatcher(alerts)))
	defer stop()

	exhausted, _ := service.Submit(context.Background(), SubmitRequest{Input: "always"})
	job := waitFor(t, service, exhausted.ID)
	if job.Status != StatusFailed || job.ErrorCode != string(CodeJobExhausted) || job.Attempts != 2 {
		t.Fatalf("expected exhausted job, got %+v", job)
	}

	invalid, _ := service.Submit(context.Background(), SubmitRequest{Input: "garbage"})
	job = waitFor(t, service, invalid.ID)
	if job.Status != StatusFailed || job.ErrorCode != string(xerrors.CodeInvalidArgument) || job.Attempts != 1 {
		t.Fatalf("non-retryable error should fail immediately, got %+v", job)
	}

	stages := alerts.stages()
	if len(stages) != 2 || stages[0] != "terminal" || stages[1] != "non_retryable" {
		t.Fatalf("unexpected alert stages %v", stages)
	}
}

func TestProcessorRecoveryDegradesResult(t *testing.T) {
	store := NewMemoryStore(0)
	queue := NewMemoryQueue(16)
	parser := &fakeParser{failures: map[string][]error{
		"broken": {xerrors.New(xerrors.CodeInvalidArgument, "unparseable")},
	}}
	fallback := &fakeParser{}
	alerts := &recordingAlerter{}
	service := NewService(store, queue, 3)
	stop := startProcessor(t, NewProcessor(parser, store, queue, queue,
		WithRecoveryHandler(ExecutorRecovery{Executor: fallback}),
		WithAlertDispatcher(alerts)))
	defer stop()

	submitted, _ := service.Submit(context.Background(), SubmitRequest{Input: "broken"})
	job := waitFor(t, service, submitted.ID)
	if job.Status != StatusSucceeded || !job.Degraded || job.Result == nil {
		t.Fatalf("expected degraded success, got %+v", job)
	}
	if job.Result.Reasoning == "" {
		t.Fatalf("degraded result should explain the fallback")
	}
	if stages := alerts.stages(); len(stages) != 1 || stages[0] != "degraded" {
		t.Fatalf("unexpected alert stages %v", stages)
	}
}

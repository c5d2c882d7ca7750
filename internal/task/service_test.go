package task

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	xerrors "SeiFlow/internal/errors"
)

type failingProducer struct{}

func (failingProducer) Publish(context.Context, string) error { return errors.New("broker down") }
func (failingProducer) Close() error                        { return nil }

func TestSubmitValidation(t *testing.T) {
	svc := NewService(NewMemoryStore(0), NewMemoryQueue(1), 0)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, SubmitRequest{Input: "   "}); xerrors.CodeOf(err) != CodeJobValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	long := strings.Repeat("a", MaxInputLength+1)
	if _, err := svc.Submit(ctx, SubmitRequest{Input: long}); xerrors.CodeOf(err) != CodeJobValidation {
		t.Fatalf("expected validation error for long input, got %v", err)
	}
	if _, err := NewService(nil, nil, 1).Submit(ctx, SubmitRequest{Input: "x"}); xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected initialization failure, got %v", err)
	}
}

func TestSubmitIsIdempotentByID(t *testing.T) {
	store := NewMemoryStore(0)
	queue := NewMemoryQueue(4)
	svc := NewService(store, queue, 0)
	ctx := context.Background()

	first, err := svc.Submit(ctx, SubmitRequest{ID: "req-1", Input: "send 1 SEI"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.MaxRetries != 3 || first.Status != StatusPending {
		t.Fatalf("unexpected job %+v", first)
	}
	second, err := svc.Submit(ctx, SubmitRequest{ID: "req-1", Input: "something else"})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.Input != "send 1 SEI" {
		t.Fatalf("resubmission should return the original job, got %+v", second)
	}
	if len(queue.ch) != 1 {
		t.Fatalf("job should be queued once, got %d", len(queue.ch))
	}

	generated, _ := svc.Submit(ctx, SubmitRequest{Input: "bridge 5 USDC"})
	if len(generated.ID) != 36 {
		t.Fatalf("expected uuid id, got %q", generated.ID)
	}
}

func TestSubmitPublishFailureMarksJobFailed(t *testing.T) {
	store := NewMemoryStore(0)
	svc := NewService(store, failingProducer{}, 1)

	_, err := svc.Submit(context.Background(), SubmitRequest{ID: "x", Input: "send"})
	if xerrors.CodeOf(err) != CodeJobPublish {
		t.Fatalf("expected publish error, got %v", err)
	}
	job, _ := store.Get(context.Background(), "x")
	if job.Status != StatusFailed || job.ErrorCode != string(CodeJobPublish) {
		t.Fatalf("job should be failed, got %+v", job)
	}
}

func TestWaitUntilCompletedTimesOut(t *testing.T) {
	svc := NewService(NewMemoryStore(0), NewMemoryQueue(1), 1)
	job, _ := svc.Submit(context.Background(), SubmitRequest{Input: "never processed"})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := svc.WaitUntilCompleted(ctx, job.ID, 5*time.Millisecond); xerrors.CodeOf(err) != xerrors.CodeTimeout {
		t.Fatalf("expected timeout, got %v", err)
	}
	if _, err := svc.Get(context.Background(), "missing"); !IsJobError(err, CodeJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

package task

import (
	"context"
	"testing"
	"time"

	"SeiFlow/internal/intent"
)

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	base := time.Now().Add(-2 * time.Minute)

	jobs := []*Job{
		{ID: "j1", Input: "send 10 USDC to sei", Status: StatusPending, MaxRetries: 3},
		{ID: "j2", Input: "bridge ETH to polygon", Status: StatusPending, MaxRetries: 3},
		{ID: "j3", Input: "stake SEI", Status: StatusPending, MaxRetries: 3},
	}
	for _, job := range jobs {
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("create job %s: %v", job.ID, err)
		}
	}

	if err := store.MarkFailed(ctx, "j2", CodeJobProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	result := intent.ParsedIntentResult{Intent: intent.Intent{Type: intent.TypeStake}, Reasoning: "staking request"}
	if err := store.MarkSucceeded(ctx, "j3", result, false); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.jobs["j1"].UpdatedAt = base.Unix()
	store.jobs["j2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.jobs["j3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].ID != "j3" || all[2].ID != "j1" {
		t.Fatalf("expected newest job first, got %v", ids(all))
	}

	asc, _ := store.List(ctx, buildListOptions([]ListOption{WithSortOrder(SortByUpdatedAsc), WithLimit(2)}))
	if len(asc) != 2 || asc[0].ID != "j1" || asc[1].ID != "j2" {
		t.Fatalf("unexpected ascending page %v", ids(asc))
	}

	offset, _ := store.List(ctx, buildListOptions([]ListOption{WithOffset(2)}))
	if len(offset) != 1 || offset[0].ID != "j1" {
		t.Fatalf("unexpected offset page %v", ids(offset))
	}

	failed, _ := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed, "bogus")}))
	if len(failed) != 1 || failed[0].ID != "j2" || failed[0].ErrorCode != string(CodeJobProcessing) {
		t.Fatalf("unexpected failed list: %v", ids(failed))
	}

	withResult, _ := store.List(ctx, buildListOptions([]ListOption{WithResultPresence(true)}))
	if len(withResult) != 1 || withResult[0].ID != "j3" {
		t.Fatalf("unexpected result list: %v", ids(withResult))
	}

	recent, _ := store.List(ctx, buildListOptions([]ListOption{WithUpdatedSince(base.Add(15 * time.Second))}))
	if len(recent) != 2 {
		t.Fatalf("expected 2 jobs to match since filter, got %d", len(recent))
	}

	query, _ := store.List(ctx, buildListOptions([]ListOption{WithQuery("  STAKING ")}))
	if len(query) != 1 || query[0].ID != "j3" {
		t.Fatalf("unexpected query result %v", ids(query))
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		if err := store.Create(ctx, &Job{ID: id, Input: id, Status: StatusPending, MaxRetries: 2}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := store.Claim(ctx, "b"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	_ = store.MarkSucceeded(ctx, "c", intent.ParsedIntentResult{}, false)
	_ = store.MarkFailed(ctx, "d", CodeJobProcessing, "x", true)

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 4 || stats.Pending != 1 || stats.Running != 1 || stats.Succeeded != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.OldestUpdatedAt == 0 || stats.NewestUpdatedAt < stats.OldestUpdatedAt {
		t.Fatalf("unexpected time range %+v", stats)
	}

	filtered, _ := store.Stats(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if filtered.Total != 1 || filtered.Failed != 1 {
		t.Fatalf("unexpected filtered stats %+v", filtered)
	}
}

func TestMemoryStoreClaimTransitions(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	if err := store.Create(ctx, &Job{ID: "j", Input: "x", Status: StatusPending, MaxRetries: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, &Job{ID: "j"}); !IsJobError(err, CodeJobConflict) {
		t.Fatalf("duplicate create should conflict, got %v", err)
	}

	job, err := store.Claim(ctx, "j")
	if err != nil || job.Status != StatusRunning || job.Attempts != 1 {
		t.Fatalf("first claim: %+v %v", job, err)
	}
	if _, err := store.Claim(ctx, "j"); !IsJobError(err, CodeJobConflict) {
		t.Fatalf("running job should conflict, got %v", err)
	}

	_ = store.MarkFailed(ctx, "j", CodeJobProcessing, "retry me", false)
	job, _ = store.Get(ctx, "j")
	if job.Status != StatusPending || job.LastError != "retry me" {
		t.Fatalf("non-terminal failure should requeue: %+v", job)
	}

	if _, err := store.Claim(ctx, "j"); err != nil {
		t.Fatalf("second claim: %v", err)
	}
	_ = store.MarkFailed(ctx, "j", CodeJobProcessing, "again", false)
	if _, err := store.Claim(ctx, "j"); !IsJobError(err, CodeJobExhausted) {
		t.Fatalf("attempts exhausted, got %v", err)
	}

	if _, err := store.Claim(ctx, "missing"); !IsJobError(err, CodeJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStoreEvictsFinishedJobs(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStore(time.Minute)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	_ = store.Create(ctx, &Job{ID: "done", Input: "x", Status: StatusPending, MaxRetries: 1})
	_ = store.Create(ctx, &Job{ID: "waiting", Input: "y", Status: StatusPending, MaxRetries: 1})
	_ = store.MarkSucceeded(ctx, "done", intent.ParsedIntentResult{}, false)

	now = now.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "done"); !IsJobError(err, CodeJobNotFound) {
		t.Fatalf("finished job should expire, got %v", err)
	}
	if _, err := store.Get(ctx, "waiting"); err != nil {
		t.Fatalf("pending job must survive eviction: %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore(0)
	ctx := context.Background()
	_ = store.Create(ctx, &Job{ID: "j", Input: "x", Metadata: map[string]string{"k": "v"}, MaxRetries: 1})

	job, _ := store.Get(ctx, "j")
	job.Metadata["k"] = "changed"
	again, _ := store.Get(ctx, "j")
	if again.Metadata["k"] != "v" {
		t.Fatalf("store state leaked through Get")
	}
}

func ids(jobs []*Job) []string {
	out := make([]string, len(jobs))
	for i, j := range jobs {
		out[i] = j.ID
	}
	return out
}

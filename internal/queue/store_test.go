package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"reelforge/internal/queue"
	"reelforge/internal/testsupport"
)

func TestOpenCreatesSchemaAndRoundTrips(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job, err := store.NewJob(ctx, "job-token-1", `{"operations":[]}`)
	if err != nil {
		t.Fatalf("NewJob failed: %v", err)
	}
	if job.ID == 0 {
		t.Fatal("expected job ID to be assigned")
	}
	if job.State != queue.StatusQueued {
		t.Fatalf("expected queued state, got %s", job.State)
	}

	fetched, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Token != "job-token-1" {
		t.Fatalf("unexpected fetched job: %#v", fetched)
	}

	byToken, err := store.GetByToken(ctx, "job-token-1")
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}
	if byToken == nil || byToken.ID != job.ID {
		t.Fatalf("expected to find inserted job, got %#v", byToken)
	}
}

func TestGetByTokenUnknownReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	job, err := store.GetByToken(context.Background(), "no-such-token")
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}
	if job != nil {
		t.Fatalf("expected nil for unknown token, got %#v", job)
	}
}

func TestDuplicateTokenRejected(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := store.NewJob(ctx, "dup", "{}"); err != nil {
		t.Fatalf("NewJob failed: %v", err)
	}
	if _, err := store.NewJob(ctx, "dup", "{}"); err == nil {
		t.Fatal("expected duplicate token insert to fail")
	}
}

func TestNextQueuedFIFO(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	var ids []int64
	for i := 0; i < 3; i++ {
		job, err := store.NewJob(ctx, fmt.Sprintf("fifo-%d", i), "{}")
		if err != nil {
			t.Fatalf("NewJob failed: %v", err)
		}
		ids = append(ids, job.ID)
	}

	for _, want := range ids {
		next, err := store.NextQueued(ctx)
		if err != nil {
			t.Fatalf("NextQueued failed: %v", err)
		}
		if next == nil || next.ID != want {
			t.Fatalf("expected job %d next, got %#v", want, next)
		}
		if ok, err := store.MarkRunning(ctx, next.ID); err != nil || !ok {
			t.Fatalf("MarkRunning(%d) = %v, %v", next.ID, ok, err)
		}
	}

	next, err := store.NextQueued(ctx)
	if err != nil {
		t.Fatalf("NextQueued failed: %v", err)
	}
	if next != nil {
		t.Fatalf("expected drained queue, got %#v", next)
	}
}

func TestMarkRunningRecordsStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "start", "{}")

	ok, err := store.MarkRunning(ctx, job.ID)
	if err != nil || !ok {
		t.Fatalf("MarkRunning = %v, %v", ok, err)
	}

	updated, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.State != queue.StatusRunning {
		t.Fatalf("expected running, got %s", updated.State)
	}
	if updated.StartedAt == nil {
		t.Fatal("expected started_at to be set")
	}

	// Second claim must lose.
	ok, err = store.MarkRunning(ctx, job.ID)
	if err != nil {
		t.Fatalf("MarkRunning second claim errored: %v", err)
	}
	if ok {
		t.Fatal("expected second claim to fail")
	}
}

func TestCancelQueuedWinsOnlyWhileQueued(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	queued := testsupport.NewJob(t, store, "cancel-queued", "{}")
	running := testsupport.NewJob(t, store, "cancel-running", "{}")
	if ok, err := store.MarkRunning(ctx, running.ID); err != nil || !ok {
		t.Fatalf("MarkRunning = %v, %v", ok, err)
	}

	ok, err := store.CancelQueued(ctx, queued.ID)
	if err != nil || !ok {
		t.Fatalf("CancelQueued(queued) = %v, %v", ok, err)
	}
	updated, err := store.GetByID(ctx, queued.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.State != queue.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", updated.State)
	}
	if updated.FinishedAt == nil {
		t.Fatal("expected finished_at to be set")
	}
	if updated.StartedAt != nil {
		t.Fatal("cancelled queued job must never record a start")
	}

	ok, err = store.CancelQueued(ctx, running.ID)
	if err != nil {
		t.Fatalf("CancelQueued(running) errored: %v", err)
	}
	if ok {
		t.Fatal("expected cancel to lose against a running job")
	}
}

func TestCountActiveCountsQueuedAndRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	a := testsupport.NewJob(t, store, "active-a", "{}")
	testsupport.NewJob(t, store, "active-b", "{}")
	done := testsupport.NewJob(t, store, "active-c", "{}")

	if ok, err := store.MarkRunning(ctx, a.ID); err != nil || !ok {
		t.Fatalf("MarkRunning = %v, %v", ok, err)
	}
	done.State = queue.StatusSucceeded
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	count, err := store.CountActive(ctx)
	if err != nil {
		t.Fatalf("CountActive failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 active jobs, got %d", count)
	}
}

func TestFailRunningOnShutdown(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	running := testsupport.NewJob(t, store, "shutdown-running", "{}")
	queued := testsupport.NewJob(t, store, "shutdown-queued", "{}")
	if ok, err := store.MarkRunning(ctx, running.ID); err != nil || !ok {
		t.Fatalf("MarkRunning = %v, %v", ok, err)
	}

	count, err := store.FailRunning(ctx, "render", queue.DaemonStopReason)
	if err != nil {
		t.Fatalf("FailRunning failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 job failed, got %d", count)
	}

	failed, err := store.GetByID(ctx, running.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if failed.State != queue.StatusFailed || failed.ErrorDetail != queue.DaemonStopReason {
		t.Fatalf("unexpected failed job: %#v", failed)
	}

	untouched, err := store.GetByID(ctx, queued.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if untouched.State != queue.StatusQueued {
		t.Fatalf("queued job must survive shutdown, got %s", untouched.State)
	}
}

func TestRetryFailedResetsJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	job := testsupport.NewJob(t, store, "retry", "{}")
	if ok, err := store.MarkRunning(ctx, job.ID); err != nil || !ok {
		t.Fatalf("MarkRunning = %v, %v", ok, err)
	}
	job, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	job.SetFailed("render", "encoder exited with status 1")
	now := time.Now().UTC()
	job.FinishedAt = &now
	if err := store.Update(ctx, job); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	count, err := store.RetryFailed(ctx, job.ID)
	if err != nil {
		t.Fatalf("RetryFailed failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 job retried, got %d", count)
	}

	retried, err := store.GetByID(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if retried.State != queue.StatusQueued {
		t.Fatalf("expected queued, got %s", retried.State)
	}
	if retried.ErrorKind != "" || retried.ErrorDetail != "" {
		t.Fatalf("expected error fields cleared, got %#v", retried)
	}
	if retried.StartedAt != nil || retried.FinishedAt != nil {
		t.Fatal("expected lifecycle timestamps cleared")
	}
}

func TestListFiltersByState(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewJob(t, store, "list-a", "{}")
	b := testsupport.NewJob(t, store, "list-b", "{}")
	if ok, err := store.MarkRunning(ctx, b.ID); err != nil || !ok {
		t.Fatalf("MarkRunning = %v, %v", ok, err)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(all))
	}

	runningOnly, err := store.List(ctx, queue.StatusRunning)
	if err != nil {
		t.Fatalf("List(running) failed: %v", err)
	}
	if len(runningOnly) != 1 || runningOnly[0].ID != b.ID {
		t.Fatalf("unexpected running list: %#v", runningOnly)
	}
}

func TestClearFinishedKeepsActiveJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	active := testsupport.NewJob(t, store, "clear-active", "{}")
	done := testsupport.NewJob(t, store, "clear-done", "{}")
	done.State = queue.StatusSucceeded
	if err := store.Update(ctx, done); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	count, err := store.ClearFinished(ctx)
	if err != nil {
		t.Fatalf("ClearFinished failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 job cleared, got %d", count)
	}

	remaining, err := store.GetByID(ctx, active.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if remaining == nil {
		t.Fatal("expected active job to survive ClearFinished")
	}
}

func TestHealthAggregatesStates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	testsupport.NewJob(t, store, "health-a", "{}")
	b := testsupport.NewJob(t, store, "health-b", "{}")
	if ok, err := store.MarkRunning(ctx, b.ID); err != nil || !ok {
		t.Fatalf("MarkRunning = %v, %v", ok, err)
	}
	c := testsupport.NewJob(t, store, "health-c", "{}")
	c.SetFailed("validation", "bad plan")
	if err := store.Update(ctx, c); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	want := queue.HealthSummary{Total: 3, Queued: 1, Running: 1, Failed: 1}
	if health != want {
		t.Fatalf("unexpected health summary: %#v", health)
	}
}

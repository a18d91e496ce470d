package daemon_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reelforge/internal/api"
	"reelforge/internal/assets"
	"reelforge/internal/config"
	"reelforge/internal/daemon"
	"reelforge/internal/logging"
	"reelforge/internal/outputs"
	"reelforge/internal/queue"
	"reelforge/internal/render"
	"reelforge/internal/scheduler"
	"reelforge/internal/services/ffmpeg"
	"reelforge/internal/testsupport"
	"reelforge/internal/timeline"
)

func newDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	assetStore := assets.NewStore(cfg)
	builder := timeline.NewBuilder(cfg, assetStore, nil, logger)
	client := ffmpeg.NewCLI(ffmpeg.WithBinary(cfg.Render.FFmpegBinary))
	executor := render.NewExecutor(cfg, client, nil, logger)
	outputMgr := outputs.NewManager(cfg, logger)
	sched := scheduler.NewManager(cfg, store, builder, executor, outputMgr, logger)

	d, err := daemon.New(cfg, store, logger, sched, outputMgr, assetStore)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d
}

func startDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*daemon.Daemon, *config.Config, *api.Client) {
	t.Helper()
	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithStubbedBinaries()}, opts...)...)
	cfg.Scheduler.MinFreeSpaceGiB = 0

	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	return d, cfg, api.NewClient(d.APIAddr())
}

func TestStartRejectsSecondInstance(t *testing.T) {
	d, cfg, _ := startDaemon(t)

	second := newDaemon(t, cfg)
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to be rejected")
	}

	d.Stop()
}

func TestStartFailsWithoutRequiredTools(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Render.FFmpegBinary = "definitely-not-installed-ffmpeg"

	d := newDaemon(t, cfg)
	if err := d.Start(context.Background()); err == nil {
		d.Stop()
		t.Fatal("expected start to fail with missing tools")
	}
}

func TestSubmitAndDescribeOverAPI(t *testing.T) {
	_, cfg, client := startDaemon(t)

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.UploadDir, "clip.mp4"), 64)
	payload, _ := json.Marshal(map[string]any{
		"clips": []map[string]any{{"file": "clip.mp4", "duration_hint": 5}},
	})

	job, err := client.Submit(context.Background(), payload)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Token == "" || job.State != string(queue.StatusQueued) {
		t.Fatalf("unexpected job: %#v", job)
	}

	fetched, err := client.Job(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if fetched.ID != job.ID {
		t.Fatalf("describe mismatch: %#v", fetched)
	}

	jobs, err := client.Jobs(context.Background())
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job listed, got %d", len(jobs))
	}
}

func TestSubmitMissingAssetReturnsNotFound(t *testing.T) {
	_, _, client := startDaemon(t)

	payload, _ := json.Marshal(map[string]any{
		"clips": []map[string]any{{"file": "ghost.mp4", "duration_hint": 5}},
	})
	_, err := client.Submit(context.Background(), payload)

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected API error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Kind != "not_found" {
		t.Fatalf("unexpected error mapping: %#v", apiErr)
	}
}

func TestSubmitMalformedPayloadReturnsBadRequest(t *testing.T) {
	_, _, client := startDaemon(t)

	_, err := client.Submit(context.Background(), []byte(`{"clips": "nope"}`))
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected API error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", apiErr.StatusCode)
	}
}

func TestDescribeUnknownJobReturnsNotFound(t *testing.T) {
	_, _, client := startDaemon(t)

	_, err := client.Job(context.Background(), 999)
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestDownloadUnfinishedJobConflicts(t *testing.T) {
	_, cfg, client := startDaemon(t)

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.UploadDir, "clip.mp4"), 64)
	payload, _ := json.Marshal(map[string]any{
		"clips": []map[string]any{{"file": "clip.mp4", "duration_hint": 5}},
	})
	job, err := client.Submit(context.Background(), payload)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = client.Download(context.Background(), job.ID, filepath.Join(t.TempDir(), "out.mp4"))
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected API error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict && apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected conflict or not found for unfinished job, got %d", apiErr.StatusCode)
	}
}

func TestStatusAndFontsEndpoints(t *testing.T) {
	_, cfg, client := startDaemon(t)

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.FontDir, "bebas-neue.ttf"), 16)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.UploadDir, "clip.mp4"), 64)
	payload, _ := json.Marshal(map[string]any{
		"clips": []map[string]any{{"file": "clip.mp4", "duration_hint": 5}},
	})
	if _, err := client.Submit(context.Background(), payload); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.PID == 0 {
		t.Fatalf("unexpected status: %#v", status)
	}
	if status.Queue.Total != 1 {
		t.Fatalf("expected queue counts to track the submitted job, got %#v", status.Queue)
	}
	if len(status.Dependencies) != 3 {
		t.Fatalf("expected 3 dependency entries, got %d", len(status.Dependencies))
	}

	fonts, err := client.Fonts(context.Background())
	if err != nil {
		t.Fatalf("Fonts: %v", err)
	}
	if len(fonts) != 1 || fonts[0].Name != "Bebas Neue" {
		t.Fatalf("unexpected fonts: %#v", fonts)
	}
}

func TestClearStorageEndpoint(t *testing.T) {
	_, cfg, client := startDaemon(t)

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.UploadDir, "a.mp4"), 10)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.OutputDir, "reel_x.mp4"), 20)

	resp, err := client.ClearStorage(context.Background())
	if err != nil {
		t.Fatalf("ClearStorage: %v", err)
	}
	if resp.RemovedFiles != 2 || resp.FreedBytes != 30 {
		t.Fatalf("unexpected clear response: %#v", resp)
	}
}

func TestCancelQueuedJobOverAPI(t *testing.T) {
	_, cfg, client := startDaemon(t, testsupport.WithWorkers(1), testsupport.WithQueueCapacity(2))

	// Replace the ffmpeg stub with one that blocks so the first job pins the
	// single worker and the second stays queued.
	stub := filepath.Join(testsupport.BaseDir(cfg), "bin", "ffmpeg")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nsleep 60\n"), 0o755); err != nil {
		t.Fatalf("write blocking stub: %v", err)
	}

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.UploadDir, "clip.mp4"), 64)
	payload, _ := json.Marshal(map[string]any{
		"clips": []map[string]any{{"file": "clip.mp4", "duration_hint": 5}},
	})

	first, err := client.Submit(context.Background(), payload)
	if err != nil {
		t.Fatalf("Submit first: %v", err)
	}
	second, err := client.Submit(context.Background(), payload)
	if err != nil {
		t.Fatalf("Submit second: %v", err)
	}

	waitForJobState(t, client, first.ID, string(queue.StatusRunning))

	if err := client.Cancel(context.Background(), second.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitForJobState(t, client, second.ID, string(queue.StatusCancelled))

	cancelled, err := client.Job(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("Job: %v", err)
	}
	if cancelled.StartedAt != "" {
		t.Fatalf("cancelled queued job must never start, got StartedAt=%q", cancelled.StartedAt)
	}
}

func TestCancelUnknownJobReturnsNotFound(t *testing.T) {
	_, _, client := startDaemon(t)

	err := client.Cancel(context.Background(), 404)
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestRetryFailedJobOverAPI(t *testing.T) {
	_, cfg, client := startDaemon(t)

	// The default stub never writes an output file, so the first attempt fails.
	job := submitClip(t, cfg, client)
	waitForJobState(t, client, job.ID, string(queue.StatusFailed))

	// Swap in a stub that produces the requested output so the retry succeeds.
	writeRenderingStub(t, cfg)

	retried, err := client.Retry(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if retried.ID != job.ID {
		t.Fatalf("retry returned wrong job: %#v", retried)
	}
	waitForJobState(t, client, job.ID, string(queue.StatusSucceeded))
}

func TestRetryAllFailedJobsOverAPI(t *testing.T) {
	_, cfg, client := startDaemon(t)

	job := submitClip(t, cfg, client)
	waitForJobState(t, client, job.ID, string(queue.StatusFailed))
	writeRenderingStub(t, cfg)

	retried, err := client.RetryAll(context.Background())
	if err != nil {
		t.Fatalf("RetryAll: %v", err)
	}
	if retried != 1 {
		t.Fatalf("expected 1 job re-queued, got %d", retried)
	}
	waitForJobState(t, client, job.ID, string(queue.StatusSucceeded))
}

func TestRetryUnknownJobReturnsNotFound(t *testing.T) {
	_, _, client := startDaemon(t)

	_, err := client.Retry(context.Background(), 999)
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestRemoveFinishedJobOverAPI(t *testing.T) {
	_, cfg, client := startDaemon(t)

	job := submitClip(t, cfg, client)
	waitForJobState(t, client, job.ID, string(queue.StatusFailed))

	if err := client.Remove(context.Background(), job.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	_, err := client.Job(context.Background(), job.ID)
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected removed job to be gone, got %v", err)
	}

	if err := client.Remove(context.Background(), 999); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %v", err)
	}
}

func TestRemoveActiveJobConflicts(t *testing.T) {
	_, cfg, client := startDaemon(t, testsupport.WithWorkers(1))

	stub := filepath.Join(testsupport.BaseDir(cfg), "bin", "ffmpeg")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nsleep 60\n"), 0o755); err != nil {
		t.Fatalf("write blocking stub: %v", err)
	}

	job := submitClip(t, cfg, client)
	waitForJobState(t, client, job.ID, string(queue.StatusRunning))

	err := client.Remove(context.Background(), job.ID)
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict for active job, got %v", err)
	}
}

func TestClearFinishedJobsOverAPI(t *testing.T) {
	_, cfg, client := startDaemon(t)

	job := submitClip(t, cfg, client)
	waitForJobState(t, client, job.ID, string(queue.StatusFailed))

	removed, err := client.ClearJobs(context.Background(), false)
	if err != nil {
		t.Fatalf("ClearJobs: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 record cleared, got %d", removed)
	}
	jobs, err := client.Jobs(context.Background())
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(jobs) != 0 {
		t.Fatalf("expected empty queue after clear, got %d jobs", len(jobs))
	}
}

func submitClip(t *testing.T, cfg *config.Config, client *api.Client) api.JobView {
	t.Helper()
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.UploadDir, "clip.mp4"), 64)
	payload, _ := json.Marshal(map[string]any{
		"clips": []map[string]any{{"file": "clip.mp4", "duration_hint": 5}},
	})
	job, err := client.Submit(context.Background(), payload)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return job
}

// writeRenderingStub replaces the ffmpeg stub with one that creates the
// requested output file. The output path is the last .mp4 argument; trailing
// progress flags may follow it.
func writeRenderingStub(t *testing.T, cfg *config.Config) {
	t.Helper()
	stub := filepath.Join(testsupport.BaseDir(cfg), "bin", "ffmpeg")
	script := `#!/bin/sh
out=""
for arg in "$@"; do
  case "$arg" in *.mp4) out="$arg";; esac
done
[ -n "$out" ] && printf rendered > "$out"
exit 0
`
	if err := os.WriteFile(stub, []byte(script), 0o755); err != nil {
		t.Fatalf("write rendering stub: %v", err)
	}
}

func waitForJobState(t *testing.T, client *api.Client, id int64, state string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		job, err := client.Job(context.Background(), id)
		if err == nil && job.State == state {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %d never reached state %s", id, state)
}

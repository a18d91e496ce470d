package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelforge/internal/assets"
	"reelforge/internal/config"
	"reelforge/internal/services"
	"reelforge/internal/services/ffmpeg"
	"reelforge/internal/testsupport"
	"reelforge/internal/timeline"
)

// fakeClient satisfies ffmpeg.Client, creating each invocation's output file
// and optionally failing on the nth call.
type fakeClient struct {
	calls   [][]string
	failOn  int
	failErr error
	block   bool
}

func (f *fakeClient) Run(ctx context.Context, args []string, progress func(ffmpeg.ProgressUpdate)) (string, error) {
	f.calls = append(f.calls, args)
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.failOn > 0 && len(f.calls) == f.failOn {
		if f.failErr != nil {
			return "tool stderr tail", f.failErr
		}
		return "tool stderr tail", services.Wrap(services.ErrToolFailure, "ffmpeg", "run", "boom", nil)
	}
	outPath := args[len(args)-1]
	if err := os.WriteFile(outPath, []byte("rendered"), 0o644); err != nil {
		return "", err
	}
	if progress != nil {
		progress(ffmpeg.ProgressUpdate{Seconds: 1})
	}
	return "", nil
}

func clipPlan(cfg *config.Config, clips int) *timeline.Plan {
	plan := &timeline.Plan{
		CanvasHeight:  cfg.Render.CanvasHeight,
		FrameRate:     cfg.Render.FrameRate,
		TotalDuration: float64(clips) * 5,
	}
	for i := 0; i < clips; i++ {
		plan.Operations = append(plan.Operations, timeline.Operation{
			Kind:      timeline.OpPlaceClip,
			StartTime: float64(i) * 5,
			EndTime:   float64(i+1) * 5,
			Clip: &timeline.PlaceClip{
				Asset: assets.Resolved{
					Ref:  assets.Ref{Kind: assets.KindVideo, Locator: "clip.mp4"},
					Path: "/uploads/clip.mp4",
				},
				SourceEnd: 5,
			},
		})
	}
	return plan
}

func newTestExecutor(t *testing.T, client ffmpeg.Client) (*Executor, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Scheduler.MinFreeSpaceGiB = 0
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return NewExecutor(cfg, client, nil, nil), cfg
}

func TestRenderRunsThreePassesAndReportsProgress(t *testing.T) {
	client := &fakeClient{}
	executor, cfg := newTestExecutor(t, client)

	var stages []string
	result, err := executor.Render(context.Background(), "job-1", clipPlan(cfg, 2), func(stage, _ string, _ float64) {
		stages = append(stages, stage)
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	// 2 normalizations + 1 concat + 1 finalize.
	if len(client.calls) != 4 {
		t.Fatalf("expected 4 ffmpeg invocations, got %d", len(client.calls))
	}
	if result.StagedPath == "" || result.SizeBytes == 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.DurationSeconds != 10 {
		t.Fatalf("expected plan duration fallback, got %v", result.DurationSeconds)
	}
	if len(stages) == 0 || stages[0] != "Normalizing clips" {
		t.Fatalf("unexpected progress stages: %v", stages)
	}
}

func TestRenderFailureRemovesWorkspace(t *testing.T) {
	client := &fakeClient{failOn: 2}
	executor, cfg := newTestExecutor(t, client)

	_, err := executor.Render(context.Background(), "job-2", clipPlan(cfg, 3), nil)
	if !errors.Is(err, services.ErrToolFailure) {
		t.Fatalf("expected tool failure, got %v", err)
	}
	if _, statErr := os.Stat(executor.Workspace("job-2")); !os.IsNotExist(statErr) {
		t.Fatal("expected workspace removed after failure")
	}
}

func TestRenderWatchdogClassifiesTimeout(t *testing.T) {
	client := &fakeClient{block: true}
	executor, cfg := newTestExecutor(t, client)
	cfg.Render.WatchdogSeconds = 1

	_, err := executor.Render(context.Background(), "job-3", clipPlan(cfg, 1), nil)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout classification, got %v", err)
	}
	if _, statErr := os.Stat(executor.Workspace("job-3")); !os.IsNotExist(statErr) {
		t.Fatal("expected workspace removed after timeout")
	}
}

func TestRenderSynthesizesSilenceForSourcesWithoutAudio(t *testing.T) {
	client := &fakeClient{}
	cfg := testsupport.NewConfig(t)
	cfg.Scheduler.MinFreeSpaceGiB = 0
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	// ffprobe stub reporting no audio streams for every source.
	stub := filepath.Join(t.TempDir(), "ffprobe")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	prober := ffmpeg.NewProber(ffmpeg.WithProbeBinary(stub))
	executor := NewExecutor(cfg, client, prober, nil)

	if _, err := executor.Render(context.Background(), "job-5", clipPlan(cfg, 1), nil); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	normalize := strings.Join(client.calls[0], " ")
	if !strings.Contains(normalize, "anullsrc=channel_layout=stereo:sample_rate=44100") {
		t.Fatalf("expected synthetic silence for audioless source, got %s", normalize)
	}
	if !strings.Contains(normalize, "-map 0:v -map 1:a -shortest") {
		t.Fatalf("expected silent stream mapping, got %s", normalize)
	}
}

func TestRenderRejectsPlanWithoutClips(t *testing.T) {
	client := &fakeClient{}
	executor, _ := newTestExecutor(t, client)

	plan := &timeline.Plan{TotalDuration: 5}
	if _, err := executor.Render(context.Background(), "job-4", plan, nil); !errors.Is(err, services.ErrRender) {
		t.Fatalf("expected render error for empty plan, got %v", err)
	}
	if len(client.calls) != 0 {
		t.Fatal("no tool should run for an invalid plan")
	}
}

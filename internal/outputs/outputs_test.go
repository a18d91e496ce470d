package outputs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"reelforge/internal/outputs"
	"reelforge/internal/services"
	"reelforge/internal/testsupport"
)

func TestFinalizePublishesArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	manager := outputs.NewManager(cfg, nil)

	staged := filepath.Join(cfg.Paths.StagingDir, "job-1", "final.mp4")
	testsupport.WriteFile(t, staged, 2048)

	artifact, err := manager.Finalize(context.Background(), "job-1", staged)
	if err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if artifact.Name != outputs.ArtifactName("job-1") {
		t.Fatalf("unexpected artifact name: %s", artifact.Name)
	}
	if artifact.SizeBytes != 2048 {
		t.Fatalf("unexpected artifact size: %d", artifact.SizeBytes)
	}
	if _, err := os.Stat(staged); !os.IsNotExist(err) {
		t.Fatalf("expected staged file consumed, stat err: %v", err)
	}

	resolved, err := manager.Resolve("job-1")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if resolved.Path != artifact.Path {
		t.Fatalf("resolve mismatch: %s != %s", resolved.Path, artifact.Path)
	}
}

func TestFinalizeRejectsEmptyRender(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	manager := outputs.NewManager(cfg, nil)

	staged := filepath.Join(cfg.Paths.StagingDir, "job-2", "final.mp4")
	testsupport.WriteFile(t, staged, 1)
	if err := os.Truncate(staged, 0); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	if _, err := manager.Finalize(context.Background(), "job-2", staged); err == nil {
		t.Fatal("expected empty render to be rejected")
	}
}

func TestResolveUnknownTokenIsNotFound(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	manager := outputs.NewManager(cfg, nil)

	_, err := manager.Resolve("ghost")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSweepEvictsExpiredOutputs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Retention.MaxAgeSeconds = 60
	cfg.Retention.MaxTotalBytes = 0
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	manager := outputs.NewManager(cfg, nil)

	old := filepath.Join(cfg.Paths.OutputDir, outputs.ArtifactName("old"))
	fresh := filepath.Join(cfg.Paths.OutputDir, outputs.ArtifactName("fresh"))
	testsupport.WriteFile(t, old, 100)
	testsupport.WriteFile(t, fresh, 100)
	stale := time.Now().Add(-2 * time.Minute)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	result, err := manager.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Removed != 1 || result.FreedBytes != 100 {
		t.Fatalf("unexpected sweep result: %+v", result)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("expected expired artifact removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("expected fresh artifact kept: %v", err)
	}
}

func TestSweepEnforcesSizeBudgetOldestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Retention.MaxAgeSeconds = 0
	cfg.Retention.MaxTotalBytes = 250
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	manager := outputs.NewManager(cfg, nil)

	names := []string{"a", "b", "c"}
	now := time.Now()
	for i, name := range names {
		path := filepath.Join(cfg.Paths.OutputDir, outputs.ArtifactName(name))
		testsupport.WriteFile(t, path, 100)
		ts := now.Add(time.Duration(i-3) * time.Minute)
		if err := os.Chtimes(path, ts, ts); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	result, err := manager.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if result.Removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", result.Removed)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.OutputDir, outputs.ArtifactName("a"))); !os.IsNotExist(err) {
		t.Fatal("expected oldest artifact evicted")
	}
	for _, name := range []string{"b", "c"} {
		if _, err := os.Stat(filepath.Join(cfg.Paths.OutputDir, outputs.ArtifactName(name))); err != nil {
			t.Fatalf("expected artifact %s kept: %v", name, err)
		}
	}
}

func TestListSkipsPartialFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	manager := outputs.NewManager(cfg, nil)

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.OutputDir, outputs.ArtifactName("done")), 10)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.OutputDir, "."+outputs.ArtifactName("wip")+".partial"), 10)

	artifacts, err := manager.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(artifacts) != 1 || artifacts[0].Name != outputs.ArtifactName("done") {
		t.Fatalf("unexpected artifacts: %#v", artifacts)
	}
}

func TestClearStorageRemovesUploadsAndOutputs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	manager := outputs.NewManager(cfg, nil)

	testsupport.WriteFile(t, filepath.Join(cfg.Paths.UploadDir, "clip.mp4"), 50)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.OutputDir, outputs.ArtifactName("done")), 70)
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.MusicDir, "track.mp3"), 30)

	removed, freed, err := manager.ClearStorage(context.Background())
	if err != nil {
		t.Fatalf("ClearStorage failed: %v", err)
	}
	if removed != 2 || freed != 120 {
		t.Fatalf("unexpected clear result: removed=%d freed=%d", removed, freed)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.MusicDir, "track.mp3")); err != nil {
		t.Fatalf("expected music library preserved: %v", err)
	}
}

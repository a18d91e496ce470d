package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reelforge/internal/assets"
	"reelforge/internal/config"
	"reelforge/internal/daemon"
	"reelforge/internal/logging"
	"reelforge/internal/outputs"
	"reelforge/internal/render"
	"reelforge/internal/scheduler"
	"reelforge/internal/services/ffmpeg"
	"reelforge/internal/testsupport"
	"reelforge/internal/timeline"
)

type cliTestEnv struct {
	cfg     *config.Config
	daemon  *daemon.Daemon
	address string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	homeDir := t.TempDir()
	t.Setenv("HOME", homeDir)

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	cfg.Scheduler.MinFreeSpaceGiB = 0
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
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	return &cliTestEnv{cfg: cfg, daemon: d, address: d.APIAddr()}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--address", env.address}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeUpload(t *testing.T, env *cliTestEnv, name string) {
	t.Helper()
	testsupport.WriteFile(t, filepath.Join(env.cfg.Paths.UploadDir, name), 64)
}

func writeRequestFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "request.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write request file: %v", err)
	}
	return path
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// Package daemonrun assembles the full render stack and runs the daemon in
// the foreground. It is shared by the reelforged binary and the CLI's
// daemon command.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"

	"reelforge/internal/assets"
	"reelforge/internal/config"
	"reelforge/internal/daemon"
	"reelforge/internal/outputs"
	"reelforge/internal/queue"
	"reelforge/internal/render"
	"reelforge/internal/scheduler"
	"reelforge/internal/services/ffmpeg"
	"reelforge/internal/timeline"
)

// Build wires the job store, scheduler, executor and output manager into a
// daemon ready to start.
func Build(cfg *config.Config, logger *slog.Logger) (*daemon.Daemon, error) {
	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}

	client := ffmpeg.NewCLI(ffmpeg.WithBinary(cfg.Render.FFmpegBinary))
	prober := ffmpeg.NewProber(ffmpeg.WithProbeBinary(cfg.Render.FFprobeBinary))

	assetStore := assets.NewStore(cfg)
	builder := timeline.NewBuilder(cfg, assetStore, prober, logger)
	executor := render.NewExecutor(cfg, client, prober, logger)
	outputMgr := outputs.NewManager(cfg, logger)
	sched := scheduler.NewManager(cfg, store, builder, executor, outputMgr, logger)

	d, err := daemon.New(cfg, store, logger, sched, outputMgr, assetStore)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return d, nil
}

// Run builds and starts the daemon, blocks until the context is cancelled,
// then shuts it down.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	d, err := Build(cfg, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop()
	return nil
}

package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"reelforge/internal/config"
	"reelforge/internal/logging"
	"reelforge/internal/services"
	"reelforge/internal/services/ffmpeg"
	"reelforge/internal/timeline"
)

// ProgressFunc receives executor progress for persistence and display.
type ProgressFunc func(stage, message string, percent float64)

// Result describes a completed render, staged but not yet published.
type Result struct {
	// StagedPath is the rendered file inside the job workspace. Ownership
	// passes to the output manager on finalize.
	StagedPath      string
	DurationSeconds float64
	SizeBytes       int64
	Diagnostics     string
}

// Executor turns composition plans into rendered files. Each job renders in
// an isolated workspace under the staging directory; the workspace is removed
// on failure so aborted renders leave nothing behind.
type Executor struct {
	cfg    *config.Config
	client ffmpeg.Client
	prober *ffmpeg.Prober
	logger *slog.Logger
}

// NewExecutor constructs a render executor.
func NewExecutor(cfg *config.Config, client ffmpeg.Client, prober *ffmpeg.Prober, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		cfg:    cfg,
		client: client,
		prober: prober,
		logger: logging.NewComponentLogger(logger, "render"),
	}
}

// Workspace returns the scratch directory for a job token.
func (e *Executor) Workspace(token string) string {
	return filepath.Join(e.cfg.Paths.StagingDir, token)
}

// Cleanup removes the job workspace. Safe to call whether or not it exists.
func (e *Executor) Cleanup(token string) {
	if err := os.RemoveAll(e.Workspace(token)); err != nil {
		e.logger.Warn("failed to remove workspace", "token", token, "error", err)
	}
}

// Render executes a plan under the configured watchdog deadline. The plan
// must already be validated; the executor fails hard on unknown operation
// kinds rather than skipping them.
func (e *Executor) Render(ctx context.Context, token string, plan *timeline.Plan, progress ProgressFunc) (Result, error) {
	if progress == nil {
		progress = func(string, string, float64) {}
	}

	if watchdog := time.Duration(e.cfg.Render.WatchdogSeconds) * time.Second; watchdog > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, watchdog)
		defer cancel()
	}

	workspace := e.Workspace(token)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return Result{}, services.Wrap(services.ErrRender, "render", "workspace", "create workspace", err)
	}

	result, err := e.render(ctx, workspace, plan, progress)
	if err != nil {
		e.Cleanup(token)
		return Result{}, e.classify(err)
	}
	return result, nil
}

func (e *Executor) render(ctx context.Context, workspace string, plan *timeline.Plan, progress ProgressFunc) (Result, error) {
	if err := e.checkFreeSpace(workspace); err != nil {
		return Result{}, err
	}

	var clips []timeline.Operation
	for _, op := range plan.Operations {
		switch op.Kind {
		case timeline.OpPlaceClip:
			clips = append(clips, op)
		case timeline.OpOverlayText, timeline.OpMixAudio, timeline.OpTrim:
			// handled in the finalize pass
		default:
			return Result{}, services.Wrap(services.ErrRender, "render", "plan",
				fmt.Sprintf("unknown operation kind %q", op.Kind), nil)
		}
	}
	if len(clips) == 0 {
		return Result{}, services.Wrap(services.ErrRender, "render", "plan", "no clips to render", nil)
	}

	// Pass 1: normalize every clip into a uniform portrait segment.
	segments := make([]string, 0, len(clips))
	for i, op := range clips {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		progress("Normalizing clips",
			fmt.Sprintf("clip %d of %d", i+1, len(clips)),
			float64(i)/float64(len(clips))*40)

		silent := op.Clip.Mute
		if !silent {
			hasAudio, err := e.hasAudio(ctx, op.Clip.Asset.Path)
			if err != nil {
				return Result{}, fmt.Errorf("probe audio for %s: %w", op.Describe(), err)
			}
			silent = !hasAudio
		}

		segment := filepath.Join(workspace, fmt.Sprintf("segment_%03d.mp4", i))
		args := normalizeClipArgs(e.cfg, op.Clip, silent, segment)
		e.logger.DebugContext(ctx, "normalizing clip", "segment", segment, "source", op.Clip.Asset.Locator)
		if _, err := e.client.Run(ctx, args, nil); err != nil {
			return Result{}, fmt.Errorf("normalize %s: %w", op.Describe(), err)
		}
		segments = append(segments, segment)
	}

	// Pass 2: stitch segments in timeline order.
	progress("Assembling timeline", fmt.Sprintf("%d segments", len(segments)), 45)
	listPath := filepath.Join(workspace, "segments.txt")
	if err := os.WriteFile(listPath, []byte(concatListContent(segments)), 0o644); err != nil {
		return Result{}, services.Wrap(services.ErrRender, "render", "concat", "write segment list", err)
	}
	basePath := filepath.Join(workspace, "base.mp4")
	if _, err := e.client.Run(ctx, concatArgs(listPath, basePath), nil); err != nil {
		return Result{}, fmt.Errorf("concatenate segments: %w", err)
	}

	// Pass 3: captions, music and trim in a single encode.
	progress("Compositing", "captions and audio", 50)
	finalPath := filepath.Join(workspace, "final.mp4")
	outputDuration := plan.OutputDuration()
	diagnostics, err := e.client.Run(ctx, finalizeArgs(e.cfg, plan, basePath, finalPath), func(u ffmpeg.ProgressUpdate) {
		if outputDuration <= 0 {
			return
		}
		percent := 50 + u.Seconds/outputDuration*50
		if percent > 99 {
			percent = 99
		}
		progress("Encoding", fmt.Sprintf("%.1fs of %.1fs", u.Seconds, outputDuration), percent)
	})
	if err != nil {
		return Result{}, fmt.Errorf("final encode: %w", err)
	}

	info, err := os.Stat(finalPath)
	if err != nil || info.Size() == 0 {
		return Result{}, services.Wrap(services.ErrRender, "render", "verify", "encoder produced no output", err)
	}

	result := Result{
		StagedPath:  finalPath,
		SizeBytes:   info.Size(),
		Diagnostics: diagnostics,
	}
	if e.prober != nil {
		if seconds, err := e.prober.Duration(ctx, finalPath); err == nil {
			result.DurationSeconds = seconds
		} else {
			e.logger.WarnContext(ctx, "cannot probe rendered duration", "error", err)
			result.DurationSeconds = outputDuration
		}
	} else {
		result.DurationSeconds = outputDuration
	}

	progress("Rendered", "waiting for publish", 99)
	return result, nil
}

// hasAudio probes the source for an audio stream. Without a prober the clip
// is assumed to carry audio.
func (e *Executor) hasAudio(ctx context.Context, path string) (bool, error) {
	if e.prober == nil {
		return true, nil
	}
	return e.prober.HasAudio(ctx, path)
}

// classify maps context aborts onto the error taxonomy: a watchdog expiry is
// a timeout, everything else passes through already tagged.
func (e *Executor) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "render", "watchdog",
			fmt.Sprintf("render exceeded %d seconds", e.cfg.Render.WatchdogSeconds), err)
	}
	return err
}

package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/timeline"
)

// RenderOutcome is the persisted result payload of a succeeded job.
type RenderOutcome struct {
	Artifact        string  `json:"artifact"`
	OutputPath      string  `json:"output_path"`
	DurationSeconds float64 `json:"duration_seconds"`
	SizeBytes       int64   `json:"size_bytes"`
}

func (m *Manager) runWorker(ctx context.Context, index int) {
	defer m.wg.Done()
	logger := m.logger.With(logging.Int("worker", index))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.NextQueued(ctx)
		if err != nil {
			logger.Error("failed to fetch next job",
				logging.Error(err),
				logging.String(logging.FieldEventType, "queue_fetch_failed"),
				logging.String(logging.FieldErrorHint, "check job database access"))
			m.waitOrShutdown(ctx, m.retryInterval)
			continue
		}
		if job == nil {
			m.waitOrShutdown(ctx, m.pollInterval)
			continue
		}

		// Another worker or a cancel may win the claim; just re-poll.
		claimed, err := m.store.MarkRunning(ctx, job.ID)
		if err != nil {
			logger.Error("failed to claim job", logging.Error(err))
			m.waitOrShutdown(ctx, m.retryInterval)
			continue
		}
		if !claimed {
			continue
		}

		m.processJob(ctx, logger, job)
	}
}

func (m *Manager) waitOrShutdown(ctx context.Context, wait time.Duration) {
	if wait <= 0 {
		wait = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(wait):
	}
}

func (m *Manager) processJob(ctx context.Context, logger *slog.Logger, job *queue.Job) {
	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.registerActive(job.ID, cancel)
	defer m.unregisterActive(job.ID)

	jobCtx = services.WithJobID(jobCtx, job.ID)
	logger = logger.With(logging.Int64(logging.FieldJobID, job.ID))
	logger.InfoContext(jobCtx, "render started", logging.String("token", job.Token))

	var plan timeline.Plan
	if err := json.Unmarshal([]byte(job.PlanJSON), &plan); err != nil {
		m.finishFailed(logger, job, services.Wrap(services.ErrRender, "scheduler", "plan", "decode stored plan", err))
		return
	}

	result, err := m.executor.Render(jobCtx, job.Token, &plan, func(stage, message string, percent float64) {
		job.SetProgress(stage, message, percent)
		if updateErr := m.store.Update(context.Background(), job); updateErr != nil {
			logger.Warn("failed to persist progress", logging.Error(updateErr))
		}
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			if m.cancelRequested(job.ID) {
				m.finishCancelled(logger, job)
				return
			}
			// Daemon shutdown: leave the job running, Stop marks it failed.
			return
		}
		m.finishFailed(logger, job, err)
		return
	}

	artifact, err := m.outputs.Finalize(jobCtx, job.Token, result.StagedPath)
	m.executor.Cleanup(job.Token)
	if err != nil {
		m.finishFailed(logger, job, err)
		return
	}

	outcome := RenderOutcome{
		Artifact:        artifact.Name,
		OutputPath:      artifact.Path,
		DurationSeconds: result.DurationSeconds,
		SizeBytes:       artifact.SizeBytes,
	}
	outcomeJSON, marshalErr := json.Marshal(outcome)
	if marshalErr != nil {
		m.finishFailed(logger, job, services.Wrap(services.ErrRender, "scheduler", "result", "encode outcome", marshalErr))
		return
	}

	now := time.Now().UTC()
	job.State = queue.StatusSucceeded
	job.OutputPath = artifact.Path
	job.ResultJSON = string(outcomeJSON)
	job.FinishedAt = &now
	job.SetProgress("Complete", artifact.Name, 100)
	if err := m.store.Update(context.Background(), job); err != nil {
		logger.Error("failed to persist success", logging.Error(err))
		return
	}
	logger.Info("render succeeded",
		logging.String("artifact", artifact.Name),
		logging.Float64("duration", result.DurationSeconds))
}

func (m *Manager) finishFailed(logger *slog.Logger, job *queue.Job, cause error) {
	now := time.Now().UTC()
	job.SetFailed(services.Kind(cause), cause.Error())
	job.FinishedAt = &now
	if err := m.store.Update(context.Background(), job); err != nil {
		logger.Error("failed to persist failure", logging.Error(err))
		return
	}
	logger.Error("render failed",
		logging.Error(cause),
		logging.String(logging.FieldEventType, "render_failed"),
		logging.String("error_kind", job.ErrorKind))
}

func (m *Manager) finishCancelled(logger *slog.Logger, job *queue.Job) {
	now := time.Now().UTC()
	job.State = queue.StatusCancelled
	job.SetProgress("Cancelled", "cancelled while running", job.ProgressPercent)
	job.FinishedAt = &now
	if err := m.store.Update(context.Background(), job); err != nil {
		logger.Error("failed to persist cancellation", logging.Error(err))
		return
	}
	logger.Info("render cancelled")
}

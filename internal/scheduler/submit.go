package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"reelforge/internal/logging"
	"reelforge/internal/queue"
	"reelforge/internal/services"
	"reelforge/internal/timeline"
)

// Submit validates an edit request, builds its composition plan and admits it
// into the queue. Requests that reference missing or malformed assets are
// rejected here, before any job exists or any tool runs. A full queue rejects
// with an overload error and records nothing.
func (m *Manager) Submit(ctx context.Context, req *timeline.Request) (*queue.Job, error) {
	plan, err := m.builder.Build(ctx, req)
	if err != nil {
		return nil, err
	}

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return nil, services.Wrap(services.ErrRender, "scheduler", "submit", "encode plan", err)
	}

	token := uuid.NewString()

	// Admission is serialized so concurrent submissions cannot both observe
	// free capacity and overshoot the budget.
	m.mu.Lock()
	defer m.mu.Unlock()

	budget := m.cfg.Scheduler.Workers + m.cfg.Scheduler.QueueCapacity
	active, err := m.store.CountActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("admission check: %w", err)
	}
	if active >= budget {
		return nil, services.Wrap(services.ErrOverloaded, "scheduler", "submit",
			fmt.Sprintf("%d jobs active, budget is %d", active, budget), nil)
	}

	job, err := m.store.NewJob(ctx, token, string(planJSON))
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	m.logger.InfoContext(ctx, "job admitted",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("token", job.Token),
		logging.Float64("duration", plan.TotalDuration),
		logging.Int("operations", len(plan.Operations)))
	return job, nil
}

// Cancel stops a job. A queued job is cancelled in place and will never run;
// a running job has its render interrupted and transitions to cancelled when
// the worker unwinds. Returns the not found sentinel for unknown jobs and the
// validation sentinel for jobs already in a terminal state.
func (m *Manager) Cancel(ctx context.Context, id int64) error {
	won, err := m.store.CancelQueued(ctx, id)
	if err != nil {
		return err
	}
	if won {
		m.logger.InfoContext(ctx, "cancelled queued job", logging.Int64(logging.FieldJobID, id))
		return nil
	}

	job, err := m.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return services.Wrap(services.ErrNotFound, "scheduler", "cancel",
			fmt.Sprintf("job %d does not exist", id), nil)
	}
	if job.State != queue.StatusRunning {
		return services.Wrap(services.ErrValidation, "scheduler", "cancel",
			fmt.Sprintf("job %d is already %s", id, job.State), nil)
	}

	m.mu.Lock()
	cancel, ok := m.active[id]
	if ok {
		m.requested[id] = true
	}
	m.mu.Unlock()
	if !ok {
		// Worker has not registered yet or just finished; the conditional
		// transition above already decided the race.
		return services.Wrap(services.ErrValidation, "scheduler", "cancel",
			fmt.Sprintf("job %d is not interruptible", id), nil)
	}
	cancel()
	m.logger.InfoContext(ctx, "interrupting running job", logging.Int64(logging.FieldJobID, id))
	return nil
}

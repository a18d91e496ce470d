package api

import (
	"encoding/json"
	"time"

	"reelforge/internal/queue"
)

// FromJob converts a stored job into its wire representation.
func FromJob(job *queue.Job) JobView {
	view := JobView{
		ID:              job.ID,
		Token:           job.Token,
		State:           string(job.State),
		ProgressStage:   job.ProgressStage,
		ProgressPercent: job.ProgressPercent,
		ProgressMessage: job.ProgressMessage,
		ErrorKind:       job.ErrorKind,
		ErrorDetail:     job.ErrorDetail,
		CreatedAt:       formatTime(job.CreatedAt),
	}
	if job.StartedAt != nil {
		view.StartedAt = formatTime(*job.StartedAt)
	}
	if job.FinishedAt != nil {
		view.FinishedAt = formatTime(*job.FinishedAt)
	}
	if job.ResultJSON != "" {
		var outcome struct {
			Artifact        string  `json:"artifact"`
			DurationSeconds float64 `json:"duration_seconds"`
			SizeBytes       int64   `json:"size_bytes"`
		}
		if err := json.Unmarshal([]byte(job.ResultJSON), &outcome); err == nil {
			view.Artifact = outcome.Artifact
			view.DurationSeconds = outcome.DurationSeconds
			view.SizeBytes = outcome.SizeBytes
		}
	}
	return view
}

// FromJobs converts a job list.
func FromJobs(jobs []*queue.Job) []JobView {
	views := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, FromJob(job))
	}
	return views
}

// FromHealth converts an aggregate health summary.
func FromHealth(health queue.HealthSummary) HealthView {
	return HealthView{
		Total:     health.Total,
		Queued:    health.Queued,
		Running:   health.Running,
		Succeeded: health.Succeeded,
		Failed:    health.Failed,
		Cancelled: health.Cancelled,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

package outputs

import (
	"context"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

// SweepResult summarizes one retention pass.
type SweepResult struct {
	Removed    int
	FreedBytes int64
}

// Sweep applies the retention policy to finalized outputs: artifacts older
// than the maximum age are removed first, then the oldest survivors are
// evicted until the directory fits the total size budget. A zero limit
// disables the corresponding rule.
func (m *Manager) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	artifacts, err := m.List()
	if err != nil {
		return result, err
	}

	maxAge := time.Duration(m.cfg.Retention.MaxAgeSeconds) * time.Second
	now := time.Now()

	remaining := artifacts[:0]
	for _, artifact := range artifacts {
		if maxAge > 0 && now.Sub(artifact.ModTime) > maxAge {
			if err := os.Remove(artifact.Path); err != nil {
				m.logger.WarnContext(ctx, "failed to evict expired output",
					"artifact", artifact.Name, "error", err)
				remaining = append(remaining, artifact)
				continue
			}
			result.Removed++
			result.FreedBytes += artifact.SizeBytes
			continue
		}
		remaining = append(remaining, artifact)
	}

	if maxBytes := m.cfg.Retention.MaxTotalBytes; maxBytes > 0 {
		var total int64
		for _, artifact := range remaining {
			total += artifact.SizeBytes
		}
		// remaining is oldest first, evict from the front.
		for _, artifact := range remaining {
			if total <= maxBytes {
				break
			}
			if err := os.Remove(artifact.Path); err != nil {
				m.logger.WarnContext(ctx, "failed to evict output over size budget",
					"artifact", artifact.Name, "error", err)
				continue
			}
			total -= artifact.SizeBytes
			result.Removed++
			result.FreedBytes += artifact.SizeBytes
		}
	}

	if result.Removed > 0 {
		m.logger.InfoContext(ctx, "retention sweep evicted outputs",
			"removed", result.Removed,
			"freed", humanize.Bytes(uint64(result.FreedBytes)))
	}
	return result, nil
}

// RunSweeper applies the retention policy on an interval until the context is
// cancelled. Intended to run as a daemon goroutine.
func (m *Manager) RunSweeper(ctx context.Context) {
	interval := time.Duration(m.cfg.Retention.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.logger.WarnContext(ctx, "retention sweep failed", "error", err)
			}
		}
	}
}

package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"reelforge/internal/services"
)

// Prober reports media durations via ffprobe.
type Prober struct {
	binary string
}

// ProberOption configures the prober.
type ProberOption func(*Prober)

// WithProbeBinary overrides the default ffprobe binary name.
func WithProbeBinary(binary string) ProberOption {
	return func(p *Prober) {
		if binary != "" {
			p.binary = binary
		}
	}
}

// NewProber constructs an ffprobe-backed duration prober.
func NewProber(opts ...ProberOption) *Prober {
	prober := &Prober{binary: "ffprobe"}
	for _, opt := range opts {
		opt(prober)
	}
	return prober
}

// Duration returns the container duration of the file at path in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := commandContext(ctx, p.binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "ffprobe exited with an error"
		}
		return 0, services.Wrap(services.ErrToolFailure, "ffprobe", "duration", detail, err)
	}

	raw := strings.TrimSpace(stdout.String())
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, services.Wrap(services.ErrToolFailure, "ffprobe", "duration",
			fmt.Sprintf("unparseable duration %q for %s", raw, path), err)
	}
	if seconds <= 0 {
		return 0, services.Wrap(services.ErrToolFailure, "ffprobe", "duration",
			fmt.Sprintf("nonpositive duration %v for %s", seconds, path), nil)
	}
	return seconds, nil
}

// HasAudio reports whether the file at path carries at least one audio stream.
func (p *Prober) HasAudio(ctx context.Context, path string) (bool, error) {
	args := []string{
		"-v", "error",
		"-select_streams", "a",
		"-show_entries", "stream=codec_type",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := commandContext(ctx, p.binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "ffprobe exited with an error"
		}
		return false, services.Wrap(services.ErrToolFailure, "ffprobe", "audio streams", detail, err)
	}

	return strings.TrimSpace(stdout.String()) != "", nil
}

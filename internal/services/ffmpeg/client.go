package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"reelforge/internal/services"
)

var commandContext = exec.CommandContext

// stderrTailLines bounds how much tool output is kept for diagnostics.
const stderrTailLines = 40

// ProgressUpdate captures ffmpeg progress events from -progress output.
type ProgressUpdate struct {
	// Seconds of output written so far.
	Seconds float64
	// Speed is the realtime multiplier reported by the encoder, 0 when unknown.
	Speed float64
}

// Client defines ffmpeg invocation behaviour.
type Client interface {
	Run(ctx context.Context, args []string, progress func(ProgressUpdate)) (string, error)
}

// Option configures the CLI client.
type Option func(*CLI)

// WithBinary overrides the default binary name.
func WithBinary(binary string) Option {
	return func(c *CLI) {
		if binary != "" {
			c.binary = binary
		}
	}
}

// CLI wraps the ffmpeg command-line encoder.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "ffmpeg"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// Run invokes ffmpeg with the provided arguments and returns the tail of its
// stderr output as diagnostics. When a progress callback is given, progress
// reporting is requested on stdout and forwarded as updates. A nonzero exit
// is returned tagged as a tool failure; a cancelled context surfaces as the
// context error so watchdog aborts are not misclassified.
func (c *CLI) Run(ctx context.Context, args []string, progress func(ProgressUpdate)) (string, error) {
	if len(args) == 0 {
		return "", errors.New("ffmpeg arguments required")
	}

	full := append([]string{"-hide_banner", "-nostdin", "-y"}, args...)
	if progress != nil {
		full = append(full, "-progress", "pipe:1", "-nostats")
	}

	cmd := commandContext(ctx, c.binary, full...) //nolint:gosec
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("stderr pipe: %w", err)
	}
	var stdout *bufio.Scanner
	if progress != nil {
		pipe, err := cmd.StdoutPipe()
		if err != nil {
			return "", fmt.Errorf("stdout pipe: %w", err)
		}
		stdout = bufio.NewScanner(pipe)
	}
	if err := cmd.Start(); err != nil {
		return "", services.Wrap(services.ErrToolFailure, "ffmpeg", "start", c.binary, err)
	}

	done := make(chan struct{})
	tail := make([]string, 0, stderrTailLines)
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if len(tail) == stderrTailLines {
				copy(tail, tail[1:])
				tail = tail[:stderrTailLines-1]
			}
			tail = append(tail, line)
		}
	}()

	if stdout != nil {
		update := ProgressUpdate{}
		for stdout.Scan() {
			key, value, ok := strings.Cut(strings.TrimSpace(stdout.Text()), "=")
			if !ok {
				continue
			}
			switch key {
			case "out_time_us":
				if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
					update.Seconds = float64(us) / 1e6
				}
			case "speed":
				if mult, err := strconv.ParseFloat(strings.TrimSuffix(value, "x"), 64); err == nil {
					update.Speed = mult
				}
			case "progress":
				progress(update)
			}
		}
	}

	<-done
	diagnostics := strings.Join(tail, "\n")

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return diagnostics, ctxErr
		}
		return diagnostics, services.Wrap(services.ErrToolFailure, "ffmpeg", "run", lastLine(tail), err)
	}
	return diagnostics, nil
}

func lastLine(tail []string) string {
	if len(tail) == 0 {
		return "encoder exited with an error"
	}
	return tail[len(tail)-1]
}

var _ Client = (*CLI)(nil)

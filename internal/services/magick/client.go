package magick

import (
	"bytes"
	"context"
	"os/exec"
	"strings"

	"reelforge/internal/services"
)

var commandContext = exec.CommandContext

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

// CLI wraps the ImageMagick command-line tool. It is used only as a preflight
// probe: caption rasterization depends on the system policy permitting text
// operations, and a blocked policy must be reported as a misconfiguration
// rather than a render failure.
type CLI struct {
	binary string
}

// NewCLI constructs a CLI client using defaults.
func NewCLI(opts ...Option) *CLI {
	cli := &CLI{binary: "magick"}
	for _, opt := range opts {
		opt(cli)
	}
	return cli
}

// CheckTextPolicy verifies the installed ImageMagick policy does not forbid
// text rasterization. Distributions commonly ship a policy.xml denying path
// reads for the "@*" pattern, which breaks caption rendering in a way that
// only surfaces mid-render unless caught up front.
func (c *CLI) CheckTextPolicy(ctx context.Context) error {
	cmd := commandContext(ctx, c.binary, "-list", "policy") //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "cannot query ImageMagick policy"
		}
		return services.Wrap(services.ErrToolMisconfigured, "magick", "list policy", detail, err)
	}

	if blocked, pattern := textBlockedBy(stdout.String()); blocked {
		return services.Wrap(services.ErrToolMisconfigured, "magick", "policy",
			"ImageMagick policy denies text rendering for pattern "+pattern+
				"; edit policy.xml to allow caption rasterization", nil)
	}
	return nil
}

// textBlockedBy scans `magick -list policy` output for a path policy with no
// rights covering the @* pattern used by text file arguments.
func textBlockedBy(output string) (bool, string) {
	var rightsNone bool
	var pattern string
	flush := func() (bool, string) {
		if rightsNone && (pattern == "@*" || pattern == "*") {
			return true, pattern
		}
		return false, ""
	}

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Policy:"):
			if blocked, p := flush(); blocked {
				return true, p
			}
			rightsNone = false
			pattern = ""
		case strings.HasPrefix(trimmed, "rights:"):
			value := strings.TrimSpace(strings.TrimPrefix(trimmed, "rights:"))
			rightsNone = strings.EqualFold(value, "none")
		case strings.HasPrefix(trimmed, "pattern:"):
			pattern = strings.TrimSpace(strings.TrimPrefix(trimmed, "pattern:"))
		}
	}
	return flush()
}

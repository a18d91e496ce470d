package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed edit requests. Never retried; surfaced verbatim.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks asset locators that do not resolve to a file.
	ErrNotFound = errors.New("not found")
	// ErrInvalidLocator marks locators that escape the configured asset roots.
	ErrInvalidLocator = errors.New("invalid locator")
	// ErrTypeMismatch marks assets whose detected kind differs from the declared kind.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrToolFailure marks a nonzero exit or crash of an external tool.
	ErrToolFailure = errors.New("external tool failure")
	// ErrRender marks render pipeline failures that are not a single tool exit.
	ErrRender = errors.New("render error")
	// ErrTimeout marks watchdog-triggered aborts of a stuck render.
	ErrTimeout = errors.New("timeout")
	// ErrOverloaded marks admission rejections when the queue is at capacity.
	ErrOverloaded = errors.New("overloaded")
	// ErrToolMisconfigured marks external tools that are installed but unusable
	// (for example an ImageMagick policy that forbids text rasterization).
	ErrToolMisconfigured = errors.New("tool misconfigured")
	// ErrConfiguration marks bad service configuration.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later status classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrRender
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns the stable classification string for an error, used for
// persisted job records and API payloads. Unrecognized errors classify as
// render failures.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidLocator):
		return "invalid_locator"
	case errors.Is(err, ErrTypeMismatch):
		return "type_mismatch"
	case errors.Is(err, ErrOverloaded):
		return "overloaded"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrToolMisconfigured):
		return "tool_misconfigured"
	case errors.Is(err, ErrToolFailure):
		return "tool_failure"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	default:
		return "render"
	}
}

// IsRequestFault reports whether the error is attributable to the submitted
// request rather than the render machinery. Request faults are never retried.
func IsRequestFault(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidLocator) ||
		errors.Is(err, ErrTypeMismatch)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// Package logging wires log/slog with the console and JSON handlers used by
// the daemon and CLI, plus attribute helpers and context-derived fields.
package logging

// Package logs reads the daemon log file for CLI display, including a
// polling follow mode for live tailing.
package logs

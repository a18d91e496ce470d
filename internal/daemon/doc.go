// Package daemon wires the render scheduler, output retention and HTTP API
// into a single-instance background service guarded by a file lock.
package daemon

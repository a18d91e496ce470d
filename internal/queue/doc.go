// Package queue persists render jobs in SQLite and exposes the lifecycle
// operations the scheduler and API build on. Jobs move queued -> running ->
// {succeeded, failed, cancelled}; transitions out of queued use conditional
// updates so a cancel racing a worker claim resolves to exactly one winner.
package queue

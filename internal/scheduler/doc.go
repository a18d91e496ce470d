// Package scheduler admits validated edit requests into the job queue and
// drives the worker pool that renders them. Admission enforces a fixed
// queued-plus-running budget; workers claim jobs oldest first and own all
// state transitions out of running.
package scheduler

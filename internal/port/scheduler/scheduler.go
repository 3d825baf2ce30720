package scheduler

import "time"

// Task is a pending delayed callback.
type Task interface {
	// Stop cancels the callback. It reports false if the callback already ran
	// or was already stopped.
	Stop() bool
}

// Scheduler runs fn once after d. Tests inject an implementation that runs
// immediately or on demand.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Task
}

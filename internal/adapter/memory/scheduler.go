package memory

import (
	"time"

	portscheduler "github.com/defenseunicorns/leapfrogai-sub001/internal/port/scheduler"
)

// TimerScheduler runs callbacks on time.AfterFunc timers.
type TimerScheduler struct{}

func (TimerScheduler) AfterFunc(d time.Duration, fn func()) portscheduler.Task {
	return time.AfterFunc(d, fn)
}

// ImmediateScheduler runs every callback synchronously, ignoring the delay.
// Used when the release delay is configured to zero and in tests.
type ImmediateScheduler struct{}

func (ImmediateScheduler) AfterFunc(_ time.Duration, fn func()) portscheduler.Task {
	fn()
	return doneTask{}
}

type doneTask struct{}

func (doneTask) Stop() bool { return false }

// NewScheduler picks the immediate scheduler for a zero delay.
func NewScheduler(delay time.Duration) portscheduler.Scheduler {
	if delay <= 0 {
		return ImmediateScheduler{}
	}
	return TimerScheduler{}
}

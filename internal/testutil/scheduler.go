package testutil

import (
	"sync"
	"time"

	portscheduler "github.com/defenseunicorns/leapfrogai-sub001/internal/port/scheduler"
)

// ManualScheduler queues callbacks until the test calls Fire.
type ManualScheduler struct {
	mu      sync.Mutex
	pending []*manualTask
}

type manualTask struct {
	sched   *ManualScheduler
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (s *ManualScheduler) AfterFunc(d time.Duration, fn func()) portscheduler.Task {
	t := &manualTask{sched: s, delay: d, fn: fn}
	s.mu.Lock()
	s.pending = append(s.pending, t)
	s.mu.Unlock()
	return t
}

func (t *manualTask) Stop() bool {
	t.sched.mu.Lock()
	defer t.sched.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Pending counts callbacks that are neither stopped nor fired.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.pending {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// LastDelay is the delay requested by the most recent AfterFunc call.
func (s *ManualScheduler) LastDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return 0
	}
	return s.pending[len(s.pending)-1].delay
}

// Fire runs every live callback in scheduling order and returns how many ran.
func (s *ManualScheduler) Fire() int {
	s.mu.Lock()
	var due []func()
	for _, t := range s.pending {
		if !t.stopped && !t.fired {
			t.fired = true
			due = append(due, t.fn)
		}
	}
	s.pending = nil
	s.mu.Unlock()

	for _, fn := range due {
		fn()
	}
	return len(due)
}

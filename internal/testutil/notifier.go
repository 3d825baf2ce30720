package testutil

import (
	"context"
	"sync"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/notification"
)

// CaptureSink is a notifier.Sink test double that records every
// notification. It is safe for concurrent use.
type CaptureSink struct {
	mu    sync.Mutex
	Calls []notification.Notification
}

func (c *CaptureSink) Notify(_ context.Context, n notification.Notification) {
	c.mu.Lock()
	c.Calls = append(c.Calls, n)
	c.mu.Unlock()
}

// All returns a copy of every recorded notification.
func (c *CaptureSink) All() []notification.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notification.Notification(nil), c.Calls...)
}

// Kind returns the recorded notifications of one kind.
func (c *CaptureSink) Kind(k notification.Kind) []notification.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []notification.Notification
	for _, n := range c.Calls {
		if n.Kind == k {
			out = append(out, n)
		}
	}
	return out
}

func (c *CaptureSink) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Calls)
}

// Reset clears all recorded calls.
func (c *CaptureSink) Reset() {
	c.mu.Lock()
	c.Calls = nil
	c.mu.Unlock()
}

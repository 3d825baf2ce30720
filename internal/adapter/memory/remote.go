package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
	portthread "github.com/defenseunicorns/leapfrogai-sub001/internal/port/thread"
)

// Remote is an in-process thread.Remote. Timestamps have second
// granularity, like the hosted APIs it stands in for.
type Remote struct {
	mu      sync.RWMutex
	threads map[string]*domainthread.Thread
	order   []string
	now     func() time.Time
}

func NewRemote() *Remote {
	return &Remote{
		threads: make(map[string]*domainthread.Thread),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Tests use it to force equal timestamps.
func (r *Remote) WithClock(now func() time.Time) *Remote {
	r.now = now
	return r
}

func (r *Remote) stamp() domainthread.Timestamp {
	return domainthread.Epoch(float64(r.now().Unix()))
}

func (r *Remote) CreateThread(_ context.Context, label string) (domainthread.Thread, error) {
	t := domainthread.Thread{
		ID:        "thread_" + uuid.NewString(),
		Label:     label,
		CreatedAt: r.stamp(),
	}

	r.mu.Lock()
	r.threads[t.ID] = &t
	r.order = append(r.order, t.ID)
	r.mu.Unlock()

	return t.Clone(), nil
}

func (r *Remote) DeleteThread(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.threads[id]; !ok {
		return fmt.Errorf("delete thread %s: %w", id, portthread.ErrNotFound)
	}
	delete(r.threads, id)
	for i, tid := range r.order {
		if tid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *Remote) UpdateThreadLabel(_ context.Context, id, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.threads[id]
	if !ok {
		return fmt.Errorf("update thread %s: %w", id, portthread.ErrNotFound)
	}
	t.Label = label
	return nil
}

// ListThreads returns threads in creation order without their messages.
func (r *Remote) ListThreads(_ context.Context) ([]domainthread.Thread, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domainthread.Thread, 0, len(r.order))
	for _, id := range r.order {
		t := *r.threads[id]
		t.Messages = nil
		out = append(out, t)
	}
	return out, nil
}

func (r *Remote) CreateMessage(_ context.Context, req portthread.CreateMessageRequest) (domainthread.Message, error) {
	if !req.Role.Valid() {
		return domainthread.Message{}, fmt.Errorf("create message: invalid role %q", req.Role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.threads[req.ThreadID]
	if !ok {
		return domainthread.Message{}, fmt.Errorf("create message in %s: %w", req.ThreadID, portthread.ErrNotFound)
	}
	m := domainthread.Message{
		ID:          "msg_" + uuid.NewString(),
		ThreadID:    req.ThreadID,
		Role:        req.Role,
		Content:     req.Content,
		CreatedAt:   r.stamp(),
		State:       domainthread.StatePersisted,
		AssistantID: req.AssistantID,
		Metadata:    req.Metadata,
	}.Clone()
	t.Messages = append(t.Messages, m)
	return m.Clone(), nil
}

func (r *Remote) ListMessages(_ context.Context, threadID string) ([]domainthread.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.threads[threadID]
	if !ok {
		return nil, fmt.Errorf("list messages of %s: %w", threadID, portthread.ErrNotFound)
	}
	return t.Clone().Messages, nil
}

func (r *Remote) DeleteMessage(_ context.Context, threadID, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.threads[threadID]
	if !ok {
		return fmt.Errorf("delete message in %s: %w", threadID, portthread.ErrNotFound)
	}
	i := domainthread.IndexOf(t.Messages, messageID)
	if i < 0 {
		return fmt.Errorf("delete message %s: %w", messageID, portthread.ErrNotFound)
	}
	t.Messages = append(t.Messages[:i], t.Messages[i+1:]...)
	return nil
}

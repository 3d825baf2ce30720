package wire

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/event"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/protocol"
	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
	porteventbus "github.com/defenseunicorns/leapfrogai-sub001/internal/port/eventbus"
	portscheduler "github.com/defenseunicorns/leapfrogai-sub001/internal/port/scheduler"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/chat"
	protocolsvc "github.com/defenseunicorns/leapfrogai-sub001/internal/service/protocol"
)

type streamSlot interface {
	StreamingMessage() (domainthread.Message, bool)
}

type activeStreams interface {
	Active(threadID string) (chat.StreamInfo, bool)
}

type stopper interface {
	Stop(ctx context.Context, req protocolsvc.StopRequest) protocol.Outcome
}

// reaper stops streams that go quiet. Every streaming update re-arms a
// per-thread timer; if it expires while the thread still has an active
// stream, the stream is stopped through Stop-and-Save so whatever arrived is
// kept and the user is told once.
type reaper struct {
	slot    streamSlot
	streams activeStreams
	stop    stopper
	sched   portscheduler.Scheduler
	idle    time.Duration

	mu     sync.Mutex
	timers map[string]reapTimer
	latest map[string]uint64
	gen    uint64
}

type reapTimer struct {
	task portscheduler.Task
	gen  uint64
}

func newReaper(slot streamSlot, streams activeStreams, stop stopper, sched portscheduler.Scheduler, idle time.Duration) *reaper {
	return &reaper{
		slot:    slot,
		streams: streams,
		stop:    stop,
		sched:   sched,
		idle:    idle,
		timers:  make(map[string]reapTimer),
		latest:  make(map[string]uint64),
	}
}

// startReaper subscribes the reaper to the stream channel.
func startReaper(ctx context.Context, bus porteventbus.EventBus, r *reaper) (porteventbus.Subscription, error) {
	return bus.Subscribe(ctx, event.ChannelStream, func(_ context.Context, e event.Event) {
		if e.Type == event.TypeStreamingUpdated && e.ThreadID != "" {
			r.touch(e.ThreadID)
		}
	})
}

func (r *reaper) touch(threadID string) {
	m, streaming := r.slot.StreamingMessage()
	streaming = streaming && m.ThreadID == threadID

	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.latest[threadID] = gen
	if t, ok := r.timers[threadID]; ok {
		t.task.Stop()
		delete(r.timers, threadID)
	}
	r.mu.Unlock()
	if !streaming {
		return
	}

	task := r.sched.AfterFunc(r.idle, func() { r.expire(threadID, gen) })

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest[threadID] != gen {
		task.Stop()
		return
	}
	r.timers[threadID] = reapTimer{task: task, gen: gen}
}

func (r *reaper) expire(threadID string, gen uint64) {
	r.mu.Lock()
	t, ok := r.timers[threadID]
	if !ok || t.gen != gen {
		r.mu.Unlock()
		return
	}
	delete(r.timers, threadID)
	r.mu.Unlock()

	if _, ok := r.streams.Active(threadID); !ok {
		return
	}
	slog.Warn("reaper: stream idle, stopping", "thread_id", threadID, "idle", r.idle)
	out := r.stop.Stop(context.Background(), protocolsvc.StopRequest{ThreadID: threadID})
	if !out.OK() {
		slog.Error("reaper: stop failed", "thread_id", threadID, "stage", out.Stage, "error", out.Err)
	}
}

// pending counts armed timers.
func (r *reaper) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

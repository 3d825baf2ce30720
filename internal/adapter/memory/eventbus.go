package memory

import (
	"context"
	"sync"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/event"
	porteventbus "github.com/defenseunicorns/leapfrogai-sub001/internal/port/eventbus"
)

// EventBus delivers events synchronously on the publisher's goroutine, in
// subscription order. Handlers must not block.
type EventBus struct {
	mu   sync.RWMutex
	subs map[event.Channel]map[*subscription]porteventbus.Handler
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[event.Channel]map[*subscription]porteventbus.Handler)}
}

func (eb *EventBus) Publish(ctx context.Context, e event.Event) error {
	ch := event.ChannelFor(e.Type)

	eb.mu.RLock()
	handlers := make([]porteventbus.Handler, 0, len(eb.subs[ch]))
	for _, h := range eb.subs[ch] {
		handlers = append(handlers, h)
	}
	eb.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, e)
	}
	return nil
}

func (eb *EventBus) Subscribe(_ context.Context, ch event.Channel, handler porteventbus.Handler) (porteventbus.Subscription, error) {
	sub := &subscription{bus: eb, ch: ch}

	eb.mu.Lock()
	if eb.subs[ch] == nil {
		eb.subs[ch] = make(map[*subscription]porteventbus.Handler)
	}
	eb.subs[ch][sub] = handler
	eb.mu.Unlock()

	return sub, nil
}

type subscription struct {
	bus  *EventBus
	ch   event.Channel
	once sync.Once
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs[s.ch], s)
		s.bus.mu.Unlock()
	})
}

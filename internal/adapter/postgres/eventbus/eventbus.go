// Package eventbus carries store change events over Postgres LISTEN/NOTIFY so
// several engine processes sharing one database see each other's changes.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/event"
	porteventbus "github.com/defenseunicorns/leapfrogai-sub001/internal/port/eventbus"
)

const (
	channelPrefix = "chat_sync_"

	// maxPayload is the NOTIFY payload limit less a little headroom.
	maxPayload = 7900

	retryDelay = 250 * time.Millisecond
)

type EventBus struct {
	pool *pgxpool.Pool

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

func New(pool *pgxpool.Pool) *EventBus {
	return &EventBus{
		pool: pool,
		subs: make(map[*subscription]struct{}),
	}
}

// Publish sends e with pg_notify on the channel its type belongs to.
func (eb *EventBus) Publish(ctx context.Context, e event.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", e.Type, err)
	}
	if len(payload) > maxPayload {
		return fmt.Errorf("publish event %s: payload of %d bytes exceeds NOTIFY limit", e.Type, len(payload))
	}

	channel := channelName(event.ChannelFor(e.Type))
	if _, err := eb.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, string(payload)); err != nil {
		return fmt.Errorf("publish event on %s: %w", channel, err)
	}
	return nil
}

// Subscribe holds one pooled connection in LISTEN for the life of the
// subscription. Handlers run on the listener goroutine, one event at a time.
func (eb *EventBus) Subscribe(ctx context.Context, ch event.Channel, handler porteventbus.Handler) (porteventbus.Subscription, error) {
	eb.mu.Lock()
	closed := eb.closed
	eb.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("subscribe to %s: event bus closed", ch)
	}

	conn, err := eb.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire listen connection: %w", err)
	}

	channel := channelName(ch)
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen on %s: %w", channel, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{bus: eb, cancel: cancel, done: make(chan struct{})}

	eb.mu.Lock()
	eb.subs[sub] = struct{}{}
	eb.mu.Unlock()

	go func() {
		defer func() {
			unlistenCtx, stop := context.WithTimeout(context.Background(), time.Second)
			if _, err := conn.Exec(unlistenCtx, "UNLISTEN "+channel); err != nil {
				slog.Debug("eventbus: unlisten failed", "channel", channel, "error", err)
			}
			stop()
			conn.Release()
			close(sub.done)
		}()

		for {
			n, err := conn.Conn().WaitForNotification(subCtx)
			if err != nil {
				if subCtx.Err() != nil {
					return
				}
				slog.WarnContext(subCtx, "eventbus: wait for notification failed", "channel", channel, "error", err)
				select {
				case <-subCtx.Done():
					return
				case <-time.After(retryDelay):
				}
				continue
			}

			var e event.Event
			if err := json.Unmarshal([]byte(n.Payload), &e); err != nil {
				slog.WarnContext(subCtx, "eventbus: dropping malformed payload", "channel", channel, "error", err)
				continue
			}
			handler(subCtx, e)
		}
	}()

	return sub, nil
}

// Close ends every live subscription and refuses new ones. The pool stays
// open; its owner closes it.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	eb.closed = true
	subs := make([]*subscription, 0, len(eb.subs))
	for s := range eb.subs {
		subs = append(subs, s)
	}
	eb.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}

func channelName(ch event.Channel) string {
	return channelPrefix + string(ch)
}

type subscription struct {
	bus    *EventBus
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) Unsubscribe() {
	s.cancel()
	<-s.done

	s.bus.mu.Lock()
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
}

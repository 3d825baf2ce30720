package eventbus

import (
	"context"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/event"
)

// Handler receives store change events. Events name what changed; handlers
// read the current state back from the store.
type Handler func(ctx context.Context, e event.Event)

type Subscription interface {
	// Unsubscribe is safe to call more than once.
	Unsubscribe()
}

// EventBus fans store change events out per channel. The in-process bus
// delivers synchronously; the Postgres bus delivers from a listener goroutine.
type EventBus interface {
	Publish(ctx context.Context, e event.Event) error
	Subscribe(ctx context.Context, ch event.Channel, handler Handler) (Subscription, error)
}

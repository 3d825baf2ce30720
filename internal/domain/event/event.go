package event

import (
	"time"
)

type Type string

const (
	TypeThreadsLoaded    Type = "threads_loaded"
	TypeThreadAdded      Type = "thread_added"
	TypeThreadUpdated    Type = "thread_updated"
	TypeThreadRemoved    Type = "thread_removed"
	TypeActiveChanged    Type = "active_changed"
	TypeMessageAppended  Type = "message_appended"
	TypeMessageReplaced  Type = "message_replaced"
	TypeMessageRemoved   Type = "message_removed"
	TypeStreamingUpdated Type = "streaming_updated"
	TypeSendingBlocked   Type = "sending_blocked"
)

// Channel groups event types so one subscription covers a whole domain.
type Channel string

const (
	ChannelThread  Channel = "thread"
	ChannelMessage Channel = "message"
	ChannelStream  Channel = "stream"
)

var typeToChannel = map[Type]Channel{
	TypeThreadsLoaded:    ChannelThread,
	TypeThreadAdded:      ChannelThread,
	TypeThreadUpdated:    ChannelThread,
	TypeThreadRemoved:    ChannelThread,
	TypeActiveChanged:    ChannelThread,
	TypeMessageAppended:  ChannelMessage,
	TypeMessageReplaced:  ChannelMessage,
	TypeMessageRemoved:   ChannelMessage,
	TypeStreamingUpdated: ChannelStream,
	TypeSendingBlocked:   ChannelStream,
}

// Channels lists every channel, in a stable order.
var Channels = []Channel{ChannelThread, ChannelMessage, ChannelStream}

// ChannelFor returns the domain channel for a given event type.
func ChannelFor(t Type) Channel { return typeToChannel[t] }

// Event carries identifiers only, not full state.
// Subscribers read fresh state from the store.
type Event struct {
	Type      Type      `json:"type"`
	ThreadID  string    `json:"thread_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func New(eventType Type, threadID, messageID string) Event {
	return Event{
		Type:      eventType,
		ThreadID:  threadID,
		MessageID: messageID,
		Timestamp: time.Now().UTC(),
	}
}

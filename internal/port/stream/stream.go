package stream

import (
	"context"
	"errors"

	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
)

// ErrStopped is returned by Recv once Stop has been called.
var ErrStopped = errors.New("stream: stopped")

type Kind string

const (
	// KindChat is a plain completion stream; the engine persists its output.
	KindChat Kind = "chat"
	// KindAssistantRun is an assistant turn; the remote owns its output.
	KindAssistantRun Kind = "assistant_run"
)

type Request struct {
	ThreadID    string
	AssistantID string
	Prompt      string
	History     []domainthread.Message
}

func (r Request) Kind() Kind {
	if r.AssistantID != "" {
		return KindAssistantRun
	}
	return KindChat
}

// Chunk is one increment of a response. MessageID is set when the remote has
// already persisted the message being streamed.
type Chunk struct {
	Delta     string
	MessageID string
}

// Stream yields chunks until Recv returns io.EOF on completion, ErrStopped
// after Stop, or another error on failure. Stop is safe to call more than
// once and from another goroutine.
type Stream interface {
	Recv() (Chunk, error)
	Stop()
}

type Streamer interface {
	Start(ctx context.Context, req Request) (Stream, error)
}

package memory

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
	portstream "github.com/defenseunicorns/leapfrogai-sub001/internal/port/stream"
	portthread "github.com/defenseunicorns/leapfrogai-sub001/internal/port/thread"
)

// Streamer answers every prompt with a canned reply, one word per chunk.
// Assistant runs persist their reply through the remote before the last
// chunk, which carries the new message id.
type Streamer struct {
	remote portthread.Remote
	delay  time.Duration
	reply  func(portstream.Request) string
}

func NewStreamer(remote portthread.Remote, delay time.Duration) *Streamer {
	return &Streamer{remote: remote, delay: delay, reply: EchoReply}
}

// WithReply replaces the reply function.
func (s *Streamer) WithReply(fn func(portstream.Request) string) *Streamer {
	s.reply = fn
	return s
}

func EchoReply(req portstream.Request) string {
	return "You said: " + req.Prompt
}

func (s *Streamer) Start(ctx context.Context, req portstream.Request) (portstream.Stream, error) {
	if req.ThreadID == "" {
		return nil, fmt.Errorf("start stream: empty thread id")
	}
	st := &stream{
		chunks:  make(chan portstream.Chunk),
		stopped: make(chan struct{}),
	}
	go st.produce(ctx, s, req)
	return st, nil
}

type stream struct {
	chunks  chan portstream.Chunk
	stopped chan struct{}
	once    sync.Once

	mu  sync.Mutex
	err error
}

func (st *stream) produce(ctx context.Context, s *Streamer, req portstream.Request) {
	defer close(st.chunks)

	text := s.reply(req)
	words := strings.SplitAfter(text, " ")
	for _, w := range words {
		if w == "" {
			continue
		}
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-st.stopped:
				return
			case <-ctx.Done():
				st.fail(ctx.Err())
				return
			}
		}
		if !st.send(ctx, portstream.Chunk{Delta: w}) {
			return
		}
	}

	if req.Kind() != portstream.KindAssistantRun || s.remote == nil {
		return
	}
	m, err := s.remote.CreateMessage(ctx, portthread.CreateMessageRequest{
		ThreadID:    req.ThreadID,
		Role:        domainthread.RoleAssistant,
		Content:     domainthread.TextContent(text),
		AssistantID: req.AssistantID,
	})
	if err != nil {
		st.fail(fmt.Errorf("persist run output: %w", err))
		return
	}
	st.send(ctx, portstream.Chunk{MessageID: m.ID})
}

func (st *stream) send(ctx context.Context, c portstream.Chunk) bool {
	select {
	case st.chunks <- c:
		return true
	case <-st.stopped:
		return false
	case <-ctx.Done():
		st.fail(ctx.Err())
		return false
	}
}

func (st *stream) fail(err error) {
	st.mu.Lock()
	st.err = err
	st.mu.Unlock()
}

func (st *stream) Recv() (portstream.Chunk, error) {
	select {
	case <-st.stopped:
		return portstream.Chunk{}, portstream.ErrStopped
	case c, ok := <-st.chunks:
		if ok {
			return c, nil
		}
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	select {
	case <-st.stopped:
		return portstream.Chunk{}, portstream.ErrStopped
	default:
	}
	if st.err != nil {
		return portstream.Chunk{}, st.err
	}
	return portstream.Chunk{}, io.EOF
}

func (st *stream) Stop() {
	st.once.Do(func() { close(st.stopped) })
}

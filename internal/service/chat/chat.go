package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/notification"
	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/metrics"
	portnotifier "github.com/defenseunicorns/leapfrogai-sub001/internal/port/notifier"
	portstream "github.com/defenseunicorns/leapfrogai-sub001/internal/port/stream"
	portthread "github.com/defenseunicorns/leapfrogai-sub001/internal/port/thread"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/store"
)

var (
	ErrSendingBlocked = errors.New("sending is blocked")
	ErrEmptyMessage   = errors.New("message content is empty")
)

type Status string

const (
	// StatusInProgress marks an assistant run generating remotely; the
	// remote owns whatever it has produced so far.
	StatusInProgress Status = "in_progress"
	// StatusLoading marks a plain chat stream whose text exists only locally.
	StatusLoading Status = "loading"
)

func statusFor(kind portstream.Kind) Status {
	if kind == portstream.KindAssistantRun {
		return StatusInProgress
	}
	return StatusLoading
}

// StreamInfo describes the response currently streaming into a thread.
type StreamInfo struct {
	Kind   portstream.Kind `json:"kind"`
	Status Status          `json:"status"`
}

type SendRequest struct {
	ThreadID    string
	Content     domainthread.Content
	AssistantID string
	Metadata    map[string]string
}

// Service runs the normal exchange: persist the user message, stream the
// reply through the store's streaming slot, then finalize or clear it.
type Service struct {
	store    *store.Store
	remote   portthread.Remote
	streamer portstream.Streamer
	sink     portnotifier.Sink

	mu     sync.Mutex
	active map[string]*activeStream
}

// activeStream is registered before the streamer starts, so a Stop can land
// before there is a stream to stop. Whichever of Stop and attach runs second
// stops the stream.
type activeStream struct {
	kind     portstream.Kind
	stopOnce sync.Once
	stopped  atomic.Bool
	done     chan struct{}

	mu     sync.Mutex
	stream portstream.Stream
}

func (a *activeStream) info() StreamInfo {
	return StreamInfo{Kind: a.kind, Status: statusFor(a.kind)}
}

// attach hands the started stream over, or stops it if Stop came first.
func (a *activeStream) attach(st portstream.Stream) bool {
	a.mu.Lock()
	stopped := a.stopped.Load()
	if !stopped {
		a.stream = st
	}
	a.mu.Unlock()

	if stopped {
		st.Stop()
	}
	return !stopped
}

// halt marks the stream stopped and returns it if already attached.
func (a *activeStream) halt() portstream.Stream {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped.Store(true)
	return a.stream
}

func NewService(st *store.Store, remote portthread.Remote, streamer portstream.Streamer, sink portnotifier.Sink) *Service {
	return &Service{
		store:    st,
		remote:   remote,
		streamer: streamer,
		sink:     sink,
		active:   make(map[string]*activeStream),
	}
}

// Send runs a full exchange on the caller's goroutine. It fails with
// ErrSendingBlocked while another exchange holds the gate.
func (s *Service) Send(ctx context.Context, req SendRequest) error {
	if req.Content.IsEmpty() {
		return ErrEmptyMessage
	}
	if !s.store.TryBlockSending() {
		return ErrSendingBlocked
	}
	return s.Append(ctx, req)
}

// Start takes the gate and runs the exchange in the background. The exchange
// outlives ctx cancellation; use Stop to end it.
func (s *Service) Start(ctx context.Context, req SendRequest) error {
	if req.Content.IsEmpty() {
		return ErrEmptyMessage
	}
	if !s.store.TryBlockSending() {
		return ErrSendingBlocked
	}
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := s.Append(bg, req); err != nil {
			slog.WarnContext(bg, "chat: exchange ended with error", "thread_id", req.ThreadID, "error", err)
		}
	}()
	return nil
}

// Append runs an exchange for a caller that already holds the sending gate.
// The gate is released, with the store's delay, on every exit path.
// Failures are reported to the sink once and returned.
func (s *Service) Append(ctx context.Context, req SendRequest) error {
	defer s.store.SetSendingBlocked(false)

	sreq, err := s.prepare(ctx, req)
	if err != nil {
		return err
	}
	return s.stream(ctx, sreq, s.launch(sreq))
}

// Resubmit is Append for a caller that must not wait for the reply. The user
// message is created before it returns; the reply streams on in the
// background, detached from ctx, and is already visible to Active and Wait.
// The gate is released when the reply ends, or at once if the user message
// could not be created.
func (s *Service) Resubmit(ctx context.Context, req SendRequest) error {
	bg := context.WithoutCancel(ctx)

	sreq, err := s.prepare(bg, req)
	if err != nil {
		s.store.SetSendingBlocked(false)
		return err
	}

	a := s.launch(sreq)
	go func() {
		defer s.store.SetSendingBlocked(false)
		if err := s.stream(bg, sreq, a); err != nil {
			slog.WarnContext(bg, "chat: resubmitted exchange ended with error", "thread_id", req.ThreadID, "error", err)
		}
	}()
	return nil
}

// prepare persists the user message and builds the stream request for the
// reply.
func (s *Service) prepare(ctx context.Context, req SendRequest) (portstream.Request, error) {
	if _, ok := s.store.Thread(req.ThreadID); !ok {
		s.sink.Notify(ctx, notification.Error(notification.SubtitleSendFailed, req.ThreadID))
		return portstream.Request{}, fmt.Errorf("append to %s: %w", req.ThreadID, store.ErrThreadNotFound)
	}

	provisional := domainthread.NewProvisionalMessage(req.ThreadID, domainthread.RoleUser, req.Content)
	provisional.AssistantID = req.AssistantID
	provisional.Metadata = req.Metadata

	created, err := s.remote.CreateMessage(ctx, portthread.CreateMessageRequest{
		ThreadID:    req.ThreadID,
		Role:        domainthread.RoleUser,
		Content:     req.Content,
		AssistantID: req.AssistantID,
		Metadata:    req.Metadata,
	})
	if err != nil {
		slog.ErrorContext(ctx, "chat: create user message failed", "thread_id", req.ThreadID, "error", err)
		s.sink.Notify(ctx, notification.Error(notification.SubtitleSendFailed, req.ThreadID))
		return portstream.Request{}, fmt.Errorf("create user message: %w", err)
	}
	s.store.AppendMessage(req.ThreadID, domainthread.Persist(provisional, created))

	return portstream.Request{
		ThreadID:    req.ThreadID,
		AssistantID: req.AssistantID,
		Prompt:      req.Content.Text(),
		History:     s.store.SortedMessages(req.ThreadID),
	}, nil
}

// launch puts the empty reply in the streaming slot and registers the stream
// for Active, Stop and Wait.
func (s *Service) launch(req portstream.Request) *activeStream {
	placeholder := domainthread.NewProvisionalMessage(req.ThreadID, domainthread.RoleAssistant, domainthread.TextContent(""))
	placeholder.AssistantID = req.AssistantID
	s.store.SetStreamingMessage(&placeholder)

	a := &activeStream{kind: req.Kind(), done: make(chan struct{})}
	s.register(req.ThreadID, a)
	return a
}

func (s *Service) stream(ctx context.Context, req portstream.Request, a *activeStream) error {
	defer s.unregister(req.ThreadID, a)
	kind := a.kind

	st, err := s.streamer.Start(ctx, req)
	if err != nil {
		if a.stopped.Load() {
			metrics.Streams.WithLabelValues(string(kind), metrics.StreamStopped).Inc()
			return nil
		}
		metrics.Streams.WithLabelValues(string(kind), metrics.StreamFailed).Inc()
		s.store.TakeStreamingMessage(req.ThreadID)
		slog.ErrorContext(ctx, "chat: start stream failed", "thread_id", req.ThreadID, "error", err)
		s.sink.Notify(ctx, notification.Error(notification.SubtitleResponseFailed, req.ThreadID))
		return fmt.Errorf("start stream: %w", err)
	}
	if !a.attach(st) {
		metrics.Streams.WithLabelValues(string(kind), metrics.StreamStopped).Inc()
		return nil
	}

	var remoteID string
	for {
		chunk, err := st.Recv()
		if a.stopped.Load() {
			metrics.Streams.WithLabelValues(string(kind), metrics.StreamStopped).Inc()
			return nil
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			metrics.Streams.WithLabelValues(string(kind), metrics.StreamFailed).Inc()
			s.store.TakeStreamingMessage(req.ThreadID)
			slog.ErrorContext(ctx, "chat: stream failed", "thread_id", req.ThreadID, "error", err)
			s.sink.Notify(ctx, notification.Error(notification.SubtitleResponseFailed, req.ThreadID))
			return fmt.Errorf("receive stream: %w", err)
		}
		if chunk.MessageID != "" {
			remoteID = chunk.MessageID
		}
		s.store.AppendStreamingText(req.ThreadID, chunk.Delta)
	}

	metrics.Streams.WithLabelValues(string(kind), metrics.StreamDone).Inc()
	return s.finalize(ctx, req.ThreadID, kind, remoteID)
}

// finalize moves the streamed reply from the slot into the message list. A
// reply the remote already persisted keeps its id; a plain chat reply is
// persisted here.
func (s *Service) finalize(ctx context.Context, threadID string, kind portstream.Kind, remoteID string) error {
	m, ok := s.store.TakeStreamingMessage(threadID)
	if !ok {
		return nil
	}

	switch {
	case remoteID != "":
		s.store.AppendMessage(threadID, domainthread.Persist(m, domainthread.Message{ID: remoteID}))
		return nil
	case kind == portstream.KindAssistantRun:
		s.store.AppendMessage(threadID, m)
		return nil
	}

	created, err := s.remote.CreateMessage(ctx, portthread.CreateMessageRequest{
		ThreadID:    threadID,
		Role:        domainthread.RoleAssistant,
		Content:     m.Content,
		AssistantID: m.AssistantID,
		Metadata:    m.Metadata,
	})
	if err != nil {
		// The provisional reply stays visible so the text is not lost.
		s.store.AppendMessage(threadID, m)
		slog.ErrorContext(ctx, "chat: persist response failed", "thread_id", threadID, "error", err)
		s.sink.Notify(ctx, notification.Error(notification.SubtitleSaveResponseFailed, threadID))
		return fmt.Errorf("persist response: %w", err)
	}
	s.store.AppendMessage(threadID, domainthread.Persist(m, created))
	return nil
}

// Active reports the stream currently running for threadID.
func (s *Service) Active(threadID string) (StreamInfo, bool) {
	s.mu.Lock()
	a, ok := s.active[threadID]
	s.mu.Unlock()
	if !ok {
		return StreamInfo{}, false
	}
	return a.info(), true
}

// Stop ends the stream of threadID. A plain chat reply keeps its partial
// text as a provisional assistant message; an assistant run's partial text
// is discarded since the remote owns it. The streaming slot is empty when
// Stop returns. Stopping twice is the same as stopping once; the second call
// reports false.
func (s *Service) Stop(ctx context.Context, threadID string) (StreamInfo, bool) {
	s.mu.Lock()
	a, ok := s.active[threadID]
	s.mu.Unlock()
	if !ok {
		s.store.TakeStreamingMessage(threadID)
		return StreamInfo{}, false
	}

	stoppedNow := false
	a.stopOnce.Do(func() {
		stoppedNow = true
		if st := a.halt(); st != nil {
			st.Stop()
		}

		m, ok := s.store.TakeStreamingMessage(threadID)
		if ok && a.kind == portstream.KindChat && !m.Content.IsEmpty() {
			s.store.AppendMessage(threadID, m)
		}
		slog.InfoContext(ctx, "chat: stream stopped", "thread_id", threadID, "kind", a.kind)
	})
	return a.info(), stoppedNow
}

// Wait blocks until the stream of threadID ends or ctx is done.
func (s *Service) Wait(ctx context.Context, threadID string) error {
	s.mu.Lock()
	a, ok := s.active[threadID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) register(threadID string, a *activeStream) {
	s.mu.Lock()
	s.active[threadID] = a
	s.mu.Unlock()
}

func (s *Service) unregister(threadID string, a *activeStream) {
	s.mu.Lock()
	if s.active[threadID] == a {
		delete(s.active, threadID)
	}
	s.mu.Unlock()
	close(a.done)
}

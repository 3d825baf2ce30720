package chat_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/adapter/memory"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/notification"
	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/mocks"
	portstream "github.com/defenseunicorns/leapfrogai-sub001/internal/port/stream"
	portthread "github.com/defenseunicorns/leapfrogai-sub001/internal/port/thread"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/chat"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/store"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/testutil"
)

const threadID = "thread-1"

type fixture struct {
	svc      *chat.Service
	store    *store.Store
	remote   *mocks.MockRemote
	streamer *mocks.MockStreamer
	sink     *testutil.CaptureSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		store:    store.New(memory.NewEventBus(), memory.ImmediateScheduler{}, 0),
		remote:   mocks.NewMockRemote(ctrl),
		streamer: mocks.NewMockStreamer(ctrl),
		sink:     &testutil.CaptureSink{},
	}
	f.store.AddThread(domainthread.Thread{ID: threadID})
	f.svc = chat.NewService(f.store, f.remote, f.streamer, f.sink)
	return f
}

func persisted(id string, role domainthread.Role, text string) domainthread.Message {
	return domainthread.Message{
		ID:        id,
		ThreadID:  threadID,
		Role:      role,
		Content:   domainthread.TextContent(text),
		CreatedAt: domainthread.Epoch(1700000000),
		State:     domainthread.StatePersisted,
	}
}

// scriptStream replays chunks then ends with end.
type scriptStream struct {
	mu     sync.Mutex
	chunks []portstream.Chunk
	end    error
}

func (s *scriptStream) Recv() (portstream.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chunks) == 0 {
		return portstream.Chunk{}, s.end
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func (s *scriptStream) Stop() {}

// gatedStream hands out chunks as the test pushes them and blocks otherwise.
// Closing chunks ends the stream.
type gatedStream struct {
	chunks  chan portstream.Chunk
	stopped chan struct{}
	once    sync.Once
	stops   int
	mu      sync.Mutex
}

func newGatedStream() *gatedStream {
	return &gatedStream{chunks: make(chan portstream.Chunk), stopped: make(chan struct{})}
}

func (g *gatedStream) Recv() (portstream.Chunk, error) {
	select {
	case c, ok := <-g.chunks:
		if !ok {
			return portstream.Chunk{}, io.EOF
		}
		return c, nil
	case <-g.stopped:
		return portstream.Chunk{}, portstream.ErrStopped
	}
}

func (g *gatedStream) Stop() {
	g.mu.Lock()
	g.stops++
	g.mu.Unlock()
	g.once.Do(func() { close(g.stopped) })
}

func ids(msgs []domainthread.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

// ── Send ─────────────────────────────────────────────────────────────────────

func TestSend_FullExchange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gomock.InOrder(
		f.remote.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req portthread.CreateMessageRequest) (domainthread.Message, error) {
				assert.Equal(t, domainthread.RoleUser, req.Role)
				assert.Equal(t, "hello", req.Content.Text())
				return persisted("msg_user", domainthread.RoleUser, "hello"), nil
			}),
		f.streamer.EXPECT().Start(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req portstream.Request) (portstream.Stream, error) {
				assert.Equal(t, "hello", req.Prompt)
				assert.Equal(t, []string{"msg_user"}, ids(req.History))
				return &scriptStream{chunks: []portstream.Chunk{{Delta: "Hi "}, {Delta: "there"}}, end: io.EOF}, nil
			}),
		f.remote.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, req portthread.CreateMessageRequest) (domainthread.Message, error) {
				assert.Equal(t, domainthread.RoleAssistant, req.Role)
				assert.Equal(t, "Hi there", req.Content.Text())
				return persisted("msg_reply", domainthread.RoleAssistant, "Hi there"), nil
			}),
	)

	err := f.svc.Send(ctx, chat.SendRequest{ThreadID: threadID, Content: domainthread.TextContent("hello")})
	require.NoError(t, err)

	msgs := f.store.SortedMessages(threadID)
	assert.Equal(t, []string{"msg_user", "msg_reply"}, ids(msgs))
	assert.Equal(t, "Hi there", msgs[1].Content.Text())
	_, streaming := f.store.StreamingMessage()
	assert.False(t, streaming)
	assert.False(t, f.store.SendingBlocked())
	assert.Zero(t, f.sink.Len())
}

func TestSend_RejectedWhileBlocked(t *testing.T) {
	f := newFixture(t)
	f.store.SetSendingBlocked(true)

	err := f.svc.Send(context.Background(), chat.SendRequest{ThreadID: threadID, Content: domainthread.TextContent("x")})
	assert.ErrorIs(t, err, chat.ErrSendingBlocked)
	assert.True(t, f.store.SendingBlocked(), "a refused send leaves the gate alone")
}

func TestSend_EmptyContent(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Send(context.Background(), chat.SendRequest{ThreadID: threadID})
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
	assert.False(t, f.store.SendingBlocked())
}

func TestSend_UnknownThreadReleasesGateAndNotifies(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Send(context.Background(), chat.SendRequest{ThreadID: "nope", Content: domainthread.TextContent("x")})
	assert.ErrorIs(t, err, store.ErrThreadNotFound)
	assert.False(t, f.store.SendingBlocked())
	require.Equal(t, 1, f.sink.Len())
	assert.Equal(t, notification.SubtitleSendFailed, f.sink.All()[0].Subtitle)
}

func TestSend_Failures(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(f *fixture)
		subtitle string
		wantIDs  []string
	}{
		{
			name: "create user message fails",
			setup: func(f *fixture) {
				f.remote.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(domainthread.Message{}, errors.New("boom"))
			},
			subtitle: notification.SubtitleSendFailed,
			wantIDs:  []string{},
		},
		{
			name: "stream start fails",
			setup: func(f *fixture) {
				f.remote.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(persisted("msg_user", domainthread.RoleUser, "x"), nil)
				f.streamer.EXPECT().Start(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))
			},
			subtitle: notification.SubtitleResponseFailed,
			wantIDs:  []string{"msg_user"},
		},
		{
			name: "stream errors mid-way",
			setup: func(f *fixture) {
				f.remote.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(persisted("msg_user", domainthread.RoleUser, "x"), nil)
				f.streamer.EXPECT().Start(gomock.Any(), gomock.Any()).
					Return(&scriptStream{chunks: []portstream.Chunk{{Delta: "part"}}, end: errors.New("reset")}, nil)
			},
			subtitle: notification.SubtitleResponseFailed,
			wantIDs:  []string{"msg_user"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)

			err := f.svc.Send(context.Background(), chat.SendRequest{ThreadID: threadID, Content: domainthread.TextContent("x")})
			assert.Error(t, err)

			require.Equal(t, 1, f.sink.Len())
			assert.Equal(t, tt.subtitle, f.sink.All()[0].Subtitle)
			assert.Equal(t, tt.wantIDs, ids(f.store.Messages(threadID)))
			_, streaming := f.store.StreamingMessage()
			assert.False(t, streaming)
			assert.False(t, f.store.SendingBlocked())
		})
	}
}

func TestSend_PersistResponseFailureKeepsProvisionalReply(t *testing.T) {
	f := newFixture(t)

	gomock.InOrder(
		f.remote.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(persisted("msg_user", domainthread.RoleUser, "x"), nil),
		f.streamer.EXPECT().Start(gomock.Any(), gomock.Any()).
			Return(&scriptStream{chunks: []portstream.Chunk{{Delta: "reply"}}, end: io.EOF}, nil),
		f.remote.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(domainthread.Message{}, errors.New("boom")),
	)

	err := f.svc.Send(context.Background(), chat.SendRequest{ThreadID: threadID, Content: domainthread.TextContent("x")})
	assert.Error(t, err)

	msgs := f.store.Messages(threadID)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsProvisional())
	assert.Equal(t, "reply", msgs[1].Content.Text())
	require.Equal(t, 1, f.sink.Len())
	assert.Equal(t, notification.SubtitleSaveResponseFailed, f.sink.All()[0].Subtitle)
}

func TestSend_RemoteOwnedReplyKeepsItsID(t *testing.T) {
	f := newFixture(t)

	f.remote.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(persisted("msg_user", domainthread.RoleUser, "x"), nil)
	f.streamer.EXPECT().Start(gomock.Any(), gomock.Any()).
		Return(&scriptStream{chunks: []portstream.Chunk{{Delta: "run output"}, {MessageID: "msg_run"}}, end: io.EOF}, nil)

	err := f.svc.Send(context.Background(), chat.SendRequest{ThreadID: threadID, AssistantID: "asst", Content: domainthread.TextContent("x")})
	require.NoError(t, err)

	msgs := f.store.Messages(threadID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "msg_run", msgs[1].ID)
	assert.Equal(t, "asst", msgs[1].AssistantID)
	assert.Equal(t, domainthread.StatePersisted, msgs[1].State)
}

// ── Stop ─────────────────────────────────────────────────────────────────────

func startGated(t *testing.T, f *fixture, assistantID string) *gatedStream {
	t.Helper()
	g := newGatedStream()
	f.remote.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(persisted("msg_user", domainthread.RoleUser, "x"), nil)
	f.streamer.EXPECT().Start(gomock.Any(), gomock.Any()).Return(g, nil)

	require.NoError(t, f.svc.Start(context.Background(), chat.SendRequest{
		ThreadID: threadID, AssistantID: assistantID, Content: domainthread.TextContent("x"),
	}))
	require.Eventually(t, func() bool {
		_, ok := f.svc.Active(threadID)
		return ok
	}, time.Second, time.Millisecond)
	return g
}

func TestStop_ChatStreamKeepsPartialText(t *testing.T) {
	f := newFixture(t)
	g := startGated(t, f, "")

	info, _ := f.svc.Active(threadID)
	assert.Equal(t, portstream.KindChat, info.Kind)
	assert.Equal(t, chat.StatusLoading, info.Status)

	g.chunks <- portstream.Chunk{Delta: "partial"}
	require.Eventually(t, func() bool {
		m, ok := f.store.StreamingMessage()
		return ok && m.Content.Text() == "partial"
	}, time.Second, time.Millisecond)

	_, stopped := f.svc.Stop(context.Background(), threadID)
	assert.True(t, stopped)
	_, again := f.svc.Stop(context.Background(), threadID)
	assert.False(t, again, "second stop is a no-op")

	_, streaming := f.store.StreamingMessage()
	assert.False(t, streaming)
	msgs := f.store.Messages(threadID)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].IsProvisional())
	assert.Equal(t, domainthread.RoleAssistant, msgs[1].Role)
	assert.Equal(t, "partial", msgs[1].Content.Text())

	require.NoError(t, f.svc.Wait(context.Background(), threadID))
	require.Eventually(t, func() bool { return !f.store.SendingBlocked() }, time.Second, time.Millisecond)
	assert.Zero(t, f.sink.Len())
}

func TestStop_AssistantRunDiscardsPartialText(t *testing.T) {
	f := newFixture(t)
	g := startGated(t, f, "asst")

	info, _ := f.svc.Active(threadID)
	assert.Equal(t, portstream.KindAssistantRun, info.Kind)
	assert.Equal(t, chat.StatusInProgress, info.Status)

	g.chunks <- portstream.Chunk{Delta: "thinking"}
	require.Eventually(t, func() bool {
		m, ok := f.store.StreamingMessage()
		return ok && m.Content.Text() == "thinking"
	}, time.Second, time.Millisecond)

	f.svc.Stop(context.Background(), threadID)

	_, streaming := f.store.StreamingMessage()
	assert.False(t, streaming)
	assert.Equal(t, []string{"msg_user"}, ids(f.store.Messages(threadID)))
}

func TestStop_WithoutStreamClearsSlot(t *testing.T) {
	f := newFixture(t)
	f.store.SetStreamingMessage(&domainthread.Message{ID: "orphan", ThreadID: threadID})

	_, stopped := f.svc.Stop(context.Background(), threadID)
	assert.False(t, stopped)
	_, streaming := f.store.StreamingMessage()
	assert.False(t, streaming)
}

func TestStart_RejectedWhileBlocked(t *testing.T) {
	f := newFixture(t)
	f.store.SetSendingBlocked(true)
	err := f.svc.Start(context.Background(), chat.SendRequest{ThreadID: threadID, Content: domainthread.TextContent("x")})
	assert.ErrorIs(t, err, chat.ErrSendingBlocked)
}

func TestActive_StatusBeforeFirstChunk(t *testing.T) {
	tests := []struct {
		name        string
		assistantID string
		wantKind    portstream.Kind
		wantStatus  chat.Status
	}{
		{name: "chat stream is loading", wantKind: portstream.KindChat, wantStatus: chat.StatusLoading},
		{name: "assistant run is in progress", assistantID: "asst", wantKind: portstream.KindAssistantRun, wantStatus: chat.StatusInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			g := startGated(t, f, tt.assistantID)

			info, ok := f.svc.Active(threadID)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, info.Kind)
			assert.Equal(t, tt.wantStatus, info.Status)

			g.Stop()
			require.NoError(t, f.svc.Wait(context.Background(), threadID))
		})
	}
}

// ── Resubmit ─────────────────────────────────────────────────────────────────

func TestResubmit_ReturnsBeforeReplyAndIgnoresCallerCancel(t *testing.T) {
	f := newFixture(t)
	g := newGatedStream()
	f.remote.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(persisted("msg_user", domainthread.RoleUser, "x"), nil)
	f.streamer.EXPECT().Start(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ portstream.Request) (portstream.Stream, error) {
			assert.NoError(t, ctx.Err())
			return g, nil
		})
	f.remote.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req portthread.CreateMessageRequest) (domainthread.Message, error) {
			assert.NoError(t, ctx.Err(), "reply is persisted on a context the caller cannot cancel")
			return persisted("msg_reply", domainthread.RoleAssistant, req.Content.Text()), nil
		})

	require.True(t, f.store.TryBlockSending())
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.svc.Resubmit(ctx, chat.SendRequest{ThreadID: threadID, Content: domainthread.TextContent("x")}))
	cancel()

	_, ok := f.svc.Active(threadID)
	assert.True(t, ok, "stream is registered when Resubmit returns")
	assert.True(t, f.store.SendingBlocked())

	g.chunks <- portstream.Chunk{Delta: "late reply"}
	close(g.chunks)
	require.NoError(t, f.svc.Wait(context.Background(), threadID))

	assert.Equal(t, []string{"msg_user", "msg_reply"}, ids(f.store.SortedMessages(threadID)))
	assert.Eventually(t, func() bool { return !f.store.SendingBlocked() }, time.Second, time.Millisecond)
	assert.Zero(t, f.sink.Len())
}

func TestResubmit_FailuresReleaseGateAtOnce(t *testing.T) {
	tests := []struct {
		name     string
		threadID string
		setup    func(f *fixture)
		wantErr  error
	}{
		{
			name:     "thread gone",
			threadID: "deleted-meanwhile",
			setup:    func(*fixture) {},
			wantErr:  store.ErrThreadNotFound,
		},
		{
			name:     "create user message fails",
			threadID: threadID,
			setup: func(f *fixture) {
				f.remote.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(domainthread.Message{}, errors.New("boom"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f)
			require.True(t, f.store.TryBlockSending())

			err := f.svc.Resubmit(context.Background(), chat.SendRequest{ThreadID: tt.threadID, Content: domainthread.TextContent("x")})
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}

			assert.False(t, f.store.SendingBlocked())
			_, ok := f.svc.Active(tt.threadID)
			assert.False(t, ok)
			require.Equal(t, 1, f.sink.Len())
			assert.Equal(t, notification.SubtitleSendFailed, f.sink.All()[0].Subtitle)
		})
	}
}

func TestStop_BeforeStreamerStarts(t *testing.T) {
	f := newFixture(t)
	g := newGatedStream()
	release := make(chan struct{})
	f.remote.EXPECT().CreateMessage(gomock.Any(), gomock.Any()).Return(persisted("msg_user", domainthread.RoleUser, "x"), nil)
	f.streamer.EXPECT().Start(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, portstream.Request) (portstream.Stream, error) {
			<-release
			return g, nil
		})

	require.True(t, f.store.TryBlockSending())
	require.NoError(t, f.svc.Resubmit(context.Background(), chat.SendRequest{ThreadID: threadID, Content: domainthread.TextContent("x")}))

	_, stopped := f.svc.Stop(context.Background(), threadID)
	require.True(t, stopped)
	close(release)
	require.NoError(t, f.svc.Wait(context.Background(), threadID))

	g.mu.Lock()
	assert.Equal(t, 1, g.stops, "the late stream is stopped exactly once")
	g.mu.Unlock()
	_, streaming := f.store.StreamingMessage()
	assert.False(t, streaming)
	assert.Equal(t, []string{"msg_user"}, ids(f.store.Messages(threadID)))
	assert.Zero(t, f.sink.Len())
}

package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	mcpmcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/adapter/memory"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/notification"
	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
	portthread "github.com/defenseunicorns/leapfrogai-sub001/internal/port/thread"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/chat"
	protocolsvc "github.com/defenseunicorns/leapfrogai-sub001/internal/service/protocol"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/store"
	threadsvc "github.com/defenseunicorns/leapfrogai-sub001/internal/service/thread"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/testutil"
)

// ── helpers ───────────────────────────────────────────────────────────────────

type toolsEnv struct {
	deps   Deps
	remote *memory.Remote
	sink   *testutil.CaptureSink
}

func newToolsEnv(t *testing.T) toolsEnv {
	t.Helper()
	remote := memory.NewRemote().WithClock(tickingClock())
	st := store.New(memory.NewEventBus(), memory.ImmediateScheduler{}, 0)
	sink := &testutil.CaptureSink{}
	chatSvc := chat.NewService(st, remote, memory.NewStreamer(remote, 0), sink)
	return toolsEnv{
		deps: Deps{
			Store:     st,
			Threads:   threadsvc.NewService(st, remote, chatSvc, sink),
			Chat:      chatSvc,
			Protocols: protocolsvc.NewService(st, remote, chatSvc, chatSvc, sink),
		},
		remote: remote,
		sink:   sink,
	}
}

// seed stores a thread holding one persisted prompt and reply.
func (e toolsEnv) seed(t *testing.T) domainthread.Thread {
	t.Helper()
	ctx := context.Background()
	th, err := e.remote.CreateThread(ctx, "seeded")
	require.NoError(t, err)
	for _, role := range []domainthread.Role{domainthread.RoleUser, domainthread.RoleAssistant} {
		_, err := e.remote.CreateMessage(ctx, portthread.CreateMessageRequest{
			ThreadID: th.ID, Role: role, Content: domainthread.TextContent("seeded " + string(role)),
		})
		require.NoError(t, err)
	}
	th.Messages, err = e.remote.ListMessages(ctx, th.ID)
	require.NoError(t, err)
	e.deps.Store.AddThread(th)
	return th
}

// tickingClock advances one second per reading so every remote message gets
// its own timestamp.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := time.Unix(1700000000, 0)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func makeReq(args map[string]any) mcpmcp.CallToolRequest {
	var req mcpmcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(r *mcpmcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	b, _ := json.Marshal(r.Content[0])
	var m map[string]interface{}
	json.Unmarshal(b, &m) //nolint:errcheck
	if t, ok := m["text"].(string); ok {
		return t
	}
	return ""
}

func call(t *testing.T, h func(context.Context, mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error), args map[string]any) string {
	t.Helper()
	r, err := h(context.Background(), makeReq(args))
	require.NoError(t, err)
	return resultText(r)
}

// ── list_threads / list_messages ──────────────────────────────────────────────

func TestListThreadsHandler(t *testing.T) {
	e := newToolsEnv(t)
	th := e.seed(t)

	var got []threadSummary
	require.NoError(t, json.Unmarshal([]byte(call(t, listThreadsHandler(e.deps), nil)), &got))
	require.Len(t, got, 1)
	assert.Equal(t, threadSummary{ID: th.ID, Label: "seeded", Messages: 2}, got[0])
}

func TestListMessagesHandler(t *testing.T) {
	tests := []struct {
		name         string
		threadID     func(th domainthread.Thread) string
		wantContains string
		wantRoles    []string
	}{
		{
			name:      "returns messages in display order",
			threadID:  func(th domainthread.Thread) string { return th.ID },
			wantRoles: []string{"user", "assistant"},
		},
		{
			name:         "unknown thread returns error text",
			threadID:     func(domainthread.Thread) string { return "nope" },
			wantContains: "error: thread not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newToolsEnv(t)
			th := e.seed(t)

			text := call(t, listMessagesHandler(e.deps), map[string]any{"thread_id": tt.threadID(th)})
			if tt.wantContains != "" {
				assert.Contains(t, text, tt.wantContains)
				return
			}
			var got []messageView
			require.NoError(t, json.Unmarshal([]byte(text), &got))
			roles := make([]string, len(got))
			for i, m := range got {
				roles[i] = m.Role
				assert.True(t, m.Saved)
			}
			assert.Equal(t, tt.wantRoles, roles)
		})
	}
}

// ── send_message ──────────────────────────────────────────────────────────────

func TestSendMessageHandler(t *testing.T) {
	t.Run("into an existing thread waits for the reply", func(t *testing.T) {
		e := newToolsEnv(t)
		th := e.seed(t)

		text := call(t, sendMessageHandler(e.deps), map[string]any{"thread_id": th.ID, "content": "hello there"})

		var got struct {
			ThreadID string        `json:"thread_id"`
			Messages []messageView `json:"messages"`
		}
		require.NoError(t, json.Unmarshal([]byte(text), &got))
		assert.Equal(t, th.ID, got.ThreadID)
		require.Len(t, got.Messages, 4)
		assert.Equal(t, "You said: hello there", got.Messages[3].Text)
		assert.False(t, e.deps.Store.SendingBlocked())
	})

	t.Run("without thread_id creates a labelled thread", func(t *testing.T) {
		e := newToolsEnv(t)

		text := call(t, sendMessageHandler(e.deps), map[string]any{"content": "plan the offsite"})

		threads := e.deps.Store.Threads()
		require.Len(t, threads, 1)
		assert.Equal(t, "plan the offsite", threads[0].Label)
		assert.Contains(t, text, threads[0].ID)
		assert.Len(t, e.deps.Store.Messages(threads[0].ID), 2)
	})

	t.Run("empty content returns error text", func(t *testing.T) {
		e := newToolsEnv(t)
		text := call(t, sendMessageHandler(e.deps), map[string]any{"content": ""})
		assert.Contains(t, text, "error: content must not be empty")
		assert.Empty(t, e.deps.Store.Threads())
	})

	t.Run("blocked gate returns error text and creates nothing", func(t *testing.T) {
		e := newToolsEnv(t)
		e.deps.Store.SetSendingBlocked(true)

		text := call(t, sendMessageHandler(e.deps), map[string]any{"content": "hi"})
		assert.Contains(t, text, "error: "+chat.ErrSendingBlocked.Error())
		assert.Empty(t, e.deps.Store.Threads())
	})

	t.Run("unknown thread returns error text", func(t *testing.T) {
		e := newToolsEnv(t)
		text := call(t, sendMessageHandler(e.deps), map[string]any{"thread_id": "nope", "content": "hi"})
		assert.Contains(t, text, "error:")
	})
}

// ── protocol tools ────────────────────────────────────────────────────────────

func TestEditMessageHandler(t *testing.T) {
	e := newToolsEnv(t)
	th := e.seed(t)
	userID := e.deps.Store.SortedMessages(th.ID)[0].ID

	text := call(t, editMessageHandler(e.deps), map[string]any{
		"thread_id": th.ID, "message_id": userID, "content": "edited",
	})
	assert.Contains(t, text, `"result":"ok"`)

	msgs := e.deps.Store.SortedMessages(th.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "edited", msgs[0].Content.Text())
	assert.Equal(t, "You said: edited", msgs[1].Content.Text())
}

func TestEditMessageHandler_NotEditable(t *testing.T) {
	e := newToolsEnv(t)
	th := e.seed(t)
	replyID := e.deps.Store.SortedMessages(th.ID)[1].ID

	text := call(t, editMessageHandler(e.deps), map[string]any{
		"thread_id": th.ID, "message_id": replyID, "content": "edited",
	})
	assert.Contains(t, text, `"error":"`+protocolsvc.ErrNotEditable.Error())
	assert.Len(t, e.deps.Store.Messages(th.ID), 2)
}

func TestRegenerateHandler(t *testing.T) {
	e := newToolsEnv(t)
	th := e.seed(t)

	text := call(t, regenerateHandler(e.deps), map[string]any{"thread_id": th.ID})
	assert.Contains(t, text, `"result":"ok"`)

	msgs := e.deps.Store.SortedMessages(th.ID)
	require.Len(t, msgs, 2)
	assert.Equal(t, "You said: seeded user", msgs[1].Content.Text())
}

func TestStopHandler(t *testing.T) {
	t.Run("idle thread still reports cancellation once", func(t *testing.T) {
		e := newToolsEnv(t)
		th := e.seed(t)

		text := call(t, stopHandler(e.deps), map[string]any{"thread_id": th.ID})
		assert.Contains(t, text, `"protocol":"stop_and_save"`)
		assert.Equal(t, 1, e.sink.Len())
		assert.Equal(t, notification.TitleResponseCanceled, e.sink.All()[0].Title)
	})

	t.Run("unknown thread returns error text", func(t *testing.T) {
		e := newToolsEnv(t)
		text := call(t, stopHandler(e.deps), map[string]any{"thread_id": "nope"})
		assert.Contains(t, text, "error: "+store.ErrThreadNotFound.Error())
		assert.Zero(t, e.sink.Len())
	})
}

// ── toParams ──────────────────────────────────────────────────────────────────

func TestToParams(t *testing.T) {
	n := notification.Error(notification.SubtitleSendFailed, "thread-1")
	params, err := toParams(n)
	require.NoError(t, err)
	assert.Equal(t, "error", params["kind"])
	assert.Equal(t, notification.SubtitleSendFailed, params["subtitle"])
	assert.Equal(t, "thread-1", params["thread_id"])

	params, err = toParams([]string{"a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, params["data"])
}

package thread_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/adapter/memory"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/notification"
	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/mocks"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/chat"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/store"
	threadsvc "github.com/defenseunicorns/leapfrogai-sub001/internal/service/thread"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/testutil"
)

type fakeStarter struct {
	reqs []chat.SendRequest
	err  error
}

func (f *fakeStarter) Start(_ context.Context, req chat.SendRequest) error {
	f.reqs = append(f.reqs, req)
	return f.err
}

type fixture struct {
	svc     *threadsvc.Service
	store   *store.Store
	remote  *mocks.MockRemote
	starter *fakeStarter
	sink    *testutil.CaptureSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		store:   store.New(memory.NewEventBus(), memory.ImmediateScheduler{}, 0),
		remote:  mocks.NewMockRemote(ctrl),
		starter: &fakeStarter{},
		sink:    &testutil.CaptureSink{},
	}
	f.svc = threadsvc.NewService(f.store, f.remote, f.starter, f.sink)
	return f
}

// ── Load ──────────────────────────────────────────────────────────────────────

func TestLoad_FetchesThreadsAndSortedMessages(t *testing.T) {
	f := newFixture(t)
	f.remote.EXPECT().ListThreads(gomock.Any()).Return([]domainthread.Thread{{ID: "t1"}, {ID: "t2"}}, nil)
	f.remote.EXPECT().ListMessages(gomock.Any(), "t1").Return([]domainthread.Message{
		{ID: "reply", Role: domainthread.RoleAssistant, CreatedAt: domainthread.Epoch(100)},
		{ID: "prompt", Role: domainthread.RoleUser, CreatedAt: domainthread.Epoch(100)},
	}, nil)
	f.remote.EXPECT().ListMessages(gomock.Any(), "t2").Return(nil, nil)

	require.NoError(t, f.svc.Load(context.Background()))

	threads := f.store.Threads()
	require.Len(t, threads, 2)
	require.Len(t, threads[0].Messages, 2)
	assert.Equal(t, "prompt", threads[0].Messages[0].ID)
	assert.Zero(t, f.sink.Len())
}

func TestLoad_FailureNotifiesAndKeepsState(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fixture)
	}{
		{
			name: "list threads fails",
			setup: func(f *fixture) {
				f.remote.EXPECT().ListThreads(gomock.Any()).Return(nil, errors.New("down"))
			},
		},
		{
			name: "list messages fails",
			setup: func(f *fixture) {
				f.remote.EXPECT().ListThreads(gomock.Any()).Return([]domainthread.Thread{{ID: "t1"}}, nil)
				f.remote.EXPECT().ListMessages(gomock.Any(), "t1").Return(nil, errors.New("down"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.AddThread(domainthread.Thread{ID: "existing"})
			tt.setup(f)

			assert.Error(t, f.svc.Load(context.Background()))
			require.Equal(t, 1, f.sink.Len())
			assert.Equal(t, notification.SubtitleLoadThreadsFailed, f.sink.All()[0].Subtitle)
			require.Len(t, f.store.Threads(), 1)
		})
	}
}

func TestLoad_UnsupportedKeepsState(t *testing.T) {
	f := newFixture(t)
	f.store.AddThread(domainthread.Thread{ID: "existing"})
	f.remote.EXPECT().ListThreads(gomock.Any()).Return(nil, fmt.Errorf("list threads: %w", errors.ErrUnsupported))

	require.NoError(t, f.svc.Load(context.Background()))
	assert.Len(t, f.store.Threads(), 1)
	assert.Zero(t, f.sink.Len())
}

// ── Create / Rename / Delete ──────────────────────────────────────────────────

func TestCreate(t *testing.T) {
	f := newFixture(t)
	f.remote.EXPECT().CreateThread(gomock.Any(), "hello").Return(domainthread.Thread{ID: "t1", Label: "hello"}, nil)

	got, err := f.svc.Create(context.Background(), "  hello ")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
	assert.Equal(t, "t1", f.store.ActiveThread())
	_, ok := f.store.Thread("t1")
	assert.True(t, ok)
}

func TestCreate_Error(t *testing.T) {
	f := newFixture(t)
	f.remote.EXPECT().CreateThread(gomock.Any(), gomock.Any()).Return(domainthread.Thread{}, errors.New("boom"))

	_, err := f.svc.Create(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create thread")
	assert.Empty(t, f.store.Threads())
	require.Equal(t, 1, f.sink.Len())
	assert.Equal(t, notification.SubtitleCreateThreadFailed, f.sink.All()[0].Subtitle)
}

func TestRename(t *testing.T) {
	tests := []struct {
		name      string
		id        string
		label     string
		remoteErr error
		wantErr   error
		wantLabel string
		notified  int
	}{
		{name: "success", id: "t1", label: "new", wantLabel: "new"},
		{name: "empty label", id: "t1", label: "  ", wantErr: threadsvc.ErrEmptyLabel, wantLabel: "old"},
		{name: "unknown thread", id: "nope", label: "new", wantErr: store.ErrThreadNotFound, wantLabel: "old"},
		{name: "remote failure", id: "t1", label: "new", remoteErr: errors.New("boom"), wantLabel: "old", notified: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.store.AddThread(domainthread.Thread{ID: "t1", Label: "old"})
			if tt.wantErr == nil {
				f.remote.EXPECT().UpdateThreadLabel(gomock.Any(), tt.id, tt.label).Return(tt.remoteErr)
			}

			err := f.svc.Rename(context.Background(), tt.id, tt.label)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else if tt.remoteErr != nil {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}

			th, _ := f.store.Thread("t1")
			assert.Equal(t, tt.wantLabel, th.Label)
			assert.Equal(t, tt.notified, f.sink.Len())
		})
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	f.store.AddThread(domainthread.Thread{ID: "t1"})
	f.store.SetActiveThread("t1")
	f.remote.EXPECT().DeleteThread(gomock.Any(), "t1").Return(nil)

	require.NoError(t, f.svc.Delete(context.Background(), "t1"))
	assert.Empty(t, f.store.Threads())
	assert.Empty(t, f.store.ActiveThread())
}

func TestDelete_RemoteFailureKeepsThread(t *testing.T) {
	f := newFixture(t)
	f.store.AddThread(domainthread.Thread{ID: "t1"})
	f.remote.EXPECT().DeleteThread(gomock.Any(), "t1").Return(errors.New("boom"))

	assert.Error(t, f.svc.Delete(context.Background(), "t1"))
	assert.Len(t, f.store.Threads(), 1)
	require.Equal(t, 1, f.sink.Len())
	assert.Equal(t, notification.SubtitleDeleteThreadFailed, f.sink.All()[0].Subtitle)
}

func TestSelect(t *testing.T) {
	f := newFixture(t)
	f.store.AddThread(domainthread.Thread{ID: "t1"})

	require.NoError(t, f.svc.Select("t1"))
	assert.Equal(t, "t1", f.store.ActiveThread())
	assert.ErrorIs(t, f.svc.Select("nope"), store.ErrThreadNotFound)
}

// ── SendNew ───────────────────────────────────────────────────────────────────

func TestSendNew_LabelsFromPrompt(t *testing.T) {
	f := newFixture(t)
	prompt := "What is the airspeed velocity of an unladen swallow?"
	f.remote.EXPECT().CreateThread(gomock.Any(), "What is the airspeed velocity").
		Return(domainthread.Thread{ID: "t1", Label: "What is the airspeed velocity"}, nil)

	got, err := f.svc.SendNew(context.Background(), domainthread.TextContent(prompt), "asst")
	require.NoError(t, err)
	assert.Equal(t, "t1", got.ID)
	require.Len(t, f.starter.reqs, 1)
	assert.Equal(t, "t1", f.starter.reqs[0].ThreadID)
	assert.Equal(t, "asst", f.starter.reqs[0].AssistantID)
}

func TestSendNew_BlockedCreatesNothing(t *testing.T) {
	f := newFixture(t)
	f.store.SetSendingBlocked(true)

	_, err := f.svc.SendNew(context.Background(), domainthread.TextContent("x"), "")
	assert.ErrorIs(t, err, chat.ErrSendingBlocked)
	assert.Empty(t, f.store.Threads())
}

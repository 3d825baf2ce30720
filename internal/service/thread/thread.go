package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/notification"
	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
	portnotifier "github.com/defenseunicorns/leapfrogai-sub001/internal/port/notifier"
	portthread "github.com/defenseunicorns/leapfrogai-sub001/internal/port/thread"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/chat"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/store"
)

var ErrEmptyLabel = errors.New("thread label is empty")

// Starter begins an exchange in the background.
type Starter interface {
	Start(ctx context.Context, req chat.SendRequest) error
}

// Service manages the thread collection: the remote call always goes first
// and the store only changes once it succeeds.
type Service struct {
	store   *store.Store
	remote  portthread.Remote
	starter Starter
	sink    portnotifier.Sink
}

func NewService(st *store.Store, remote portthread.Remote, starter Starter, sink portnotifier.Sink) *Service {
	return &Service{store: st, remote: remote, starter: starter, sink: sink}
}

// Load replaces the store's threads with the remote's. Backends that cannot
// enumerate threads leave the store as it is.
func (s *Service) Load(ctx context.Context) error {
	threads, err := s.remote.ListThreads(ctx)
	if errors.Is(err, errors.ErrUnsupported) {
		slog.InfoContext(ctx, "thread: remote cannot list threads, keeping local state")
		return nil
	}
	if err != nil {
		return s.loadFailed(ctx, fmt.Errorf("list threads: %w", err))
	}

	for i := range threads {
		msgs, err := s.remote.ListMessages(ctx, threads[i].ID)
		if err != nil {
			return s.loadFailed(ctx, fmt.Errorf("list messages of %s: %w", threads[i].ID, err))
		}
		threads[i].Messages = domainthread.Sort(msgs)
	}

	s.store.SetThreads(threads)
	return nil
}

func (s *Service) loadFailed(ctx context.Context, err error) error {
	slog.ErrorContext(ctx, "thread: load failed", "error", err)
	s.sink.Notify(ctx, notification.Error(notification.SubtitleLoadThreadsFailed, ""))
	return err
}

// Create makes a new thread and selects it.
func (s *Service) Create(ctx context.Context, label string) (domainthread.Thread, error) {
	t, err := s.remote.CreateThread(ctx, strings.TrimSpace(label))
	if err != nil {
		slog.ErrorContext(ctx, "thread: create failed", "error", err)
		s.sink.Notify(ctx, notification.Error(notification.SubtitleCreateThreadFailed, ""))
		return domainthread.Thread{}, fmt.Errorf("create thread: %w", err)
	}

	s.store.AddThread(t)
	s.store.SetActiveThread(t.ID)
	return t, nil
}

func (s *Service) Rename(ctx context.Context, id, label string) error {
	label = strings.TrimSpace(label)
	if label == "" {
		return ErrEmptyLabel
	}
	if _, ok := s.store.Thread(id); !ok {
		return fmt.Errorf("rename %s: %w", id, store.ErrThreadNotFound)
	}

	if err := s.remote.UpdateThreadLabel(ctx, id, label); err != nil {
		slog.ErrorContext(ctx, "thread: rename failed", "thread_id", id, "error", err)
		s.sink.Notify(ctx, notification.Error(notification.SubtitleRenameThreadFailed, id))
		return fmt.Errorf("rename thread: %w", err)
	}

	s.store.RenameThread(id, label)
	return nil
}

// Delete removes a thread remotely, then locally.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, ok := s.store.Thread(id); !ok {
		return fmt.Errorf("delete %s: %w", id, store.ErrThreadNotFound)
	}

	if err := s.remote.DeleteThread(ctx, id); err != nil {
		slog.ErrorContext(ctx, "thread: delete failed", "thread_id", id, "error", err)
		s.sink.Notify(ctx, notification.Error(notification.SubtitleDeleteThreadFailed, id))
		return fmt.Errorf("delete thread: %w", err)
	}

	s.store.RemoveThread(id)
	return nil
}

// Select makes id the active thread.
func (s *Service) Select(id string) error {
	if _, ok := s.store.Thread(id); !ok {
		return fmt.Errorf("select %s: %w", id, store.ErrThreadNotFound)
	}
	s.store.SetActiveThread(id)
	return nil
}

// SendNew starts a conversation: a thread labelled after the prompt, then
// the first exchange in the background.
func (s *Service) SendNew(ctx context.Context, content domainthread.Content, assistantID string) (domainthread.Thread, error) {
	if content.IsEmpty() {
		return domainthread.Thread{}, chat.ErrEmptyMessage
	}
	if s.store.SendingBlocked() {
		return domainthread.Thread{}, chat.ErrSendingBlocked
	}

	t, err := s.Create(ctx, domainthread.LabelFromPrompt(content.Text()))
	if err != nil {
		return domainthread.Thread{}, err
	}
	if err := s.starter.Start(ctx, chat.SendRequest{ThreadID: t.ID, Content: content, AssistantID: assistantID}); err != nil {
		return t, fmt.Errorf("start first exchange: %w", err)
	}
	return t, nil
}

package protocol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/notification"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/protocol"
	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/metrics"
	portnotifier "github.com/defenseunicorns/leapfrogai-sub001/internal/port/notifier"
	portthread "github.com/defenseunicorns/leapfrogai-sub001/internal/port/thread"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/chat"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/store"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrNotEditable     = errors.New("only user messages can be edited")
	ErrNoExchange      = errors.New("thread does not end with a prompt and its response")
)

// Resubmitter sends a new exchange for a caller that already holds the
// sending gate. It returns once the user message exists; the reply streams on
// without the caller, and the gate is released when it ends.
type Resubmitter interface {
	Resubmit(ctx context.Context, req chat.SendRequest) error
}

// StreamController reports and stops the response streaming into a thread.
type StreamController interface {
	Active(threadID string) (chat.StreamInfo, bool)
	Stop(ctx context.Context, threadID string) (chat.StreamInfo, bool)
}

// Service runs Edit, Regenerate and Stop-and-Save. Remote deletes always
// complete before the store changes, so a failure leaves the local list
// untouched. Each failure notifies the sink exactly once.
type Service struct {
	store    *store.Store
	remote   portthread.Remote
	resubmit Resubmitter
	streams  StreamController
	sink     portnotifier.Sink
}

func NewService(st *store.Store, remote portthread.Remote, resubmit Resubmitter, streams StreamController, sink portnotifier.Sink) *Service {
	return &Service{store: st, remote: remote, resubmit: resubmit, streams: streams, sink: sink}
}

type EditRequest struct {
	ThreadID  string
	MessageID string
	Content   domainthread.Content
}

type RegenerateRequest struct {
	ThreadID string
}

type StopRequest struct {
	ThreadID string
}

// Edit replaces a user message and the reply that followed it with a new
// exchange built from the edited content. It returns once the new user
// message exists; the reply keeps streaming after ctx ends.
func (s *Service) Edit(ctx context.Context, req EditRequest) protocol.Outcome {
	r := s.begin(ctx, protocol.NameEdit, req.ThreadID)

	if req.Content.IsEmpty() {
		return r.precondition(chat.ErrEmptyMessage)
	}
	msgs := s.store.SortedMessages(req.ThreadID)
	i := domainthread.IndexOf(msgs, req.MessageID)
	if i < 0 {
		return r.precondition(fmt.Errorf("edit %s: %w", req.MessageID, ErrMessageNotFound))
	}
	edited := msgs[i]
	if edited.Role != domainthread.RoleUser {
		return r.precondition(fmt.Errorf("edit %s: %w", req.MessageID, ErrNotEditable))
	}
	targets := []domainthread.Message{edited}
	if i+1 < len(msgs) && msgs[i+1].Role != domainthread.RoleUser {
		targets = append(targets, msgs[i+1])
	}

	if !s.store.TryBlockSending() {
		return r.precondition(chat.ErrSendingBlocked)
	}

	if err := s.deleteRemote(ctx, r, req.ThreadID, targets); err != nil {
		return r.abort(notification.SubtitleEditCancelled, err)
	}

	r.advance(protocol.StageCommittingLocal)
	s.store.RemoveMessages(req.ThreadID, messageIDs(targets)...)

	r.advance(protocol.StageResubmitting)
	assistantID := edited.AssistantID
	if assistantID == "" && len(targets) == 2 {
		assistantID = targets[1].AssistantID
	}
	if err := s.resubmit.Resubmit(ctx, chat.SendRequest{
		ThreadID:    req.ThreadID,
		Content:     req.Content,
		AssistantID: assistantID,
		Metadata:    edited.Metadata,
	}); err != nil {
		return r.failed(err)
	}

	return r.done()
}

// Regenerate discards the last response and the prompt that produced it,
// then sends the prompt again with a fresh timestamp. Like Edit, it does not
// wait for the new reply.
func (s *Service) Regenerate(ctx context.Context, req RegenerateRequest) protocol.Outcome {
	r := s.begin(ctx, protocol.NameRegenerate, req.ThreadID)

	msgs := s.store.SortedMessages(req.ThreadID)
	if len(msgs) < 2 {
		return r.precondition(ErrNoExchange)
	}
	prompt, response := msgs[len(msgs)-2], msgs[len(msgs)-1]
	if prompt.Role != domainthread.RoleUser || response.Role == domainthread.RoleUser {
		return r.precondition(ErrNoExchange)
	}

	if !s.store.TryBlockSending() {
		return r.precondition(chat.ErrSendingBlocked)
	}

	targets := []domainthread.Message{response, prompt}
	if err := s.deleteRemote(ctx, r, req.ThreadID, targets); err != nil {
		return r.abort(notification.SubtitleRegenerationCancelled, err)
	}

	r.advance(protocol.StageCommittingLocal)
	s.store.RemoveMessages(req.ThreadID, messageIDs(targets)...)

	r.advance(protocol.StageResubmitting)
	assistantID := response.AssistantID
	if assistantID == "" {
		assistantID = prompt.AssistantID
	}
	if err := s.resubmit.Resubmit(ctx, chat.SendRequest{
		ThreadID:    req.ThreadID,
		Content:     prompt.Content,
		AssistantID: assistantID,
		Metadata:    prompt.Metadata,
	}); err != nil {
		return r.failed(err)
	}

	return r.done()
}

// Stop cancels the response streaming into a thread. The stream's status,
// read before stopping, picks the branch: an assistant run in progress is
// only stopped, while a loading chat reply has its partial text persisted as
// a completed assistant message. Exactly one "Response Canceled" notice is
// emitted whatever happened.
func (s *Service) Stop(ctx context.Context, req StopRequest) protocol.Outcome {
	r := s.begin(ctx, protocol.NameStopAndSave, req.ThreadID)
	defer s.sink.Notify(ctx, notification.ResponseCanceled(req.ThreadID))

	info, running := s.streams.Active(req.ThreadID)

	r.advance(protocol.StageStopping)
	_, stopped := s.streams.Stop(ctx, req.ThreadID)
	if !running || !stopped || info.Status != chat.StatusLoading {
		return r.done()
	}

	msgs := s.store.SortedMessages(req.ThreadID)
	if len(msgs) == 0 {
		return r.done()
	}
	last := msgs[len(msgs)-1]
	if last.Role == domainthread.RoleUser || !last.IsProvisional() {
		return r.done()
	}

	r.advance(protocol.StagePersisting)
	created, err := s.remote.CreateMessage(ctx, portthread.CreateMessageRequest{
		ThreadID:    req.ThreadID,
		Role:        last.Role,
		Content:     last.Content,
		AssistantID: last.AssistantID,
		Metadata:    last.Metadata,
	})
	if err != nil {
		return r.failed(fmt.Errorf("persist stopped response: %w", err))
	}
	s.store.ReplaceMessage(req.ThreadID, last.ID, domainthread.Persist(last, created))

	return r.done()
}

// deleteRemote deletes targets in order, entering deleting_first then
// deleting_second. Provisional messages were never stored remotely and are
// skipped.
func (s *Service) deleteRemote(ctx context.Context, r *run, threadID string, targets []domainthread.Message) error {
	stages := []protocol.Stage{protocol.StageDeletingFirst, protocol.StageDeletingSecond}
	for i, m := range targets {
		r.advance(stages[i])
		if m.IsProvisional() {
			continue
		}
		if err := s.remote.DeleteMessage(ctx, threadID, m.ID); err != nil {
			return fmt.Errorf("delete message %s: %w", m.ID, err)
		}
	}
	return nil
}

func messageIDs(msgs []domainthread.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

// ── run ──────────────────────────────────────────────────────────────────────

// run tracks the stage a protocol invocation has reached.
type run struct {
	ctx      context.Context
	svc      *Service
	name     protocol.Name
	threadID string
	stage    protocol.Stage
}

func (s *Service) begin(ctx context.Context, name protocol.Name, threadID string) *run {
	return &run{ctx: ctx, svc: s, name: name, threadID: threadID, stage: protocol.StageLocating}
}

func (r *run) advance(to protocol.Stage) {
	if !r.name.CanAdvance(r.stage, to) {
		slog.ErrorContext(r.ctx, "protocol: invalid stage transition", "protocol", r.name, "from", r.stage, "to", to)
		return
	}
	r.stage = to
}

func (r *run) done() protocol.Outcome {
	r.advance(protocol.StageDone)
	return r.finish(protocol.ResultOK, nil)
}

// precondition ends a run that found nothing to act on. Nothing was sent
// remotely and nothing is notified.
func (r *run) precondition(err error) protocol.Outcome {
	slog.DebugContext(r.ctx, "protocol: precondition not met", "protocol", r.name, "thread_id", r.threadID, "error", err)
	return r.finish(protocol.ResultPrecondition, err)
}

// abort ends a run whose remote step failed: the gate opens again and the
// sink hears about it once. Deletes already applied remotely stay applied.
func (r *run) abort(subtitle string, err error) protocol.Outcome {
	r.svc.store.SetSendingBlocked(false)
	r.svc.sink.Notify(r.ctx, notification.Error(subtitle, r.threadID))
	return r.failed(err)
}

func (r *run) failed(err error) protocol.Outcome {
	slog.WarnContext(r.ctx, "protocol: run failed", "protocol", r.name, "stage", r.stage, "thread_id", r.threadID, "error", err)
	return r.finish(protocol.ResultFailed, err)
}

func (r *run) finish(result protocol.Result, err error) protocol.Outcome {
	metrics.ProtocolRuns.WithLabelValues(string(r.name), string(r.stage), string(result)).Inc()
	return protocol.Outcome{Protocol: r.name, Stage: r.stage, Result: result, Err: err}
}

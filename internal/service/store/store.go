package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/event"
	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/metrics"
	porteventbus "github.com/defenseunicorns/leapfrogai-sub001/internal/port/eventbus"
	portscheduler "github.com/defenseunicorns/leapfrogai-sub001/internal/port/scheduler"
)

var ErrThreadNotFound = errors.New("thread not found")

// Store is the in-memory state of every thread and message the client shows.
// All mutation goes through its methods; reads return copies. Operations never
// fail: lookups that miss are no-ops. Each mutation publishes an event after
// the lock is released.
type Store struct {
	bus          porteventbus.EventBus
	sched        portscheduler.Scheduler
	releaseDelay time.Duration

	mu              sync.RWMutex
	threads         []domainthread.Thread
	activeThread    string
	activeAssistant string
	streaming       *domainthread.Message
	sendingBlocked  bool
	releaseTask     portscheduler.Task
	releaseGen      uint64
}

func New(bus porteventbus.EventBus, sched portscheduler.Scheduler, releaseDelay time.Duration) *Store {
	return &Store{bus: bus, sched: sched, releaseDelay: releaseDelay}
}

// Snapshot is the non-thread part of the state.
type Snapshot struct {
	SendingBlocked  bool                  `json:"sending_blocked"`
	Streaming       *domainthread.Message `json:"streaming_message"`
	ActiveThread    string                `json:"active_thread_id"`
	ActiveAssistant string                `json:"active_assistant_id"`
}

// ── Threads ──────────────────────────────────────────────────────────────────

// SetThreads replaces the whole collection. Duplicate thread or message ids
// keep their last occurrence.
func (s *Store) SetThreads(threads []domainthread.Thread) {
	out := make([]domainthread.Thread, 0, len(threads))
	for _, t := range threads {
		t = normalizeThread(t)
		if i := s.indexIn(out, t.ID); i >= 0 {
			out[i] = t
			continue
		}
		out = append(out, t)
	}

	s.mu.Lock()
	s.threads = out
	s.mu.Unlock()

	s.publish(event.New(event.TypeThreadsLoaded, "", ""))
}

// AddThread appends a thread, or replaces the one already carrying its id.
func (s *Store) AddThread(t domainthread.Thread) {
	t = normalizeThread(t)

	s.mu.Lock()
	if i := s.indexIn(s.threads, t.ID); i >= 0 {
		s.threads[i] = t
	} else {
		s.threads = append(s.threads, t)
	}
	s.mu.Unlock()

	s.publish(event.New(event.TypeThreadAdded, t.ID, ""))
}

// UpdateThread replaces a thread by id. It is a no-op if the thread is absent.
func (s *Store) UpdateThread(t domainthread.Thread) {
	t = normalizeThread(t)

	s.mu.Lock()
	i := s.indexIn(s.threads, t.ID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.threads[i] = t
	s.mu.Unlock()

	s.publish(event.New(event.TypeThreadUpdated, t.ID, ""))
}

// RenameThread changes only the label. It is a no-op if the thread is absent.
func (s *Store) RenameThread(id, label string) {
	s.mu.Lock()
	i := s.indexIn(s.threads, id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.threads[i].Label = label
	s.mu.Unlock()

	s.publish(event.New(event.TypeThreadUpdated, id, ""))
}

// RemoveThread drops a thread. The active thread and the streaming slot are
// cleared if they belonged to it.
func (s *Store) RemoveThread(id string) {
	var events []event.Event

	s.mu.Lock()
	i := s.indexIn(s.threads, id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.threads = append(s.threads[:i:i], s.threads[i+1:]...)
	events = append(events, event.New(event.TypeThreadRemoved, id, ""))
	if s.activeThread == id {
		s.activeThread = ""
		events = append(events, event.New(event.TypeActiveChanged, "", ""))
	}
	if s.streaming != nil && s.streaming.ThreadID == id {
		s.streaming = nil
		events = append(events, event.New(event.TypeStreamingUpdated, id, ""))
	}
	s.mu.Unlock()

	s.publish(events...)
}

func (s *Store) Threads() []domainthread.Thread {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domainthread.Thread, len(s.threads))
	for i, t := range s.threads {
		out[i] = t.Clone()
	}
	return out
}

func (s *Store) Thread(id string) (domainthread.Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexIn(s.threads, id)
	if i < 0 {
		return domainthread.Thread{}, false
	}
	return s.threads[i].Clone(), true
}

func (s *Store) SetActiveThread(id string) {
	s.mu.Lock()
	if s.activeThread == id {
		s.mu.Unlock()
		return
	}
	s.activeThread = id
	s.mu.Unlock()

	s.publish(event.New(event.TypeActiveChanged, id, ""))
}

func (s *Store) ActiveThread() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeThread
}

func (s *Store) SetActiveAssistant(id string) {
	s.mu.Lock()
	if s.activeAssistant == id {
		s.mu.Unlock()
		return
	}
	s.activeAssistant = id
	s.mu.Unlock()

	s.publish(event.New(event.TypeActiveChanged, s.ActiveThread(), ""))
}

func (s *Store) ActiveAssistant() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeAssistant
}

// ── Messages ─────────────────────────────────────────────────────────────────

// AppendMessage adds m to the end of the thread's list without re-sorting.
// If a message with the same id is already present it is replaced in place.
func (s *Store) AppendMessage(threadID string, m domainthread.Message) {
	m = m.Clone()
	if m.ThreadID == "" {
		m.ThreadID = threadID
	}

	s.mu.Lock()
	ti := s.indexIn(s.threads, threadID)
	if ti < 0 {
		s.mu.Unlock()
		return
	}
	t := &s.threads[ti]
	if mi := domainthread.IndexOf(t.Messages, m.ID); mi >= 0 {
		t.Messages[mi] = m
	} else {
		t.Messages = append(t.Messages, m)
	}
	s.mu.Unlock()

	s.publish(event.New(event.TypeMessageAppended, threadID, m.ID))
}

// ReplaceMessage overwrites the message with the given id in place. It is a
// no-op if either the thread or the message is missing. Any other entry that
// already carries the replacement's id is dropped.
func (s *Store) ReplaceMessage(threadID, messageID string, m domainthread.Message) {
	m = m.Clone()
	if m.ThreadID == "" {
		m.ThreadID = threadID
	}

	s.mu.Lock()
	ti := s.indexIn(s.threads, threadID)
	if ti < 0 {
		s.mu.Unlock()
		return
	}
	t := &s.threads[ti]
	mi := domainthread.IndexOf(t.Messages, messageID)
	if mi < 0 {
		s.mu.Unlock()
		return
	}
	out := make([]domainthread.Message, 0, len(t.Messages))
	for i, existing := range t.Messages {
		switch {
		case i == mi:
			out = append(out, m)
		case existing.ID == m.ID:
		default:
			out = append(out, existing)
		}
	}
	t.Messages = out
	s.mu.Unlock()

	s.publish(event.New(event.TypeMessageReplaced, threadID, m.ID))
}

func (s *Store) RemoveMessage(threadID, messageID string) {
	s.RemoveMessages(threadID, messageID)
}

// RemoveMessages splices every listed id out of the thread in one update.
func (s *Store) RemoveMessages(threadID string, messageIDs ...string) {
	drop := make(map[string]struct{}, len(messageIDs))
	for _, id := range messageIDs {
		drop[id] = struct{}{}
	}

	var events []event.Event

	s.mu.Lock()
	ti := s.indexIn(s.threads, threadID)
	if ti < 0 {
		s.mu.Unlock()
		return
	}
	t := &s.threads[ti]
	kept := make([]domainthread.Message, 0, len(t.Messages))
	for _, m := range t.Messages {
		if _, ok := drop[m.ID]; ok {
			events = append(events, event.New(event.TypeMessageRemoved, threadID, m.ID))
			continue
		}
		kept = append(kept, m)
	}
	t.Messages = kept
	s.mu.Unlock()

	s.publish(events...)
}

// Messages returns the thread's messages in stored order, or nil if the
// thread is unknown.
func (s *Store) Messages(threadID string) []domainthread.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ti := s.indexIn(s.threads, threadID)
	if ti < 0 {
		return nil
	}
	return s.threads[ti].Clone().Messages
}

// SortedMessages returns the thread's messages in display order.
func (s *Store) SortedMessages(threadID string) []domainthread.Message {
	return domainthread.Sort(s.Messages(threadID))
}

// ── Streaming slot ───────────────────────────────────────────────────────────

// SetStreamingMessage sets the transient in-progress reply. nil clears it.
func (s *Store) SetStreamingMessage(m *domainthread.Message) {
	var threadID string

	s.mu.Lock()
	if m == nil {
		if s.streaming == nil {
			s.mu.Unlock()
			return
		}
		threadID = s.streaming.ThreadID
		s.streaming = nil
	} else {
		c := m.Clone()
		s.streaming = &c
		threadID = c.ThreadID
	}
	s.mu.Unlock()

	s.publish(event.New(event.TypeStreamingUpdated, threadID, ""))
}

// AppendStreamingText adds delta to the streaming message of threadID. It
// reports false, changing nothing, if the slot is empty or belongs to
// another thread.
func (s *Store) AppendStreamingText(threadID, delta string) bool {
	s.mu.Lock()
	if s.streaming == nil || s.streaming.ThreadID != threadID {
		s.mu.Unlock()
		return false
	}
	s.streaming.Content = s.streaming.Content.Append(delta)
	id := s.streaming.ID
	s.mu.Unlock()

	s.publish(event.New(event.TypeStreamingUpdated, threadID, id))
	return true
}

// TakeStreamingMessage clears the slot and returns what it held, if it
// belonged to threadID.
func (s *Store) TakeStreamingMessage(threadID string) (domainthread.Message, bool) {
	s.mu.Lock()
	if s.streaming == nil || s.streaming.ThreadID != threadID {
		s.mu.Unlock()
		return domainthread.Message{}, false
	}
	m := *s.streaming
	s.streaming = nil
	s.mu.Unlock()

	s.publish(event.New(event.TypeStreamingUpdated, threadID, ""))
	return m, true
}

func (s *Store) StreamingMessage() (domainthread.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.streaming == nil {
		return domainthread.Message{}, false
	}
	return s.streaming.Clone(), true
}

// ── Sending gate ─────────────────────────────────────────────────────────────

// SetSendingBlocked closes the gate immediately. Opening it is deferred by
// the release delay so the next user message gets a strictly later
// timestamp than the reply it follows. Blocking again cancels a pending
// release.
func (s *Store) SetSendingBlocked(blocked bool) {
	if blocked {
		s.block(true)
		return
	}

	s.mu.Lock()
	if !s.sendingBlocked {
		s.mu.Unlock()
		return
	}
	s.cancelReleaseLocked()
	gen := s.releaseGen
	s.mu.Unlock()

	task := s.sched.AfterFunc(s.releaseDelay, func() { s.release(gen) })

	s.mu.Lock()
	if s.releaseGen == gen && s.sendingBlocked {
		s.releaseTask = task
	}
	s.mu.Unlock()
}

// TryBlockSending closes the gate and reports true only if it was open. A
// refused attempt leaves any pending release in place.
func (s *Store) TryBlockSending() bool {
	return s.block(false)
}

func (s *Store) SendingBlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sendingBlocked
}

func (s *Store) block(force bool) bool {
	s.mu.Lock()
	if s.sendingBlocked {
		if force {
			s.cancelReleaseLocked()
		}
		s.mu.Unlock()
		return false
	}
	s.cancelReleaseLocked()
	s.sendingBlocked = true
	s.mu.Unlock()

	metrics.SendingBlocked.Set(1)
	s.publish(event.New(event.TypeSendingBlocked, "", ""))
	return true
}

func (s *Store) release(gen uint64) {
	s.mu.Lock()
	if gen != s.releaseGen || !s.sendingBlocked {
		s.mu.Unlock()
		return
	}
	s.releaseTask = nil
	s.sendingBlocked = false
	s.mu.Unlock()

	metrics.SendingBlocked.Set(0)
	s.publish(event.New(event.TypeSendingBlocked, "", ""))
}

// cancelReleaseLocked invalidates any scheduled release. Callers hold s.mu.
func (s *Store) cancelReleaseLocked() {
	s.releaseGen++
	if s.releaseTask != nil {
		s.releaseTask.Stop()
		s.releaseTask = nil
	}
}

// Snapshot returns the gate, the streaming slot and the active selection.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		SendingBlocked:  s.sendingBlocked,
		ActiveThread:    s.activeThread,
		ActiveAssistant: s.activeAssistant,
	}
	if s.streaming != nil {
		c := s.streaming.Clone()
		snap.Streaming = &c
	}
	return snap
}

// ── helpers ──────────────────────────────────────────────────────────────────

func (s *Store) indexIn(threads []domainthread.Thread, id string) int {
	for i, t := range threads {
		if t.ID == id {
			return i
		}
	}
	return -1
}

// normalizeThread deep-copies t and drops duplicate message ids, keeping the
// last occurrence at the position of the first.
func normalizeThread(t domainthread.Thread) domainthread.Thread {
	t = t.Clone()
	if len(t.Messages) == 0 {
		return t
	}
	out := make([]domainthread.Message, 0, len(t.Messages))
	for _, m := range t.Messages {
		if m.ThreadID == "" {
			m.ThreadID = t.ID
		}
		if i := domainthread.IndexOf(out, m.ID); i >= 0 {
			out[i] = m
			continue
		}
		out = append(out, m)
	}
	t.Messages = out
	return t
}

func (s *Store) publish(events ...event.Event) {
	for _, e := range events {
		if err := s.bus.Publish(context.Background(), e); err != nil {
			slog.Error("store: publish event failed", "type", e.Type, "thread_id", e.ThreadID, "error", err)
		}
	}
}

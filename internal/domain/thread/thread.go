package thread

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// State distinguishes client-generated messages from ones the remote service
// has acknowledged.
type State string

const (
	StateProvisional State = "provisional"
	StatePersisted   State = "persisted"
)

type Thread struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Messages  []Message `json:"messages"`
	CreatedAt Timestamp `json:"created_at"`
}

// Clone returns a deep copy so callers can never alias store-owned slices.
func (t Thread) Clone() Thread {
	out := t
	if t.Messages != nil {
		out.Messages = make([]Message, len(t.Messages))
		for i, m := range t.Messages {
			out.Messages[i] = m.Clone()
		}
	}
	return out
}

type Message struct {
	ID          string            `json:"id"`
	ThreadID    string            `json:"thread_id"`
	Role        Role              `json:"role"`
	Content     Content           `json:"content"`
	CreatedAt   Timestamp         `json:"created_at"`
	State       State             `json:"state"`
	AssistantID string            `json:"assistant_id,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (m Message) Clone() Message {
	out := m
	out.Content = m.Content.clone()
	if m.Metadata != nil {
		out.Metadata = make(map[string]string, len(m.Metadata))
		for k, v := range m.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func (m Message) IsProvisional() bool { return m.State == StateProvisional }

// NewProvisionalID builds a client-side id from the role and creation instant.
// The uuid suffix keeps two ids minted in the same millisecond distinct.
func NewProvisionalID(role Role, at time.Time) string {
	return fmt.Sprintf("%s-%d-%s", role, at.UnixMilli(), uuid.NewString()[:8])
}

func NewProvisionalMessage(threadID string, role Role, content Content) Message {
	now := time.Now().UTC()
	return Message{
		ID:        NewProvisionalID(role, now),
		ThreadID:  threadID,
		Role:      role,
		Content:   content,
		CreatedAt: At(now),
		State:     StateProvisional,
	}
}

// Persist merges the remote acknowledgement of a provisional message into the
// message that replaces it locally. Fields the remote left empty are kept
// from the provisional copy.
func Persist(provisional, remote Message) Message {
	out := remote.Clone()
	out.State = StatePersisted
	if out.ThreadID == "" {
		out.ThreadID = provisional.ThreadID
	}
	if out.Role == "" {
		out.Role = provisional.Role
	}
	if out.Content.IsEmpty() {
		out.Content = provisional.Content.clone()
	}
	if out.CreatedAt.IsZero() {
		out.CreatedAt = provisional.CreatedAt
	}
	if out.AssistantID == "" {
		out.AssistantID = provisional.AssistantID
	}
	if out.Metadata == nil && provisional.Metadata != nil {
		out.Metadata = provisional.Clone().Metadata
	}
	return out
}

const labelMaxRunes = 30

// LabelFromPrompt derives a thread label from the first user prompt.
func LabelFromPrompt(prompt string) string {
	s := strings.Join(strings.Fields(prompt), " ")
	if utf8.RuneCountInString(s) <= labelMaxRunes {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:labelMaxRunes]))
}

// IndexOf returns the position of the message with the given id, or -1.
func IndexOf(msgs []Message, id string) int {
	for i, m := range msgs {
		if m.ID == id {
			return i
		}
	}
	return -1
}

package notification

import (
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindInfo  Kind = "info"
	KindError Kind = "error"
)

// Notification is a user-facing toast. It never feeds back into state.
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle"`
	ThreadID  string    `json:"thread_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func New(kind Kind, title, subtitle, threadID string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     title,
		Subtitle:  subtitle,
		ThreadID:  threadID,
		CreatedAt: time.Now().UTC(),
	}
}

func Error(subtitle, threadID string) Notification {
	return New(KindError, "Error", subtitle, threadID)
}

const (
	TitleResponseCanceled = "Response Canceled"

	SubtitleEditCancelled         = "Error editing message - editing cancelled"
	SubtitleRegenerationCancelled = "Error regenerating message - regeneration cancelled"
	SubtitleSendFailed            = "Error sending message"
	SubtitleResponseFailed        = "Error receiving response"
	SubtitleSaveResponseFailed    = "Error saving response"
	SubtitleCreateThreadFailed    = "Error creating thread"
	SubtitleDeleteThreadFailed    = "Error deleting thread"
	SubtitleRenameThreadFailed    = "Error renaming thread"
	SubtitleLoadThreadsFailed     = "Error loading threads"
)

func ResponseCanceled(threadID string) Notification {
	return New(KindInfo, TitleResponseCanceled, "Response generation canceled.", threadID)
}

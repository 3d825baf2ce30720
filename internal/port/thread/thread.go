package thread

import (
	"context"
	"errors"

	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
)

var ErrNotFound = errors.New("remote: not found")

type CreateMessageRequest struct {
	ThreadID    string
	Role        domainthread.Role
	Content     domainthread.Content
	AssistantID string
	Metadata    map[string]string
}

// Remote is the source of truth for threads and messages. Every call is
// independently fallible and is never retried by the engine.
type Remote interface {
	CreateThread(ctx context.Context, label string) (domainthread.Thread, error)
	DeleteThread(ctx context.Context, id string) error
	UpdateThreadLabel(ctx context.Context, id, label string) error
	ListThreads(ctx context.Context) ([]domainthread.Thread, error)

	CreateMessage(ctx context.Context, req CreateMessageRequest) (domainthread.Message, error)
	ListMessages(ctx context.Context, threadID string) ([]domainthread.Message, error)
	DeleteMessage(ctx context.Context, threadID, messageID string) error
}

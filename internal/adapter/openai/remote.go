package openai

import (
	"context"
	"errors"
	"fmt"

	goopenai "github.com/sashabaranov/go-openai"

	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
	portthread "github.com/defenseunicorns/leapfrogai-sub001/internal/port/thread"
)

const (
	metaLabel       = "label"
	metaAssistantID = "assistant_id"
	pageSize        = 100
)

// Remote implements thread.Remote on the Assistants API. The API has no
// endpoint that enumerates threads, so ListThreads is unsupported.
type Remote struct {
	client *goopenai.Client
}

func NewRemote(client *goopenai.Client) *Remote {
	return &Remote{client: client}
}

func (r *Remote) CreateThread(ctx context.Context, label string) (domainthread.Thread, error) {
	t, err := r.client.CreateThread(ctx, goopenai.ThreadRequest{
		Metadata: map[string]any{metaLabel: label},
	})
	if err != nil {
		return domainthread.Thread{}, wrap("create thread", err)
	}
	return toThread(t), nil
}

func (r *Remote) DeleteThread(ctx context.Context, id string) error {
	if _, err := r.client.DeleteThread(ctx, id); err != nil {
		return wrap("delete thread "+id, err)
	}
	return nil
}

func (r *Remote) UpdateThreadLabel(ctx context.Context, id, label string) error {
	_, err := r.client.ModifyThread(ctx, id, goopenai.ModifyThreadRequest{
		Metadata: map[string]any{metaLabel: label},
	})
	if err != nil {
		return wrap("update thread "+id, err)
	}
	return nil
}

func (r *Remote) ListThreads(context.Context) ([]domainthread.Thread, error) {
	return nil, fmt.Errorf("list threads: %w", errors.ErrUnsupported)
}

func (r *Remote) CreateMessage(ctx context.Context, req portthread.CreateMessageRequest) (domainthread.Message, error) {
	if !req.Role.Valid() || req.Role == domainthread.RoleSystem {
		return domainthread.Message{}, fmt.Errorf("create message: unsupported role %q", req.Role)
	}
	meta := make(map[string]any, len(req.Metadata)+1)
	for k, v := range req.Metadata {
		meta[k] = v
	}
	if req.AssistantID != "" {
		meta[metaAssistantID] = req.AssistantID
	}

	m, err := r.client.CreateMessage(ctx, req.ThreadID, goopenai.MessageRequest{
		Role:     string(req.Role),
		Content:  req.Content.Text(),
		Metadata: meta,
	})
	if err != nil {
		return domainthread.Message{}, wrap("create message in "+req.ThreadID, err)
	}
	return toMessage(m), nil
}

// ListMessages pages through the thread oldest first.
func (r *Remote) ListMessages(ctx context.Context, threadID string) ([]domainthread.Message, error) {
	limit := pageSize
	order := "asc"
	var (
		after *string
		out   []domainthread.Message
	)
	for {
		page, err := r.client.ListMessage(ctx, threadID, &limit, &order, after, nil, nil)
		if err != nil {
			return nil, wrap("list messages of "+threadID, err)
		}
		for _, m := range page.Messages {
			out = append(out, toMessage(m))
		}
		if !page.HasMore || page.LastID == nil {
			return out, nil
		}
		after = page.LastID
	}
}

func (r *Remote) DeleteMessage(ctx context.Context, threadID, messageID string) error {
	if _, err := r.client.DeleteMessage(ctx, threadID, messageID); err != nil {
		return wrap("delete message "+messageID, err)
	}
	return nil
}

// ── conversion ────────────────────────────────────────────────────────────────

func toThread(t goopenai.Thread) domainthread.Thread {
	label, _ := t.Metadata[metaLabel].(string)
	return domainthread.Thread{
		ID:        t.ID,
		Label:     label,
		CreatedAt: domainthread.Epoch(float64(t.CreatedAt)),
	}
}

func toMessage(m goopenai.Message) domainthread.Message {
	out := domainthread.Message{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		Role:      domainthread.Role(m.Role),
		Content:   toContent(m.Content),
		CreatedAt: domainthread.Epoch(float64(m.CreatedAt)),
		State:     domainthread.StatePersisted,
	}
	if m.AssistantID != nil {
		out.AssistantID = *m.AssistantID
	}
	for k, v := range m.Metadata {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if k == metaAssistantID {
			if out.AssistantID == "" {
				out.AssistantID = s
			}
			continue
		}
		if out.Metadata == nil {
			out.Metadata = make(map[string]string)
		}
		out.Metadata[k] = s
	}
	return out
}

func toContent(parts []goopenai.MessageContent) domainthread.Content {
	blocks := make([]domainthread.ContentBlock, 0, len(parts))
	for _, p := range parts {
		switch {
		case p.Text != nil:
			blocks = append(blocks, domainthread.ContentBlock{Type: domainthread.BlockText, Text: p.Text.Value})
		case p.ImageFile != nil:
			blocks = append(blocks, domainthread.ContentBlock{Type: domainthread.BlockImageFile, FileID: p.ImageFile.FileID})
		case p.ImageURL != nil:
			blocks = append(blocks, domainthread.ContentBlock{Type: domainthread.BlockImageURL, URL: p.ImageURL.URL})
		}
	}
	return domainthread.BlockContent(blocks...)
}

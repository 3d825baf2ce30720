package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
	portstream "github.com/defenseunicorns/leapfrogai-sub001/internal/port/stream"
)

const defaultPollInterval = 500 * time.Millisecond

// Streamer produces responses either as a streamed chat completion over the
// thread history or, when the request names an assistant, as an assistant
// run whose output the API stores itself.
type Streamer struct {
	client       *goopenai.Client
	model        string
	pollInterval time.Duration
}

func NewStreamer(client *goopenai.Client, cfg Config) *Streamer {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Streamer{client: client, model: cfg.Model, pollInterval: poll}
}

func (s *Streamer) Start(ctx context.Context, req portstream.Request) (portstream.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	if req.Kind() == portstream.KindAssistantRun {
		run, err := s.client.CreateRun(ctx, req.ThreadID, goopenai.RunRequest{AssistantID: req.AssistantID})
		if err != nil {
			cancel()
			return nil, wrap("create run in "+req.ThreadID, err)
		}
		return &runStream{
			client:   s.client,
			ctx:      ctx,
			cancel:   cancel,
			threadID: req.ThreadID,
			runID:    run.ID,
			poll:     s.pollInterval,
		}, nil
	}

	cs, err := s.client.CreateChatCompletionStream(ctx, goopenai.ChatCompletionRequest{
		Model:    s.model,
		Messages: chatMessages(req),
		Stream:   true,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start completion stream: %w", err)
	}
	return &chatStream{stream: cs, cancel: cancel}, nil
}

// chatMessages turns the sorted history into completion messages. The
// history already ends with the prompt once it has been persisted.
func chatMessages(req portstream.Request) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(req.History)+1)
	for _, m := range req.History {
		text := m.Content.Text()
		if text == "" {
			continue
		}
		out = append(out, goopenai.ChatCompletionMessage{Role: string(m.Role), Content: text})
	}
	n := len(req.History)
	if n == 0 || req.History[n-1].Role != domainthread.RoleUser {
		out = append(out, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: req.Prompt})
	}
	return out
}

// ── chat completion ───────────────────────────────────────────────────────────

type chatStream struct {
	stream *goopenai.ChatCompletionStream
	cancel context.CancelFunc

	once    sync.Once
	mu      sync.Mutex
	stopped bool
}

func (c *chatStream) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

func (c *chatStream) Recv() (portstream.Chunk, error) {
	for {
		if c.isStopped() {
			return portstream.Chunk{}, portstream.ErrStopped
		}
		resp, err := c.stream.Recv()
		if err != nil {
			if c.isStopped() {
				return portstream.Chunk{}, portstream.ErrStopped
			}
			if errors.Is(err, io.EOF) {
				return portstream.Chunk{}, io.EOF
			}
			return portstream.Chunk{}, fmt.Errorf("receive completion: %w", err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return portstream.Chunk{Delta: resp.Choices[0].Delta.Content}, nil
	}
}

func (c *chatStream) Stop() {
	c.once.Do(func() {
		c.mu.Lock()
		c.stopped = true
		c.mu.Unlock()
		c.cancel()
		c.stream.Close()
	})
}

// ── assistant run ─────────────────────────────────────────────────────────────

type runStream struct {
	client   *goopenai.Client
	ctx      context.Context
	cancel   context.CancelFunc
	threadID string
	runID    string
	poll     time.Duration

	once sync.Once
	done bool
}

func (r *runStream) Recv() (portstream.Chunk, error) {
	if r.done {
		return portstream.Chunk{}, io.EOF
	}
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		run, err := r.client.RetrieveRun(r.ctx, r.threadID, r.runID)
		if err != nil {
			return portstream.Chunk{}, r.fail("retrieve run", err)
		}
		switch run.Status {
		case goopenai.RunStatusCompleted:
			r.done = true
			return r.output()
		case goopenai.RunStatusFailed, goopenai.RunStatusExpired,
			goopenai.RunStatusCancelled, goopenai.RunStatusIncomplete,
			goopenai.RunStatusRequiresAction:
			return portstream.Chunk{}, fmt.Errorf("run %s ended with status %s", r.runID, run.Status)
		}

		select {
		case <-ticker.C:
		case <-r.ctx.Done():
			return portstream.Chunk{}, r.fail("wait for run", r.ctx.Err())
		}
	}
}

// output fetches the message the run produced and returns it in one chunk.
func (r *runStream) output() (portstream.Chunk, error) {
	limit := 1
	order := "desc"
	page, err := r.client.ListMessage(r.ctx, r.threadID, &limit, &order, nil, nil, &r.runID)
	if err != nil {
		return portstream.Chunk{}, r.fail("list run output", err)
	}
	if len(page.Messages) == 0 {
		return portstream.Chunk{}, io.EOF
	}
	m := toMessage(page.Messages[0])
	return portstream.Chunk{Delta: m.Content.Text(), MessageID: m.ID}, nil
}

func (r *runStream) fail(op string, err error) error {
	if errors.Is(r.ctx.Err(), context.Canceled) {
		return portstream.ErrStopped
	}
	return wrap(op, err)
}

func (r *runStream) Stop() {
	r.once.Do(func() {
		r.cancel()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := r.client.CancelRun(ctx, r.threadID, r.runID); err != nil {
			slog.Warn("openai: cancel run failed", "thread_id", r.threadID, "run_id", r.runID, "error", err)
		}
	})
}

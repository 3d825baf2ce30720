// Package openai backs the engine with an OpenAI-compatible API: threads and
// messages through the Assistants endpoints, responses through streamed chat
// completions or polled assistant runs.
package openai

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	portthread "github.com/defenseunicorns/leapfrogai-sub001/internal/port/thread"
)

type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	PollInterval time.Duration
}

func NewClient(cfg Config) *goopenai.Client {
	c := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return goopenai.NewClientWithConfig(c)
}

// wrap annotates err and maps a 404 from the API onto thread.ErrNotFound.
func wrap(op string, err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w: %s", op, portthread.ErrNotFound, apiErr.Message)
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, portthread.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

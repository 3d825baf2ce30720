package thread

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type BlockType string

const (
	BlockText      BlockType = "text"
	BlockImageFile BlockType = "image_file"
	BlockImageURL  BlockType = "image_url"
)

type ContentBlock struct {
	Type   BlockType `json:"type"`
	Text   string    `json:"text,omitempty"`
	FileID string    `json:"file_id,omitempty"`
	URL    string    `json:"url,omitempty"`
}

// Content is either a plain string or a list of typed blocks. On the wire it
// is a JSON string or a JSON array respectively.
type Content struct {
	text   string
	blocks []ContentBlock
}

func TextContent(s string) Content { return Content{text: s} }

func BlockContent(blocks ...ContentBlock) Content {
	out := make([]ContentBlock, len(blocks))
	copy(out, blocks)
	return Content{blocks: out}
}

func (c Content) HasBlocks() bool { return c.blocks != nil }

func (c Content) Blocks() []ContentBlock {
	return append([]ContentBlock(nil), c.blocks...)
}

// Text flattens the content. Non-text blocks are skipped.
func (c Content) Text() string {
	if c.blocks == nil {
		return c.text
	}
	parts := make([]string, 0, len(c.blocks))
	for _, b := range c.blocks {
		if b.Type == BlockText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func (c Content) IsEmpty() bool {
	return c.text == "" && len(c.blocks) == 0
}

// Append returns plain-text content with delta added. Streaming replies are
// always accumulated as plain text.
func (c Content) Append(delta string) Content {
	return TextContent(c.Text() + delta)
}

func (c Content) clone() Content {
	if c.blocks == nil {
		return c
	}
	return Content{blocks: append([]ContentBlock{}, c.blocks...)}
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.blocks != nil {
		return json.Marshal(c.blocks)
	}
	return json.Marshal(c.text)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = Content{}
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decoding text content: %w", err)
		}
		*c = TextContent(s)
	case data[0] == '[':
		var blocks []ContentBlock
		if err := json.Unmarshal(data, &blocks); err != nil {
			return fmt.Errorf("decoding content blocks: %w", err)
		}
		*c = BlockContent(blocks...)
	default:
		return fmt.Errorf("content must be a string or an array, got %q", data[:1])
	}
	return nil
}

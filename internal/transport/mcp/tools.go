package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcpmcp "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/protocol"
	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/chat"
	protocolsvc "github.com/defenseunicorns/leapfrogai-sub001/internal/service/protocol"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/store"
	threadsvc "github.com/defenseunicorns/leapfrogai-sub001/internal/service/thread"
)

type Deps struct {
	Store     *store.Store
	Threads   *threadsvc.Service
	Chat      *chat.Service
	Protocols *protocolsvc.Service
}

// RegisterTools registers all MCP tools on the server.
func RegisterTools(s *mcpserver.MCPServer, d Deps) {
	s.AddTool(mcpmcp.NewTool("list_threads",
		mcpmcp.WithDescription("List every conversation thread with its id and label."),
	), listThreadsHandler(d))

	s.AddTool(mcpmcp.NewTool("list_messages",
		mcpmcp.WithDescription("Read a thread's messages in display order."),
		mcpmcp.WithString("thread_id", mcpmcp.Required(), mcpmcp.Description("Thread id")),
	), listMessagesHandler(d))

	s.AddTool(mcpmcp.NewTool("send_message",
		mcpmcp.WithDescription("Send a user message and wait for the full response. Without thread_id a new thread is created and labelled after the message."),
		mcpmcp.WithString("content", mcpmcp.Required(), mcpmcp.Description("Message text")),
		mcpmcp.WithString("thread_id", mcpmcp.Description("Thread id; omit to start a new thread")),
		mcpmcp.WithString("assistant_id", mcpmcp.Description("Assistant to run instead of a plain completion")),
	), sendMessageHandler(d))

	s.AddTool(mcpmcp.NewTool("edit_message",
		mcpmcp.WithDescription("Replace a user message and its response with a new exchange built from the edited text."),
		mcpmcp.WithString("thread_id", mcpmcp.Required(), mcpmcp.Description("Thread id")),
		mcpmcp.WithString("message_id", mcpmcp.Required(), mcpmcp.Description("Id of the user message to edit")),
		mcpmcp.WithString("content", mcpmcp.Required(), mcpmcp.Description("New message text")),
	), editMessageHandler(d))

	s.AddTool(mcpmcp.NewTool("regenerate_response",
		mcpmcp.WithDescription("Discard the last response and ask again with the same prompt."),
		mcpmcp.WithString("thread_id", mcpmcp.Required(), mcpmcp.Description("Thread id")),
	), regenerateHandler(d))

	s.AddTool(mcpmcp.NewTool("stop_response",
		mcpmcp.WithDescription("Cancel the response currently streaming into a thread, keeping what was generated so far."),
		mcpmcp.WithString("thread_id", mcpmcp.Required(), mcpmcp.Description("Thread id")),
	), stopHandler(d))
}

// ── Tool handlers ─────────────────────────────────────────────────────────

type threadSummary struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Messages int    `json:"messages"`
}

func listThreadsHandler(d Deps) mcpserver.ToolHandlerFunc {
	return func(_ context.Context, _ mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		threads := d.Store.Threads()
		out := make([]threadSummary, len(threads))
		for i, t := range threads {
			out[i] = threadSummary{ID: t.ID, Label: t.Label, Messages: len(t.Messages)}
		}
		data, _ := json.Marshal(out)
		return mcpmcp.NewToolResultText(string(data)), nil
	}
}

type messageView struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at,omitempty"`
	Saved     bool   `json:"saved"`
}

func viewMessages(msgs []domainthread.Message) []messageView {
	out := make([]messageView, len(msgs))
	for i, m := range msgs {
		out[i] = messageView{
			ID:        m.ID,
			Role:      string(m.Role),
			Text:      m.Content.Text(),
			CreatedAt: m.CreatedAt.String(),
			Saved:     !m.IsProvisional(),
		}
	}
	return out
}

func listMessagesHandler(d Deps) mcpserver.ToolHandlerFunc {
	return func(_ context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		threadID := mcpmcp.ParseString(req, "thread_id", "")
		if _, ok := d.Store.Thread(threadID); !ok {
			return mcpmcp.NewToolResultText("error: thread not found"), nil
		}
		data, _ := json.Marshal(viewMessages(d.Store.SortedMessages(threadID)))
		return mcpmcp.NewToolResultText(string(data)), nil
	}
}

func sendMessageHandler(d Deps) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		content := domainthread.TextContent(mcpmcp.ParseString(req, "content", ""))
		threadID := mcpmcp.ParseString(req, "thread_id", "")
		assistantID := mcpmcp.ParseString(req, "assistant_id", "")

		if content.IsEmpty() {
			return mcpmcp.NewToolResultText("error: content must not be empty"), nil
		}
		if threadID == "" {
			if d.Store.SendingBlocked() {
				return mcpmcp.NewToolResultText("error: " + chat.ErrSendingBlocked.Error()), nil
			}
			t, err := d.Threads.Create(ctx, domainthread.LabelFromPrompt(content.Text()))
			if err != nil {
				return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err)), nil
			}
			threadID = t.ID
		}

		err := d.Chat.Send(ctx, chat.SendRequest{ThreadID: threadID, Content: content, AssistantID: assistantID})
		if err != nil {
			return mcpmcp.NewToolResultText(fmt.Sprintf("error: %s", err)), nil
		}

		result := map[string]any{
			"thread_id": threadID,
			"messages":  viewMessages(d.Store.SortedMessages(threadID)),
		}
		data, _ := json.Marshal(result)
		return mcpmcp.NewToolResultText(string(data)), nil
	}
}

func outcomeResult(out protocol.Outcome) *mcpmcp.CallToolResult {
	result := map[string]any{
		"protocol": out.Protocol,
		"stage":    out.Stage,
		"result":   out.Result,
	}
	if !out.OK() {
		result["error"] = out.Error()
	}
	data, _ := json.Marshal(result)
	return mcpmcp.NewToolResultText(string(data))
}

func editMessageHandler(d Deps) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		out := d.Protocols.Edit(ctx, protocolsvc.EditRequest{
			ThreadID:  mcpmcp.ParseString(req, "thread_id", ""),
			MessageID: mcpmcp.ParseString(req, "message_id", ""),
			Content:   domainthread.TextContent(mcpmcp.ParseString(req, "content", "")),
		})
		awaitReply(ctx, d, out, mcpmcp.ParseString(req, "thread_id", ""))
		return outcomeResult(out), nil
	}
}

func regenerateHandler(d Deps) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		threadID := mcpmcp.ParseString(req, "thread_id", "")
		out := d.Protocols.Regenerate(ctx, protocolsvc.RegenerateRequest{ThreadID: threadID})
		awaitReply(ctx, d, out, threadID)
		return outcomeResult(out), nil
	}
}

// awaitReply holds a successful edit or regenerate until its new reply is in,
// so the tool answers like send_message. A caller that gives up early leaves
// the reply streaming.
func awaitReply(ctx context.Context, d Deps, out protocol.Outcome, threadID string) {
	if !out.OK() {
		return
	}
	if err := d.Chat.Wait(ctx, threadID); err != nil {
		slog.DebugContext(ctx, "mcp: stopped waiting for reply", "thread_id", threadID, "error", err)
	}
}

func stopHandler(d Deps) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcpmcp.CallToolRequest) (*mcpmcp.CallToolResult, error) {
		threadID := mcpmcp.ParseString(req, "thread_id", "")
		if _, ok := d.Store.Thread(threadID); !ok {
			return mcpmcp.NewToolResultText("error: " + store.ErrThreadNotFound.Error()), nil
		}
		out := d.Protocols.Stop(ctx, protocolsvc.StopRequest{ThreadID: threadID})
		return outcomeResult(out), nil
	}
}

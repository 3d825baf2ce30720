package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/notification"
)

// Server wraps the mark3labs/mcp-go MCPServer and its StreamableHTTPServer.
// Tools are registered in tools.go.
type Server struct {
	mcpSrv  *mcpserver.MCPServer
	httpSrv *mcpserver.StreamableHTTPServer
}

func New(d Deps) *Server {
	s := &Server{}

	hooks := &mcpserver.Hooks{}
	hooks.OnRegisterSession = append(hooks.OnRegisterSession, func(ctx context.Context, session mcpserver.ClientSession) {
		slog.InfoContext(ctx, "mcp: session opened", "session_id", session.SessionID())
	})
	hooks.OnUnregisterSession = append(hooks.OnUnregisterSession, func(ctx context.Context, session mcpserver.ClientSession) {
		slog.InfoContext(ctx, "mcp: session closed", "session_id", session.SessionID())
	})

	s.mcpSrv = mcpserver.NewMCPServer(
		"chat-sync",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithHooks(hooks),
	)

	RegisterTools(s.mcpSrv, d)

	s.httpSrv = mcpserver.NewStreamableHTTPServer(s.mcpSrv)
	return s
}

// Handler returns an http.Handler that serves the MCP endpoint.
func (s *Server) Handler() http.Handler {
	return s.httpSrv
}

// Notify implements notifier.Sink by pushing the notification to every
// connected MCP client.
func (s *Server) Notify(_ context.Context, n notification.Notification) {
	params, err := toParams(n)
	if err != nil {
		slog.Error("mcp: serialize notification failed", "error", err)
		return
	}
	s.mcpSrv.SendNotificationToAllClients("notifications/message", params)
}

func toParams(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return map[string]any{"data": v}, nil
	}
	return params, nil
}

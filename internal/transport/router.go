package transport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/event"
	porteventbus "github.com/defenseunicorns/leapfrogai-sub001/internal/port/eventbus"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/chat"
	protocolsvc "github.com/defenseunicorns/leapfrogai-sub001/internal/service/protocol"
	"github.com/defenseunicorns/leapfrogai-sub001/internal/service/store"
	threadsvc "github.com/defenseunicorns/leapfrogai-sub001/internal/service/thread"

	threadhandler "github.com/defenseunicorns/leapfrogai-sub001/internal/transport/thread"
	wshandler "github.com/defenseunicorns/leapfrogai-sub001/internal/transport/ws"
)

type Services struct {
	Store     *store.Store
	Threads   *threadsvc.Service
	Chat      *chat.Service
	Protocols *protocolsvc.Service
}

// NewRouter mounts the REST API, the websocket feed and /metrics. mcp may be
// nil when the MCP surface is disabled.
func NewRouter(
	ctx context.Context,
	svcs Services,
	hub *wshandler.Hub,
	eventBus porteventbus.EventBus,
	mcp http.Handler,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger())
	r.Use(CORSMiddleware())

	api := r.Group("/api")

	threadhandler.Register(api.Group("/threads"), threadhandler.Deps{
		Store:     svcs.Store,
		Threads:   svcs.Threads,
		Chat:      svcs.Chat,
		Protocols: svcs.Protocols,
	})
	api.GET("/state", stateHandler(svcs.Store, svcs.Chat))

	hub.Greet(func() any { return currentState(svcs.Store, svcs.Chat) })
	hub.Register(api.Group("/ws"))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if mcp != nil {
		r.Any("/mcp", gin.WrapH(mcp))
	}

	// Bridge: every store event goes to the websocket clients; event.Type in
	// the payload lets the client filter.
	for _, ch := range event.Channels {
		c := ch
		if _, err := eventBus.Subscribe(ctx, c, func(_ context.Context, e event.Event) {
			hub.Broadcast(wshandler.KindEvent, e)
		}); err != nil {
			slog.Error("failed to subscribe channel to WS hub", "channel", c, "error", err)
		}
	}

	return r
}

type stateResponse struct {
	store.Snapshot
	Stream *chat.StreamInfo `json:"stream,omitempty"`
}

func currentState(st *store.Store, chatSvc *chat.Service) stateResponse {
	resp := stateResponse{Snapshot: st.Snapshot()}
	if resp.ActiveThread != "" {
		if info, ok := chatSvc.Active(resp.ActiveThread); ok {
			resp.Stream = &info
		}
	}
	return resp
}

func stateHandler(st *store.Store, chatSvc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, currentState(st, chatSvc))
	}
}

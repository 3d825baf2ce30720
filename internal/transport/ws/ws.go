package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/defenseunicorns/leapfrogai-sub001/internal/domain/notification"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type Kind string

const (
	KindState        Kind = "state"
	KindEvent        Kind = "event"
	KindNotification Kind = "notification"
)

// Envelope is the frame sent to every client.
type Envelope struct {
	Kind Kind `json:"kind"`
	Data any  `json:"data"`
}

// Hub fans store events and notifications out to browser clients. It is the
// notifier.Sink the UI sees toasts through.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}

	// greeting, when set, is sent as a KindState frame to each new client
	// before it joins the broadcast set.
	greeting func() any
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]struct{})}
}

// Greet makes every new connection start with a KindState frame built by fn.
func (h *Hub) Greet(fn func() any) {
	h.mu.Lock()
	h.greeting = fn
	h.mu.Unlock()
}

func (h *Hub) Register(rg *gin.RouterGroup) {
	rg.GET("", h.handleWS)
}

func (h *Hub) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws: upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	h.mu.Lock()
	if h.greeting != nil {
		if err := write(conn, KindState, h.greeting()); err != nil {
			h.mu.Unlock()
			conn.Close()
			return
		}
	}
	h.clients[conn] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	defer func() {
		close(done)
		h.drop(conn)
	}()
	go h.ping(conn, done)

	// Clients never send anything meaningful; reading keeps pong handling
	// alive and notices the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) ping(conn *websocket.Conn, done <-chan struct{}) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			h.mu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			h.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast writes one frame to every client. Writes are serialized because
// a websocket connection supports a single concurrent writer. A client whose
// write fails is dropped.
func (h *Hub) Broadcast(kind Kind, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := write(conn, kind, data); err != nil {
			slog.Debug("ws: dropping client", "error", err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// Notify implements notifier.Sink.
func (h *Hub) Notify(_ context.Context, n notification.Notification) {
	h.Broadcast(KindNotification, n)
}

func write(conn *websocket.Conn, kind Kind, data any) error {
	frame, err := json.Marshal(Envelope{Kind: kind, Data: data})
	if err != nil {
		slog.Error("ws: failed to marshal frame", "kind", kind, "error", err)
		return nil
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

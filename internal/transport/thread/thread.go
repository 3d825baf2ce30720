package thread

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

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

func Register(rg *gin.RouterGroup, d Deps) {
	rg.GET("/", listThreads(d))
	rg.POST("/", createThread(d))
	rg.POST("/load", loadThreads(d))
	rg.PATCH("/:id", renameThread(d))
	rg.DELETE("/:id", deleteThread(d))
	rg.POST("/:id/select", selectThread(d))
	rg.GET("/:id/messages", listMessages(d))
	rg.POST("/:id/messages", postMessage(d))
	rg.POST("/:id/messages/:messageID/edit", editMessage(d))
	rg.POST("/:id/regenerate", regenerate(d))
	rg.POST("/:id/stop", stop(d))
}

// errorStatus maps service errors to HTTP codes. Remote failures have
// already been reported to the user through the sink.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrThreadNotFound), errors.Is(err, protocolsvc.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrSendingBlocked):
		return http.StatusConflict
	case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, threadsvc.ErrEmptyLabel),
		errors.Is(err, protocolsvc.ErrNotEditable), errors.Is(err, protocolsvc.ErrNoExchange):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func listThreads(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		threads := d.Store.Threads()
		for i := range threads {
			threads[i].Messages = domainthread.Sort(threads[i].Messages)
		}
		c.JSON(http.StatusOK, threads)
	}
}

type createThreadReq struct {
	Label       string               `json:"label"`
	Prompt      domainthread.Content `json:"prompt"`
	AssistantID string               `json:"assistant_id"`
}

// createThread makes an empty thread, or starts a conversation when a prompt
// is given.
func createThread(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createThreadReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var (
			t   domainthread.Thread
			err error
		)
		if !req.Prompt.IsEmpty() {
			t, err = d.Threads.SendNew(c.Request.Context(), req.Prompt, req.AssistantID)
		} else {
			t, err = d.Threads.Create(c.Request.Context(), req.Label)
		}
		if err != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, t)
	}
}

func loadThreads(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := d.Threads.Load(c.Request.Context()); err != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, d.Store.Threads())
	}
}

type renameThreadReq struct {
	Label string `json:"label" binding:"required"`
}

func renameThread(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req renameThreadReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id := c.Param("id")
		if err := d.Threads.Rename(c.Request.Context(), id, req.Label); err != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}
		t, _ := d.Store.Thread(id)
		c.JSON(http.StatusOK, t)
	}
}

func deleteThread(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := d.Threads.Delete(c.Request.Context(), c.Param("id")); err != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func selectThread(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := d.Threads.Select(c.Param("id")); err != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func listMessages(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, ok := d.Store.Thread(id); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}
		msgs := d.Store.SortedMessages(id)
		if msgs == nil {
			msgs = []domainthread.Message{}
		}
		c.JSON(http.StatusOK, msgs)
	}
}

type postMessageReq struct {
	Content     domainthread.Content `json:"content"`
	AssistantID string               `json:"assistant_id"`
	Metadata    map[string]string    `json:"metadata"`
}

// postMessage starts an exchange and returns immediately; progress arrives
// over the websocket.
func postMessage(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, ok := d.Store.Thread(id); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "thread not found"})
			return
		}

		var req postMessageReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		err := d.Chat.Start(c.Request.Context(), chat.SendRequest{
			ThreadID:    id,
			Content:     req.Content,
			AssistantID: req.AssistantID,
			Metadata:    req.Metadata,
		})
		if err != nil {
			c.JSON(errorStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"thread_id": id})
	}
}

type outcomeResponse struct {
	protocol.Outcome
	Error string `json:"error,omitempty"`
}

func writeOutcome(c *gin.Context, out protocol.Outcome) {
	code := http.StatusOK
	if !out.OK() {
		code = errorStatus(out.Err)
	}
	c.JSON(code, outcomeResponse{Outcome: out, Error: out.Error()})
}

type editMessageReq struct {
	Content domainthread.Content `json:"content"`
}

// editMessage and regenerate answer once the new prompt is stored; the reply
// arrives over the websocket like a normal send.
func editMessage(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req editMessageReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		writeOutcome(c, d.Protocols.Edit(c.Request.Context(), protocolsvc.EditRequest{
			ThreadID:  c.Param("id"),
			MessageID: c.Param("messageID"),
			Content:   req.Content,
		}))
	}
}

func regenerate(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		writeOutcome(c, d.Protocols.Regenerate(c.Request.Context(), protocolsvc.RegenerateRequest{ThreadID: c.Param("id")}))
	}
}

func stop(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		writeOutcome(c, d.Protocols.Stop(c.Request.Context(), protocolsvc.StopRequest{ThreadID: c.Param("id")}))
	}
}

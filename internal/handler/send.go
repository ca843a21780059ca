package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/orchestrator"
	"github.com/set-night/mindcanvas/internal/streamhub"
)

type sendRequest struct {
	ID      *uuid.UUID         `json:"id"`
	Message string             `json:"message"`
	ModelID string             `json:"modelId"`
	Hints   orchestrator.Hints `json:"hints"`
}

// SendMessage starts a generation for the chat and streams its events as SSE.
// The stream keeps running when the client goes away; it can be resumed
// through StreamEvents.
func (h *Handler) SendMessage(c *gin.Context) {
	chatID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body sendRequest
	if !bindJSON(c, &body) {
		return
	}
	if strings.TrimSpace(body.Message) == "" {
		writeError(c, domain.ErrEmptyMessage)
		return
	}

	msg := domain.NewMessage(domain.RoleUser, body.Message)
	if body.ID != nil && *body.ID != uuid.Nil {
		msg.ID = *body.ID
	}
	modelID := body.ModelID
	if modelID == "" {
		modelID = h.cfg.ChatModel
	}

	// The generation outlives the request, so it holds its own lease.
	ws, release, err := h.app.Acquire(c.Request.Context(), workspace(c).Owner)
	if err != nil {
		writeError(c, err)
		return
	}
	stores := orchestrator.StoresFor(ws)
	stores.Release = release
	streamID, err := h.orchestrator.Start(c.Request.Context(), stores, orchestrator.Request{
		SessionID: chatID,
		Message:   msg,
		ModelID:   modelID,
		Hints:     body.Hints,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	h.streamFrames(c, streamID, 0)
}

// StreamEvents re-attaches to a stream. Frames up to Last-Event-ID are skipped.
func (h *Handler) StreamEvents(c *gin.Context) {
	streamID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !h.ownsStream(c, streamID) {
		writeError(c, domain.ErrStreamNotFound)
		return
	}
	after, _ := strconv.Atoi(c.GetHeader("Last-Event-ID"))
	h.streamFrames(c, streamID, after)
}

func (h *Handler) StopStream(c *gin.Context) {
	streamID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !h.ownsStream(c, streamID) {
		writeError(c, domain.ErrStreamNotFound)
		return
	}
	if err := h.hub.Stop(streamID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// ownsStream reports whether the stream was recorded in one of the caller's chats.
func (h *Handler) ownsStream(c *gin.Context, streamID uuid.UUID) bool {
	chats := workspace(c).Chats
	for _, s := range chats.ListSessions() {
		for _, id := range chats.GetStreamIDsByChatID(s.ID) {
			if id == streamID {
				return true
			}
		}
	}
	return false
}

func (h *Handler) streamFrames(c *gin.Context, streamID uuid.UUID, after int) {
	sub, err := h.hub.Attach(streamID)
	if err != nil {
		writeError(c, err)
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Stream-Id", streamID.String())
	c.Status(http.StatusOK)

	for _, f := range sub.Replay {
		if f.Seq > after {
			writeFrame(c, f)
		}
	}
	c.Writer.Flush()

	for {
		select {
		case f, ok := <-sub.Live:
			if !ok {
				return
			}
			if f.Seq > after {
				writeFrame(c, f)
				c.Writer.Flush()
			}
		case <-c.Request.Context().Done():
			return
		}
	}
}

func writeFrame(c *gin.Context, f streamhub.Frame) {
	var data any = f.Data
	if len(f.Data) == 0 {
		data = ""
	}
	c.Render(-1, sse.Event{Id: strconv.Itoa(f.Seq), Event: f.Type, Data: data})
}

package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/service"
)

type sessionSummary struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}

func summarize(s *domain.ChatSession) sessionSummary {
	return sessionSummary{
		ID:           s.ID,
		Title:        s.Title,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		MessageCount: len(s.Messages),
	}
}

func (h *Handler) ListChats(c *gin.Context) {
	sessions := workspace(c).Chats.ListSessions()
	out := make([]sessionSummary, len(sessions))
	for i, s := range sessions {
		out[i] = summarize(s)
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) CreateChat(c *gin.Context) {
	c.JSON(http.StatusCreated, workspace(c).Chats.CreateSession())
}

func (h *Handler) GetChat(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	sess, err := workspace(c).Chats.GetSession(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) GetCurrentChat(c *gin.Context) {
	sess, err := workspace(c).Chats.CurrentSession()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (h *Handler) SetCurrentChat(c *gin.Context) {
	var body struct {
		ID uuid.UUID `json:"id" binding:"required"`
	}
	if !bindJSON(c, &body) {
		return
	}
	if err := workspace(c).Chats.SetCurrentSessionID(body.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) UpdateChat(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Title *string `json:"title"`
	}
	if !bindJSON(c, &body) {
		return
	}
	sess, err := workspace(c).Chats.UpdateSession(id, service.SessionUpdate{Title: body.Title})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summarize(sess))
}

func (h *Handler) DeleteChat(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := workspace(c).Chats.DeleteSession(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GenerateTitle regenerates the chat title synchronously.
func (h *Handler) GenerateTitle(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	chats := workspace(c).Chats
	if err := chats.UpdateTitle(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	sess, err := chats.GetSession(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summarize(sess))
}

func (h *Handler) ListMessages(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	msgs, err := workspace(c).Chats.GetMessages(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// PutMessages replaces the message list of a chat, creating the chat when needed.
func (h *Handler) PutMessages(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var msgs []domain.Message
	if !bindJSON(c, &msgs) {
		return
	}
	changed, err := workspace(c).Chats.UpdateMessages(id, msgs)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

func (h *Handler) UpdateMessage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	msgID, ok := paramID(c, "messageId")
	if !ok {
		return
	}
	var body struct {
		Content *string       `json:"content"`
		Parts   []domain.Part `json:"parts"`
	}
	if !bindJSON(c, &body) {
		return
	}
	err := workspace(c).Chats.UpdateSingleMessage(id, msgID, service.MessageUpdate{Content: body.Content, Parts: body.Parts})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteMessage(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	msgID, ok := paramID(c, "messageId")
	if !ok {
		return
	}
	if err := workspace(c).Chats.DeleteMessage(id, msgID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TruncateMessages keeps the messages created strictly before ?after=<RFC 3339>.
func (h *Handler) TruncateMessages(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	after, err := time.Parse(time.RFC3339Nano, c.Query("after"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid after timestamp"})
		return
	}
	if err := workspace(c).Chats.DeleteMessagesAfter(id, after); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListChatStreams(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	ids := workspace(c).Chats.GetStreamIDsByChatID(id)
	type streamInfo struct {
		ID     uuid.UUID `json:"id"`
		Active bool      `json:"active"`
	}
	out := make([]streamInfo, len(ids))
	for i, sid := range ids {
		out[i] = streamInfo{ID: sid, Active: h.hub.Active(sid)}
	}
	c.JSON(http.StatusOK, out)
}

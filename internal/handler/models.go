package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/set-night/mindcanvas/internal/llm"
)

type modelInfo struct {
	llm.ModelSpec
	Default bool `json:"default"`
}

// ListModels returns the chat models the caller may pick.
func (h *Handler) ListModels(c *gin.Context) {
	var out []modelInfo
	for _, m := range h.catalog.ChatModels() {
		if !h.cfg.IsModelAvailable(m.ID) {
			continue
		}
		out = append(out, modelInfo{ModelSpec: m, Default: m.ID == h.cfg.ChatModel})
	}
	c.JSON(http.StatusOK, out)
}

// ClearStorage empties the caller's workspace in memory and in storage.
func (h *Handler) ClearStorage(c *gin.Context) {
	ws := workspace(c)
	if err := h.app.ClearWorkspace(c.Request.Context(), ws.Owner); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Me(c *gin.Context) {
	ws := workspace(c)
	c.JSON(http.StatusOK, gin.H{
		"did":      ws.Owner,
		"settings": ws.Settings.Get(),
		"chats":    len(ws.Chats.ListSessions()),
		"docs":     len(ws.Documents.ListDocuments()),
		"files":    len(ws.Files.ListFiles()),
	})
}

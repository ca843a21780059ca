package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/service"
)

func (h *Handler) ListDocuments(c *gin.Context) {
	c.JSON(http.StatusOK, workspace(c).Documents.ListDocuments())
}

func (h *Handler) CreateDocument(c *gin.Context) {
	var body struct {
		ID      *uuid.UUID `json:"id"`
		Title   string     `json:"title" binding:"required"`
		Kind    string     `json:"kind"`
		Content *string    `json:"content"`
	}
	if !bindJSON(c, &body) {
		return
	}
	kind := domain.KindText
	if body.Kind != "" {
		k, err := domain.ParseKind(body.Kind)
		if err != nil {
			writeError(c, err)
			return
		}
		kind = k
	}
	id := uuid.New()
	if body.ID != nil && *body.ID != uuid.Nil {
		id = *body.ID
	}
	doc := workspace(c).Documents.CreateDocumentWithID(id, body.Title, kind, body.Content)
	c.JSON(http.StatusCreated, doc)
}

func (h *Handler) GetDocument(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	doc, err := workspace(c).Documents.GetDocument(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) UpdateDocument(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Title   *string `json:"title"`
		Kind    *string `json:"kind"`
		Content *string `json:"content"`
	}
	if !bindJSON(c, &body) {
		return
	}
	upd := service.DocumentUpdate{Title: body.Title, Content: body.Content}
	if body.Kind != nil {
		k, err := domain.ParseKind(*body.Kind)
		if err != nil {
			writeError(c, err)
			return
		}
		upd.Kind = &k
	}
	doc, err := workspace(c).Documents.UpdateDocument(id, upd)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) DeleteDocument(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := workspace(c).Documents.DeleteDocument(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ListVersions(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	versions, err := workspace(c).Documents.Versions(id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, versions)
}

func (h *Handler) GetVersion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	index, ok := paramIndex(c, "index")
	if !ok {
		return
	}
	v, err := workspace(c).Documents.Version(id, index)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// RestoreVersion makes an older version current and drops the later ones.
func (h *Handler) RestoreVersion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	index, ok := paramIndex(c, "index")
	if !ok {
		return
	}
	doc, err := workspace(c).Documents.RestoreVersion(id, index)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) ListSuggestions(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, workspace(c).Documents.SuggestionsByDocument(id))
}

func (h *Handler) CreateSuggestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body struct {
		OriginalText  string `json:"originalText" binding:"required"`
		SuggestedText string `json:"suggestedText"`
		Description   string `json:"description"`
	}
	if !bindJSON(c, &body) {
		return
	}
	docs := workspace(c).Documents
	sid := docs.CreateSuggestion(id, body.OriginalText, body.SuggestedText, body.Description)
	sg, err := docs.GetSuggestion(sid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sg)
}

func (h *Handler) UpdateSuggestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body struct {
		OriginalText  *string `json:"originalText"`
		SuggestedText *string `json:"suggestedText"`
		Description   *string `json:"description"`
		IsResolved    *bool   `json:"isResolved"`
	}
	if !bindJSON(c, &body) {
		return
	}
	sg, err := workspace(c).Documents.UpdateSuggestion(id, service.SuggestionUpdate{
		OriginalText:  body.OriginalText,
		SuggestedText: body.SuggestedText,
		Description:   body.Description,
		IsResolved:    body.IsResolved,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sg)
}

func (h *Handler) ResolveSuggestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := workspace(c).Documents.ResolveSuggestion(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteSuggestion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := workspace(c).Documents.DeleteSuggestion(id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

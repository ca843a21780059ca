package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/set-night/mindcanvas/internal/config"
	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/llm"
	"github.com/set-night/mindcanvas/internal/middleware"
	"github.com/set-night/mindcanvas/internal/orchestrator"
	"github.com/set-night/mindcanvas/internal/service"
	"github.com/set-night/mindcanvas/internal/streamhub"
)

// Handler holds all dependencies needed by the HTTP handlers.
type Handler struct {
	app          *service.App
	orchestrator *orchestrator.Orchestrator
	hub          *streamhub.Hub
	catalog      *llm.Catalog
	cfg          *config.Config
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	App          *service.App
	Orchestrator *orchestrator.Orchestrator
	Hub          *streamhub.Hub
	Catalog      *llm.Catalog
	Cfg          *config.Config
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		app:          deps.App,
		orchestrator: deps.Orchestrator,
		hub:          deps.Hub,
		catalog:      deps.Catalog,
		cfg:          deps.Cfg,
	}
}

func paramID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func paramIndex(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return n, true
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// writeError maps domain errors to status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrMessageNotFound),
		errors.Is(err, domain.ErrDocumentNotFound),
		errors.Is(err, domain.ErrVersionNotFound),
		errors.Is(err, domain.ErrSuggestionNotFound),
		errors.Is(err, domain.ErrStreamNotFound),
		errors.Is(err, domain.ErrFileNotFound),
		errors.Is(err, domain.ErrModelNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidDID),
		errors.Is(err, domain.ErrInvalidKind),
		errors.Is(err, domain.ErrInvalidSetting),
		errors.Is(err, domain.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrModelNotAvailable):
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func workspace(c *gin.Context) *service.Workspace {
	return middleware.Workspace(c)
}

package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/set-night/mindcanvas/internal/handler"
	"github.com/set-night/mindcanvas/internal/middleware"
	"github.com/set-night/mindcanvas/internal/service"
)

const (
	PathHealth = "/health"
	PathReady  = "/ready"
)

func New(h *handler.Handler, app *service.App, limiter *middleware.Limiter) http.Handler {
	r := gin.New()
	r.Use(middleware.RecoverHTTP(), middleware.RequestLogging())

	r.GET(PathHealth, handler.Health)
	r.GET(PathReady, h.Ready)

	api := r.Group("/api", middleware.Identity(app))
	{
		api.GET("/me", h.Me)
		api.GET("/models", h.ListModels)
		api.DELETE("/storage", h.ClearStorage)

		api.GET("/settings", h.GetSettings)
		api.PUT("/settings", h.PutSettings)
		api.PATCH("/settings", h.PatchSettings)
		api.DELETE("/settings", h.ResetSettings)

		api.GET("/chats", h.ListChats)
		api.POST("/chats", h.CreateChat)
		api.GET("/chats/current", h.GetCurrentChat)
		api.PUT("/chats/current", h.SetCurrentChat)
		api.GET("/chats/:id", h.GetChat)
		api.PATCH("/chats/:id", h.UpdateChat)
		api.DELETE("/chats/:id", h.DeleteChat)
		api.POST("/chats/:id/title", h.GenerateTitle)
		api.GET("/chats/:id/messages", h.ListMessages)
		api.PUT("/chats/:id/messages", h.PutMessages)
		api.DELETE("/chats/:id/messages", h.TruncateMessages)
		api.PATCH("/chats/:id/messages/:messageId", h.UpdateMessage)
		api.DELETE("/chats/:id/messages/:messageId", h.DeleteMessage)
		api.GET("/chats/:id/streams", h.ListChatStreams)
		api.POST("/chats/:id/send", middleware.RateLimitHTTP(limiter), h.SendMessage)

		api.GET("/streams/:id", h.StreamEvents)
		api.POST("/streams/:id/stop", h.StopStream)

		api.GET("/documents", h.ListDocuments)
		api.POST("/documents", h.CreateDocument)
		api.GET("/documents/:id", h.GetDocument)
		api.PATCH("/documents/:id", h.UpdateDocument)
		api.DELETE("/documents/:id", h.DeleteDocument)
		api.GET("/documents/:id/versions", h.ListVersions)
		api.GET("/documents/:id/versions/:index", h.GetVersion)
		api.POST("/documents/:id/versions/:index/restore", h.RestoreVersion)
		api.GET("/documents/:id/suggestions", h.ListSuggestions)
		api.POST("/documents/:id/suggestions", h.CreateSuggestion)

		api.PATCH("/suggestions/:id", h.UpdateSuggestion)
		api.POST("/suggestions/:id/resolve", h.ResolveSuggestion)
		api.DELETE("/suggestions/:id", h.DeleteSuggestion)

		api.GET("/files", h.ListFiles)
		api.POST("/files", h.UploadFile)
		api.DELETE("/files", h.ClearFiles)
		api.GET("/files/:id", h.GetFile)
		api.GET("/files/:id/content", h.GetFileContent)
		api.DELETE("/files/:id", h.DeleteFile)

		api.GET("/artifact", h.GetArtifact)
		api.PUT("/artifact", h.PutArtifact)
		api.PATCH("/artifact", h.PatchArtifact)
		api.DELETE("/artifact", h.ResetArtifact)
		api.GET("/artifact/metadata/:documentId", h.GetArtifactMetadata)
		api.PUT("/artifact/metadata/:documentId", h.PutArtifactMetadata)
	}

	r.GET("/ws/artifact", middleware.Identity(app), h.ServeArtifactWS)

	return r
}

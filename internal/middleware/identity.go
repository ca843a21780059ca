package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/service"
)

// DIDHeader carries the caller's identity on HTTP requests.
const DIDHeader = "X-Did"

type ctxKey string

const (
	WorkspaceKey ctxKey = "workspace"
	DIDKey       ctxKey = "did"
)

// GetWorkspace extracts the caller's workspace from context.
func GetWorkspace(ctx context.Context) *service.Workspace {
	ws, ok := ctx.Value(WorkspaceKey).(*service.Workspace)
	if !ok {
		return nil
	}
	return ws
}

func DID(ctx context.Context) string {
	did, _ := ctx.Value(DIDKey).(string)
	return did
}

// Workspace returns the workspace Identity attached to the request.
func Workspace(c *gin.Context) *service.Workspace {
	v, ok := c.Get(string(WorkspaceKey))
	if !ok {
		return nil
	}
	ws, _ := v.(*service.Workspace)
	return ws
}

// Identity resolves the X-Did header to a loaded workspace, held for the
// whole request. The did query parameter is accepted for WebSocket clients,
// which cannot set headers.
func Identity(app *service.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		did := c.GetHeader(DIDHeader)
		if did == "" {
			did = c.Query("did")
		}
		if did == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + DIDHeader + " header"})
			return
		}

		ws, release, err := app.Acquire(c.Request.Context(), did)
		if err != nil {
			if errors.Is(err, domain.ErrInvalidDID) {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			slog.Error("load workspace", "error", err, "did", did)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load workspace"})
			return
		}

		defer release()

		c.Set(string(WorkspaceKey), ws)
		c.Next()
	}
}

// TelegramDID is the identity of a Telegram chat.
func TelegramDID(chatID int64) string {
	if chatID < 0 {
		return "did:nuwa:tg_" + strconv.FormatInt(-chatID, 10)
	}
	return "did:nuwa:tg" + strconv.FormatInt(chatID, 10)
}

// WorkspaceLoader returns middleware that loads the chat's workspace into context.
func WorkspaceLoader(app *service.App) bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			_, chatID := describeUpdate(update)
			if chatID == 0 {
				next(ctx, b, update)
				return
			}

			did := TelegramDID(chatID)
			ws, release, err := app.Acquire(ctx, did)
			if err != nil {
				slog.Error("load workspace", "error", err, "chat_id", chatID)
				return
			}
			defer release()

			ctx = context.WithValue(ctx, WorkspaceKey, ws)
			ctx = context.WithValue(ctx, DIDKey, did)
			next(ctx, b, update)
		}
	}
}

package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Logging returns middleware that logs update processing time.
func Logging() bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			start := time.Now()
			updateType, chatID := describeUpdate(update)

			next(ctx, b, update)

			var did string
			if chatID != 0 {
				did = TelegramDID(chatID)
			}
			slog.Debug("update processed",
				"type", updateType,
				"chat_id", chatID,
				"did", did,
				"duration", time.Since(start),
			)
		}
	}
}

// RequestLogging logs every HTTP request once it is served.
func RequestLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelDebug
		if c.Writer.Status() >= 500 {
			level = slog.LevelError
		}
		slog.Log(c.Request.Context(), level, "request served",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"did", c.GetHeader(DIDHeader),
			"duration", time.Since(start),
		)
	}
}

func describeUpdate(update *models.Update) (string, int64) {
	switch {
	case update.Message != nil:
		return "message", update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message.Message != nil:
		return "callback_query", update.CallbackQuery.Message.Message.Chat.ID
	case update.CallbackQuery != nil:
		return "callback_query", 0
	default:
		return "unknown", 0
	}
}

// Package telegram is the Telegram front-end: private chats are routed to the
// orchestrator under the identity derived from the chat id.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"github.com/set-night/mindcanvas/internal/config"
	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/middleware"
	"github.com/set-night/mindcanvas/internal/orchestrator"
	"github.com/set-night/mindcanvas/internal/service"
)

const welcomeText = `👋 *Hi!* Send me a message and I will answer.

/new starts a new chat
/chats lists your chats
/clear deletes all your chats and documents`

type Bot struct {
	bot          *bot.Bot
	cfg          *config.Config
	app          *service.App
	orchestrator *orchestrator.Orchestrator
}

// Deps contains all dependencies required to construct a Bot.
type Deps struct {
	Cfg          *config.Config
	App          *service.App
	Orchestrator *orchestrator.Orchestrator
	Limiter      *middleware.Limiter
}

func New(deps Deps) (*Bot, error) {
	b := &Bot{
		cfg:          deps.Cfg,
		app:          deps.App,
		orchestrator: deps.Orchestrator,
	}

	tb, err := bot.New(deps.Cfg.BotToken,
		bot.WithMiddlewares(
			middleware.Recover(),
			middleware.Logging(),
			middleware.RateLimit(deps.Limiter),
			middleware.WorkspaceLoader(deps.App),
		),
		bot.WithDefaultHandler(b.handleText),
	)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	b.bot = tb
	b.register()
	return b, nil
}

func (b *Bot) register() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact, b.handleStart)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/new", bot.MatchTypeExact, b.handleNew)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/chats", bot.MatchTypeExact, b.handleChats)
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/clear", bot.MatchTypeExact, b.handleClear)
	b.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, callbackChat, bot.MatchTypePrefix, b.handleSelectChat)
	b.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, callbackChats, bot.MatchTypePrefix, b.handleChatsPage)
}

// Start polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	me, err := b.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("get bot info: %w", err)
	}
	slog.Info("starting bot", "username", me.Username, "id", me.ID)
	b.bot.Start(ctx)
	slog.Info("bot stopped")
	return nil
}

func (b *Bot) handleStart(ctx context.Context, tb *bot.Bot, update *models.Update) {
	if !isPrivate(update) {
		return
	}
	if err := SendLongMessage(ctx, tb, update.Message.Chat.ID, welcomeText, nil); err != nil {
		slog.Error("send welcome", "error", err)
	}
}

func (b *Bot) handleNew(ctx context.Context, tb *bot.Bot, update *models.Update) {
	ws := middleware.GetWorkspace(ctx)
	if !isPrivate(update) || ws == nil {
		return
	}
	ws.Chats.CreateSession()
	tb.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   "🆕 New chat started.",
	})
}

func (b *Bot) handleClear(ctx context.Context, tb *bot.Bot, update *models.Update) {
	if !isPrivate(update) {
		return
	}
	chatID := update.Message.Chat.ID
	text := "🗑 All chats and documents were deleted."
	if err := b.app.ClearWorkspace(ctx, middleware.TelegramDID(chatID)); err != nil {
		slog.Error("clear workspace", "error", err, "chat_id", chatID)
		text = "❌ Could not delete your data. Please try again."
	}
	tb.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
}

func (b *Bot) handleChats(ctx context.Context, tb *bot.Bot, update *models.Update) {
	ws := middleware.GetWorkspace(ctx)
	if !isPrivate(update) || ws == nil {
		return
	}
	current, _ := ws.Chats.CurrentSession()
	text, kb := chatsPage(ws.Chats.ListSessions(), current, 0)
	params := &bot.SendMessageParams{
		ChatID:    update.Message.Chat.ID,
		Text:      text,
		ParseMode: models.ParseModeMarkdownV1,
	}
	if kb != nil {
		params.ReplyMarkup = kb
	}
	if _, err := tb.SendMessage(ctx, params); err != nil {
		slog.Error("send chats", "error", err)
	}
}

func (b *Bot) handleChatsPage(ctx context.Context, tb *bot.Bot, update *models.Update) {
	cq := update.CallbackQuery
	ws := middleware.GetWorkspace(ctx)
	tb.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cq.ID})
	if ws == nil || cq.Message.Message == nil {
		return
	}

	page, err := strconv.Atoi(strings.TrimPrefix(cq.Data, callbackChats))
	if err != nil {
		return
	}
	current, _ := ws.Chats.CurrentSession()
	text, kb := chatsPage(ws.Chats.ListSessions(), current, page)
	params := &bot.EditMessageTextParams{
		ChatID:    cq.Message.Message.Chat.ID,
		MessageID: cq.Message.Message.ID,
		Text:      text,
		ParseMode: models.ParseModeMarkdownV1,
	}
	if kb != nil {
		params.ReplyMarkup = kb
	}
	tb.EditMessageText(ctx, params)
}

func (b *Bot) handleSelectChat(ctx context.Context, tb *bot.Bot, update *models.Update) {
	cq := update.CallbackQuery
	ws := middleware.GetWorkspace(ctx)
	if ws == nil {
		tb.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cq.ID})
		return
	}

	answer := "Chat selected"
	id, err := uuid.Parse(strings.TrimPrefix(cq.Data, callbackChat))
	if err == nil {
		err = ws.Chats.SetCurrentSessionID(id)
	}
	if err != nil {
		answer = "Chat not found"
	}
	tb.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cq.ID, Text: answer})

	if err == nil && cq.Message.Message != nil {
		current, _ := ws.Chats.CurrentSession()
		text, kb := chatsPage(ws.Chats.ListSessions(), current, 0)
		params := &bot.EditMessageTextParams{
			ChatID:    cq.Message.Message.Chat.ID,
			MessageID: cq.Message.Message.ID,
			Text:      text,
			ParseMode: models.ParseModeMarkdownV1,
		}
		if kb != nil {
			params.ReplyMarkup = kb
		}
		tb.EditMessageText(ctx, params)
	}
}

// handleText sends a private message to the model in the current chat,
// creating one when the user has none.
func (b *Bot) handleText(ctx context.Context, tb *bot.Bot, update *models.Update) {
	if !isPrivate(update) || update.Message.Text == "" || strings.HasPrefix(update.Message.Text, "/") {
		return
	}
	ws := middleware.GetWorkspace(ctx)
	if ws == nil {
		return
	}

	msg := update.Message
	sess, err := ws.Chats.CurrentSession()
	if err != nil {
		sess = ws.Chats.CreateSession()
	}

	stopTyping := StartTyping(ctx, tb, msg.Chat.ID)
	res := b.orchestrator.Send(ctx, orchestrator.StoresFor(ws), orchestrator.Request{
		SessionID: sess.ID,
		Message:   domain.NewMessage(domain.RoleUser, msg.Text),
		ModelID:   b.cfg.ChatModel,
	}, nil)
	stopTyping()

	reply := replyText(res)
	if reply == "" {
		return
	}
	if err := SendLongMessage(ctx, tb, msg.Chat.ID, reply, &msg.ID); err != nil {
		slog.Error("send reply", "error", err, "chat_id", msg.Chat.ID)
	}
}

// replyText is what the user sees for a finished turn.
func replyText(res *orchestrator.Result) string {
	switch {
	case res == nil:
		return ""
	case res.Failure != nil:
		return res.Failure.Format()
	case res.Canceled && res.Content == "":
		return "⏹ Generation stopped."
	case res.Content == "":
		return "🤷 The model returned an empty answer."
	}
	return res.Content
}

func isPrivate(update *models.Update) bool {
	return update.Message != nil && update.Message.Chat.Type == "private"
}

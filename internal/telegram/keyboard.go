package telegram

import (
	"fmt"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/set-night/mindcanvas/internal/domain"
)

const (
	chatsPerPage = 8

	callbackChat  = "chat:"
	callbackChats = "chats:"
)

func inlineButton(text, data string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: text, CallbackData: data}
}

// paginationRow renders prev/current/next buttons. Pages are zero based.
func paginationRow(page, totalPages int) []models.InlineKeyboardButton {
	var row []models.InlineKeyboardButton
	if page > 0 {
		row = append(row, inlineButton("⬅️", fmt.Sprintf("%s%d", callbackChats, page-1)))
	}
	row = append(row, inlineButton(fmt.Sprintf("%d/%d", page+1, totalPages), "noop"))
	if page < totalPages-1 {
		row = append(row, inlineButton("➡️", fmt.Sprintf("%s%d", callbackChats, page+1)))
	}
	return row
}

// chatsPage renders one page of the session list with a button per session.
// The current session is marked.
func chatsPage(sessions []*domain.ChatSession, current *domain.ChatSession, page int) (string, *models.InlineKeyboardMarkup) {
	if len(sessions) == 0 {
		return "📂 No chats yet. Send a message to start one.", nil
	}

	totalPages := (len(sessions) + chatsPerPage - 1) / chatsPerPage
	page = max(0, min(page, totalPages-1))
	from := page * chatsPerPage
	to := min(from+chatsPerPage, len(sessions))

	var sb strings.Builder
	fmt.Fprintf(&sb, "📂 *Chats* (%d)\n", len(sessions))

	var rows [][]models.InlineKeyboardButton
	for _, s := range sessions[from:to] {
		label := truncate(s.Title, 40)
		if current != nil && s.ID == current.ID {
			label = "✅ " + label
		}
		rows = append(rows, []models.InlineKeyboardButton{inlineButton(label, callbackChat+s.ID.String())})
	}
	if totalPages > 1 {
		rows = append(rows, paginationRow(page, totalPages))
	}
	return sb.String(), &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

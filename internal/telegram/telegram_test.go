package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/orchestrator"
)

func TestSplitMessage(t *testing.T) {
	t.Run("short text is one part", func(t *testing.T) {
		assert.Equal(t, []string{"hello"}, SplitMessage("hello", 10))
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		text := strings.Repeat("ж", 10)
		parts := SplitMessage(text, 4)
		require.Len(t, parts, 3)
		for _, p := range parts {
			assert.LessOrEqual(t, utf8.RuneCountInString(p), 4)
		}
		assert.Equal(t, text, strings.Join(parts, ""))
	})

	t.Run("prefers newline in second half", func(t *testing.T) {
		text := "aaaaaaa\nbbbbbbbbbb"
		parts := SplitMessage(text, 10)
		require.Len(t, parts, 2)
		assert.Equal(t, "aaaaaaa\n", parts[0])
		assert.Equal(t, "bbbbbbbbbb", parts[1])
	})

	t.Run("ignores newline in first half", func(t *testing.T) {
		parts := SplitMessage("a\nbbbbbbbbbbbb", 10)
		assert.Equal(t, "a\nbbbbbbbb", parts[0])
	})

	t.Run("multibyte text with newline", func(t *testing.T) {
		text := "привет мир\n" + strings.Repeat("я", 20)
		parts := SplitMessage(text, 15)
		assert.Equal(t, "привет мир\n", parts[0])
		assert.Equal(t, text, strings.Join(parts, ""))
	})
}

func TestFixMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"balanced", "use `x` here", "use `x` here"},
		{"open inline", "use `x here", "use `x here`"},
		{"open fence", "```go\nfmt.Println()", "```go\nfmt.Println()\n```"},
		{"backtick inside fence", "```\na ` b\n```", "```\na ` b\n```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FixMarkdown(tt.in))
		})
	}
}

func TestLegacyMarkdown(t *testing.T) {
	in := "# Title\n**bold** and __under__\n```\n**kept**\n```\n#tag"
	want := "*Title*\n*bold* and _under_\n```\n**kept**\n```\n#tag"
	assert.Equal(t, want, LegacyMarkdown(in))
}

func TestChatsPage(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		text, kb := chatsPage(nil, nil, 0)
		assert.Contains(t, text, "No chats yet")
		assert.Nil(t, kb)
	})

	t.Run("marks current and paginates", func(t *testing.T) {
		var sessions []*domain.ChatSession
		for range chatsPerPage + 2 {
			s := &domain.ChatSession{Title: "chat"}
			s.ID = uuid.New()
			sessions = append(sessions, s)
		}
		text, kb := chatsPage(sessions, sessions[0], 0)
		assert.Contains(t, text, "(10)")
		require.NotNil(t, kb)
		require.Len(t, kb.InlineKeyboard, chatsPerPage+1)
		assert.Equal(t, "✅ chat", kb.InlineKeyboard[0][0].Text)
		assert.Equal(t, callbackChat+sessions[0].ID.String(), kb.InlineKeyboard[0][0].CallbackData)

		nav := kb.InlineKeyboard[chatsPerPage]
		require.Len(t, nav, 2)
		assert.Equal(t, "1/2", nav[0].Text)
		assert.Equal(t, callbackChats+"1", nav[1].CallbackData)

		_, kb = chatsPage(sessions, nil, 5)
		require.Len(t, kb.InlineKeyboard, 3)
		assert.Equal(t, callbackChats+"0", kb.InlineKeyboard[2][0].CallbackData)
	})
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "абв…", truncate("абвгде", 4))
}

func TestReplyText(t *testing.T) {
	assert.Empty(t, replyText(nil))
	assert.Equal(t, "hi", replyText(&orchestrator.Result{Content: "hi"}))
	assert.Contains(t, replyText(&orchestrator.Result{Canceled: true}), "stopped")
	assert.Contains(t, replyText(&orchestrator.Result{}), "empty answer")

	f := &orchestrator.Failure{Category: domain.CategoryTimeout, Text: "The request timed out."}
	got := replyText(&orchestrator.Result{Content: "partial", Failure: f})
	assert.Contains(t, got, "The request timed out.")
}

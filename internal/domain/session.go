package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const DefaultChatTitle = "New Chat"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

type PartType string

const (
	PartText           PartType = "text"
	PartReasoning      PartType = "reasoning"
	PartToolInvocation PartType = "tool-invocation"
	PartError          PartType = "error"
)

// Part is one element of a message's structured content.
type Part struct {
	Type       PartType        `json:"type"`
	Text       string          `json:"text,omitempty"`
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	Category   ErrorCategory   `json:"category,omitempty"`
}

type Message struct {
	ID        uuid.UUID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Parts     []Part    `json:"parts,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Usage     *Usage    `json:"usage,omitempty"`
}

// NewMessage builds a message with a fresh id and a single text part.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.New(),
		Role:      role,
		Content:   content,
		Parts:     []Part{{Type: PartText, Text: content}},
		CreatedAt: time.Now().UTC(),
	}
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	if m.Parts != nil {
		parts := make([]Part, len(m.Parts))
		copy(parts, m.Parts)
		m.Parts = parts
	}
	if m.Usage != nil {
		u := *m.Usage
		m.Usage = &u
	}
	return m
}

type ChatSession struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"did"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Messages  []Message `json:"messages"`
}

// Clone returns a deep copy of the session.
func (s *ChatSession) Clone() *ChatSession {
	c := *s
	c.Messages = CloneMessages(s.Messages)
	return &c
}

// FirstUserMessage returns the first message with the user role.
func (s *ChatSession) FirstUserMessage() (Message, bool) {
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			return m, true
		}
	}
	return Message{}, false
}

func CloneMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// StreamRecord lets a disconnected client re-attach to an in-flight stream.
type StreamRecord struct {
	ID        uuid.UUID `json:"id"`
	ChatID    uuid.UUID `json:"chatId"`
	OwnerID   string    `json:"did"`
	CreatedAt time.Time `json:"createdAt"`
}

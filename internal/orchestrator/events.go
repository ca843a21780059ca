package orchestrator

import (
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/streamhub"
)

type EventType string

const (
	EventStart          EventType = "start"
	EventTextDelta      EventType = "text-delta"
	EventReasoning      EventType = "reasoning"
	EventToolCall       EventType = "tool-call"
	EventToolResult     EventType = "tool-result"
	EventArtifactStart  EventType = "artifact-start"
	EventArtifactDelta  EventType = "artifact-delta"
	EventObjectDelta    EventType = "object-delta"
	EventArtifactFinish EventType = "artifact-finish"
	EventSuggestion     EventType = "suggestion"
	EventError          EventType = "error"
	EventFinish         EventType = "finish"
)

// Event is one item of the stream a client sees for a request. Finish is
// always the last event. Artifact deltas carry either an appended Text or a
// full Content snapshot, depending on the document kind.
type Event struct {
	Type         EventType            `json:"type"`
	MessageID    *uuid.UUID           `json:"messageId,omitempty"`
	Text         string               `json:"text,omitempty"`
	Content      string               `json:"content,omitempty"`
	ToolCallID   string               `json:"toolCallId,omitempty"`
	ToolName     string               `json:"toolName,omitempty"`
	Args         json.RawMessage      `json:"args,omitempty"`
	Result       json.RawMessage      `json:"result,omitempty"`
	DocumentID   *uuid.UUID           `json:"documentId,omitempty"`
	Kind         domain.Kind          `json:"kind,omitempty"`
	Title        string               `json:"title,omitempty"`
	Object       json.RawMessage      `json:"object,omitempty"`
	Suggestion   *domain.Suggestion   `json:"suggestion,omitempty"`
	Category     domain.ErrorCategory `json:"category,omitempty"`
	FinishReason string               `json:"finishReason,omitempty"`
	Usage        *domain.Usage        `json:"usage,omitempty"`
}

type Sink interface {
	Emit(Event)
}

type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) {
	f(ev)
}

type discard struct{}

func (discard) Emit(Event) {}

// hubSink publishes events as frames of a resumable stream.
type hubSink struct {
	stream *streamhub.Stream
}

func (s hubSink) Emit(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to encode stream event", "type", ev.Type, "error", err)
		return
	}
	s.stream.Publish(string(ev.Type), data)
}

func idRef(id uuid.UUID) *uuid.UUID {
	return &id
}

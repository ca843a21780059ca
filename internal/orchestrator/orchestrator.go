package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/mindcanvas/internal/config"
	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/llm"
	"github.com/set-night/mindcanvas/internal/service"
	"github.com/set-night/mindcanvas/internal/streamhub"
)

// Model is the language model backend. *llm.Client implements it.
type Model interface {
	Stream(ctx context.Context, req llm.Request, fn func(llm.Event) error) error
	GenerateImage(ctx context.Context, req llm.ImageRequest) (string, error)
}

// ChatStore is the part of the chat store a generation writes to.
type ChatStore interface {
	GetMessages(sessionID uuid.UUID) ([]domain.Message, error)
	UpdateMessages(sessionID uuid.UUID, msgs []domain.Message) (bool, error)
	AppendMessage(sessionID uuid.UUID, msg domain.Message) error
	UpdateSingleMessage(sessionID, messageID uuid.UUID, upd service.MessageUpdate) error
	ListSessions() []*domain.ChatSession
	EnsureTitle(sessionID uuid.UUID)
	CreateStreamID(streamID, chatID uuid.UUID)
}

// DocumentStore is the part of the document store the tools write to.
type DocumentStore interface {
	CreateDocumentWithID(id uuid.UUID, title string, kind domain.Kind, content *string) *domain.Document
	GetDocument(id uuid.UUID) (*domain.Document, error)
	UpdateDocument(id uuid.UUID, upd service.DocumentUpdate) (*domain.Document, error)
	CreateSuggestion(documentID uuid.UUID, original, suggested, description string) uuid.UUID
	GetSuggestion(id uuid.UUID) (*domain.Suggestion, error)
	SetArtifact(fn func(cur domain.UIArtifact) domain.UIArtifact) domain.UIArtifact
}

// Stores are the stores of the identity a request runs for.
type Stores struct {
	Owner     string
	Chats     ChatStore
	Documents DocumentStore
	// Release, when set, is called once a background generation is over.
	Release func()
}

func StoresFor(ws *service.Workspace) Stores {
	return Stores{Owner: ws.Owner, Chats: ws.Chats, Documents: ws.Documents}
}

// Hints describe where a request comes from. All fields are optional.
type Hints struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	City      string   `json:"city,omitempty"`
	Country   string   `json:"country,omitempty"`
	Timezone  string   `json:"timezone,omitempty"`
	Locale    string   `json:"locale,omitempty"`
}

func (h Hints) prompt() string {
	var lines []string
	if h.Latitude != nil {
		lines = append(lines, "- lat: "+strconv.FormatFloat(*h.Latitude, 'f', -1, 64))
	}
	if h.Longitude != nil {
		lines = append(lines, "- lon: "+strconv.FormatFloat(*h.Longitude, 'f', -1, 64))
	}
	if h.City != "" {
		lines = append(lines, "- city: "+h.City)
	}
	if h.Country != "" {
		lines = append(lines, "- country: "+h.Country)
	}
	if h.Timezone != "" {
		lines = append(lines, "- timezone: "+h.Timezone)
	}
	if h.Locale != "" {
		lines = append(lines, "- locale: "+h.Locale)
	}
	if len(lines) == 0 {
		return ""
	}
	return "About the origin of user's request:\n" + strings.Join(lines, "\n")
}

// Request is one user turn. History nil means the stored messages of the
// session are used.
type Request struct {
	SessionID uuid.UUID
	Message   domain.Message
	History   []domain.Message
	ModelID   string
	Hints     Hints
}

// Result summarizes a finished generation.
type Result struct {
	SessionID    uuid.UUID
	MessageID    uuid.UUID
	Content      string
	Reasoning    string
	FinishReason string
	Usage        domain.Usage
	Failure      *Failure
	Canceled     bool
}

type Options struct {
	Model         Model
	Catalog       *llm.Catalog
	Hub           *streamhub.Hub
	Weather       *WeatherClient
	Entitlements  Entitlements
	DefaultModel  string
	DeltaInterval time.Duration
}

type Orchestrator struct {
	model         Model
	catalog       *llm.Catalog
	hub           *streamhub.Hub
	weather       *WeatherClient
	entitlements  Entitlements
	defaultModel  string
	deltaInterval time.Duration
	now           func() time.Time
}

func New(opts Options) *Orchestrator {
	catalog := opts.Catalog
	if catalog == nil {
		catalog = llm.DefaultCatalog()
	}
	defaultModel := opts.DefaultModel
	if defaultModel == "" {
		defaultModel = "chat-model"
	}
	return &Orchestrator{
		model:         opts.Model,
		catalog:       catalog,
		hub:           opts.Hub,
		weather:       opts.Weather,
		entitlements:  opts.Entitlements,
		defaultModel:  defaultModel,
		deltaInterval: opts.DeltaInterval,
		now:           time.Now,
	}
}

// Start records a stream for the session and runs the generation in the
// background, detached from ctx. Clients follow it through the hub under the
// returned stream id.
func (o *Orchestrator) Start(ctx context.Context, stores Stores, req Request) (uuid.UUID, error) {
	release := stores.Release
	if release == nil {
		release = func() {}
	}
	if o.hub == nil {
		release()
		return uuid.Nil, errors.New("stream hub not configured")
	}
	if req.SessionID == uuid.Nil {
		release()
		return uuid.Nil, fmt.Errorf("start generation: %w", domain.ErrSessionNotFound)
	}

	streamID := uuid.New()
	stores.Chats.CreateStreamID(streamID, req.SessionID)

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), config.GenerationTimeout)
	stream := o.hub.Open(streamID, cancel)

	go func() {
		defer release()
		defer cancel()
		defer stream.Close()
		o.Send(runCtx, stores, req, hubSink{stream: stream})
	}()
	return streamID, nil
}

// Send runs one user turn to completion. The user message is recorded
// before the model is called, deltas are applied to the assistant message as
// they arrive, and any failure ends up as an error message in the chat.
// A canceled ctx stops the generation and leaves what was applied so far.
func (o *Orchestrator) Send(ctx context.Context, stores Stores, req Request, sink Sink) *Result {
	if sink == nil {
		sink = discard{}
	}
	r := &run{
		o:      o,
		stores: stores,
		req:    req,
		sink:   sink,
		res:    &Result{SessionID: req.SessionID},
		msgID:  uuid.New(),
	}
	r.batch = newDeltaBatcher(o.deltaInterval, r.applyContent)

	sink.Emit(Event{Type: EventStart, MessageID: idRef(r.msgID)})

	err := r.execute(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		r.batch.Flush()
		r.res.Canceled = true
		slog.Info("generation canceled", "session_id", req.SessionID, "did", stores.Owner)
	default:
		r.batch.Flush()
		f := classify(err)
		r.res.Failure = f
		slog.Error("generation failed", "session_id", req.SessionID, "category", f.Category, "error", err)
		r.recordFailure(f)
		sink.Emit(Event{Type: EventError, Text: f.Format(), Category: f.Category})
	}

	r.res.Content = r.batch.Content()
	r.res.Reasoning = r.reasoning.String()
	usage := r.res.Usage
	sink.Emit(Event{Type: EventFinish, MessageID: idRef(r.msgID), FinishReason: r.res.FinishReason, Usage: &usage})
	return r.res
}

// run is the state of one Send call.
type run struct {
	o      *Orchestrator
	stores Stores
	req    Request
	sink   Sink
	res    *Result

	msgID     uuid.UUID
	appended  bool
	batch     *deltaBatcher
	reasoning strings.Builder
	tools     []domain.Part
}

func (r *run) execute(ctx context.Context) error {
	sid := r.req.SessionID
	if sid == uuid.Nil {
		return newFailure(domain.CategoryValidation, "A chat is required to send a message.", domain.ErrSessionNotFound)
	}

	user := r.req.Message
	text := strings.TrimSpace(messageText(user))
	if text == "" {
		return newFailure(domain.CategoryValidation, "Message cannot be empty.", domain.ErrEmptyMessage)
	}
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Role = domain.RoleUser
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.o.now().UTC()
	}
	if len(user.Parts) == 0 {
		user.Parts = []domain.Part{{Type: domain.PartText, Text: user.Content}}
	}

	var history []domain.Message
	if r.req.History != nil {
		history = withMessage(r.req.History, user)
		if _, err := r.stores.Chats.UpdateMessages(sid, history); err != nil {
			return newFailure(domain.CategoryStorage, "", err)
		}
	} else {
		if err := r.stores.Chats.AppendMessage(sid, user); err != nil {
			return newFailure(domain.CategoryStorage, "", err)
		}
		msgs, err := r.stores.Chats.GetMessages(sid)
		if err != nil {
			return newFailure(domain.CategoryStorage, "", err)
		}
		// Another turn on the same chat may have appended after us.
		history = throughMessage(msgs, user.ID)
	}

	modelID := r.req.ModelID
	if modelID == "" {
		modelID = r.o.defaultModel
	}
	if err := r.o.entitlements.check(r.stores.Chats.ListSessions(), modelID, r.o.now()); err != nil {
		return err
	}
	spec, err := r.o.catalog.Lookup(modelID)
	if err != nil {
		return newFailure(domain.CategoryValidation, fmt.Sprintf("Unknown model %q.", modelID), err)
	}
	if spec.Kind != llm.KindChat {
		return newFailure(domain.CategoryValidation, fmt.Sprintf("The model %q cannot chat.", modelID),
			fmt.Errorf("%w: %s is not a chat model", domain.ErrModelNotAvailable, modelID))
	}
	if r.o.model == nil {
		return llm.ErrNotConfigured
	}

	var tools []llm.Tool
	if !spec.Reasoning {
		tools = toolsFor(spec)
	}
	withArtifacts := spec.HasTool(toolCreateDocument) || spec.HasTool(toolUpdateDocument)

	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: string(domain.RoleSystem), Content: systemPrompt(withArtifacts && !spec.Reasoning, r.req.Hints)})
	msgs = append(msgs, toLLMMessages(history)...)

	var splitter llm.ThinkSplitter
	for step := 0; step < config.MaxSteps; step++ {
		var stepText strings.Builder
		var calls []llm.ToolCall

		err := r.o.model.Stream(ctx, llm.Request{
			Model:    spec.Provider,
			Messages: msgs,
			Tools:    tools,
			DID:      r.stores.Owner,
		}, func(ev llm.Event) error {
			switch ev.Type {
			case llm.EventTextDelta:
				stepText.WriteString(ev.Text)
				if spec.Reasoning {
					reasoning, answer := splitter.Push(ev.Text)
					r.addReasoning(reasoning)
					r.addText(answer)
				} else {
					r.addText(ev.Text)
				}
			case llm.EventReasoning:
				r.addReasoning(ev.Text)
			case llm.EventToolCall:
				calls = append(calls, *ev.ToolCall)
			case llm.EventFinish:
				r.res.FinishReason = ev.FinishReason
				if ev.Usage != nil {
					r.res.Usage = r.res.Usage.Add(*ev.Usage)
				}
			}
			return ctx.Err()
		})
		if err != nil {
			return err
		}
		if len(calls) == 0 {
			break
		}

		msgs = append(msgs, llm.Message{Role: string(domain.RoleAssistant), Content: stepText.String(), ToolCalls: calls})
		for _, call := range calls {
			result, err := r.runTool(ctx, call)
			if err != nil {
				return err
			}
			msgs = append(msgs, llm.Message{Role: string(domain.RoleTool), ToolCallID: call.ID, Content: string(result)})
		}
	}

	reasoning, answer := splitter.Flush()
	r.addReasoning(reasoning)
	r.addText(answer)

	r.finalize()
	return nil
}

func (r *run) addText(delta string) {
	if delta == "" {
		return
	}
	r.batch.Append(delta)
	r.sink.Emit(Event{Type: EventTextDelta, MessageID: idRef(r.msgID), Text: delta})
}

func (r *run) addReasoning(delta string) {
	if delta == "" {
		return
	}
	r.reasoning.WriteString(delta)
	r.sink.Emit(Event{Type: EventReasoning, MessageID: idRef(r.msgID), Text: delta})
}

// parts builds the structured content of the assistant message.
func (r *run) parts(content string) []domain.Part {
	var parts []domain.Part
	if s := strings.TrimSpace(r.reasoning.String()); s != "" {
		parts = append(parts, domain.Part{Type: domain.PartReasoning, Text: s})
	}
	parts = append(parts, r.tools...)
	if content != "" {
		parts = append(parts, domain.Part{Type: domain.PartText, Text: content})
	}
	return parts
}

func (r *run) applyContent(content string) {
	if !r.appended {
		r.appendAssistant(content)
		return
	}
	c := content
	err := r.stores.Chats.UpdateSingleMessage(r.req.SessionID, r.msgID, service.MessageUpdate{Content: &c, Parts: r.parts(content)})
	if err != nil {
		slog.Warn("failed to apply assistant delta", "session_id", r.req.SessionID, "error", err)
	}
}

func (r *run) appendAssistant(content string) {
	// A chat deleted mid-generation stays deleted.
	if _, err := r.stores.Chats.GetMessages(r.req.SessionID); err != nil {
		slog.Warn("failed to append assistant message", "session_id", r.req.SessionID, "error", err)
		return
	}
	msg := domain.Message{
		ID:        r.msgID,
		Role:      domain.RoleAssistant,
		Content:   content,
		Parts:     r.parts(content),
		CreatedAt: r.o.now().UTC(),
	}
	if err := r.stores.Chats.AppendMessage(r.req.SessionID, msg); err != nil {
		slog.Warn("failed to append assistant message", "session_id", r.req.SessionID, "error", err)
		return
	}
	r.appended = true
}

func (r *run) finalize() {
	r.batch.Flush()
	content := r.batch.Content()
	if !r.appended {
		r.appendAssistant(content)
	}
	if r.appended {
		usage := r.res.Usage
		err := r.stores.Chats.UpdateSingleMessage(r.req.SessionID, r.msgID, service.MessageUpdate{
			Content: &content,
			Parts:   r.parts(content),
			Usage:   &usage,
		})
		if err != nil {
			slog.Warn("failed to finalize assistant message", "session_id", r.req.SessionID, "error", err)
		}
		r.res.MessageID = r.msgID
	}
	r.stores.Chats.EnsureTitle(r.req.SessionID)
}

func (r *run) recordFailure(f *Failure) {
	if _, err := r.stores.Chats.GetMessages(r.req.SessionID); err != nil {
		slog.Warn("failed to record error message", "session_id", r.req.SessionID, "error", err)
		return
	}
	if err := r.stores.Chats.AppendMessage(r.req.SessionID, f.Message()); err != nil {
		slog.Warn("failed to record error message", "session_id", r.req.SessionID, "error", err)
	}
}

// withMessage appends m unless the list already holds its id.
func withMessage(msgs []domain.Message, m domain.Message) []domain.Message {
	out := domain.CloneMessages(msgs)
	for i := range out {
		if out[i].ID == m.ID {
			out[i] = m
			return out
		}
	}
	return append(out, m)
}

// throughMessage cuts msgs after the message with the given id.
func throughMessage(msgs []domain.Message, id uuid.UUID) []domain.Message {
	for i, m := range msgs {
		if m.ID == id {
			return msgs[:i+1]
		}
	}
	return msgs
}

// toLLMMessages converts chat history to provider messages. Error messages
// and reasoning stay out of the context.
func toLLMMessages(msgs []domain.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		if isErrorMessage(m) {
			continue
		}
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			continue
		}
		text := messageText(m)
		if text == "" {
			continue
		}
		out = append(out, llm.Message{Role: string(m.Role), Content: text})
	}
	return out
}

func isErrorMessage(m domain.Message) bool {
	for _, p := range m.Parts {
		if p.Type == domain.PartError {
			return true
		}
	}
	return false
}

func messageText(m domain.Message) string {
	if m.Content != "" {
		return m.Content
	}
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == domain.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

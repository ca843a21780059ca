package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/set-night/mindcanvas/internal/config"
	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/llm"
)

const (
	toolGetWeather         = "getWeather"
	toolCreateDocument     = "createDocument"
	toolUpdateDocument     = "updateDocument"
	toolRequestSuggestions = "requestSuggestions"
)

// toolHandler returns the value handed back to the model. Bad input is
// reported in the value; a returned error aborts the whole generation.
type toolHandler func(ctx context.Context, r *run, args json.RawMessage) (any, error)

type toolDef struct {
	description string
	parameters  string
	handle      toolHandler
}

var toolDefs = map[string]toolDef{
	toolGetWeather: {
		description: "Get the current weather at a location",
		parameters: `{"type":"object","properties":{` +
			`"latitude":{"type":"number"},` +
			`"longitude":{"type":"number"}},` +
			`"required":["latitude","longitude"]}`,
		handle: getWeather,
	},
	toolCreateDocument: {
		description: "Create a document for a writing or content creation activities. This tool will call other functions that will generate the contents of the document based on the title and kind.",
		parameters: `{"type":"object","properties":{` +
			`"title":{"type":"string"},` +
			`"kind":{"type":"string","enum":["text","code","image","sheet"]}},` +
			`"required":["title","kind"]}`,
		handle: createDocument,
	},
	toolUpdateDocument: {
		description: "Update a document with the given description.",
		parameters: `{"type":"object","properties":{` +
			`"id":{"type":"string","description":"The ID of the document to update"},` +
			`"description":{"type":"string","description":"The description of changes that need to be made"}},` +
			`"required":["id","description"]}`,
		handle: updateDocument,
	},
	toolRequestSuggestions: {
		description: "Request suggestions for a document",
		parameters: `{"type":"object","properties":{` +
			`"documentId":{"type":"string","description":"The ID of the document to request edits"},` +
			`"selectedText":{"type":"string","description":"Specific text to focus suggestions on"},` +
			`"type":{"type":"string","enum":["grammar","style","content","structure","general"]}},` +
			`"required":["documentId"]}`,
		handle: requestSuggestions,
	},
}

// toolsFor lists the tool declarations enabled for a model.
func toolsFor(spec llm.ModelSpec) []llm.Tool {
	var out []llm.Tool
	for _, name := range spec.Tools {
		def, ok := toolDefs[name]
		if !ok {
			slog.Warn("unknown tool in model catalog", "model", spec.ID, "tool", name)
			continue
		}
		out = append(out, llm.Tool{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        name,
				Description: def.description,
				Parameters:  json.RawMessage(def.parameters),
			},
		})
	}
	return out
}

type errorResult struct {
	Error string `json:"error"`
}

var errDocumentNotFound = errorResult{Error: "Document not found"}

type documentResult struct {
	ID      uuid.UUID   `json:"id"`
	Title   string      `json:"title"`
	Kind    domain.Kind `json:"kind"`
	Content string      `json:"content"`
}

func (r *run) runTool(ctx context.Context, call llm.ToolCall) (json.RawMessage, error) {
	name := call.Function.Name
	args := json.RawMessage(strings.TrimSpace(call.Function.Arguments))
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	r.sink.Emit(Event{Type: EventToolCall, MessageID: idRef(r.msgID), ToolCallID: call.ID, ToolName: name, Args: args})

	var out any
	def, ok := toolDefs[name]
	switch {
	case !ok:
		out = errorResult{Error: fmt.Sprintf("Unknown tool %q", name)}
	case !json.Valid(args):
		out = errorResult{Error: "Invalid tool arguments"}
		args = json.RawMessage("{}")
	default:
		var err error
		out, err = def.handle(ctx, r, args)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", name, err)
		}
	}

	result, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", name, err)
	}

	r.tools = append(r.tools, domain.Part{
		Type:       domain.PartToolInvocation,
		ToolCallID: call.ID,
		ToolName:   name,
		Args:       args,
		Result:     result,
	})
	r.sink.Emit(Event{Type: EventToolResult, MessageID: idRef(r.msgID), ToolCallID: call.ID, ToolName: name, Result: result})
	return result, nil
}

func getWeather(ctx context.Context, r *run, raw json.RawMessage) (any, error) {
	var args struct {
		Latitude  *float64 `json:"latitude"`
		Longitude *float64 `json:"longitude"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult{Error: "Invalid arguments"}, nil
	}
	if args.Latitude == nil || args.Longitude == nil {
		args.Latitude, args.Longitude = r.req.Hints.Latitude, r.req.Hints.Longitude
	}
	if args.Latitude == nil || args.Longitude == nil {
		return errorResult{Error: "Latitude and longitude are required"}, nil
	}
	if r.o.weather == nil {
		return errorResult{Error: "Weather is not available"}, nil
	}

	forecast, err := r.o.weather.Forecast(ctx, *args.Latitude, *args.Longitude)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("failed to fetch weather", "error", err)
		return errorResult{Error: "Weather service unavailable"}, nil
	}
	return forecast, nil
}

func createDocument(ctx context.Context, r *run, raw json.RawMessage) (any, error) {
	var args struct {
		Title string `json:"title"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult{Error: "Invalid arguments"}, nil
	}
	title := strings.TrimSpace(args.Title)
	if title == "" {
		return errorResult{Error: "Title is required"}, nil
	}
	kind := domain.KindText
	if args.Kind != "" {
		k, err := domain.ParseKind(args.Kind)
		if err != nil {
			return errorResult{Error: fmt.Sprintf("Unsupported document kind %q", args.Kind)}, nil
		}
		kind = k
	}

	id := uuid.New()
	r.stores.Documents.CreateDocumentWithID(id, title, kind, nil)

	content, err := r.generateArtifact(ctx, artifactJob{
		docID:  id,
		title:  title,
		kind:   kind,
		system: generatorPrompt(kind),
		prompt: title,
	})
	if err != nil {
		return nil, err
	}
	if _, err := r.stores.Documents.UpdateDocument(id, documentContent(content)); err != nil {
		return errDocumentNotFound, nil
	}

	return documentResult{
		ID:      id,
		Title:   title,
		Kind:    kind,
		Content: "A document was created and is now visible to the user.",
	}, nil
}

func updateDocument(ctx context.Context, r *run, raw json.RawMessage) (any, error) {
	var args struct {
		ID          string `json:"id"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult{Error: "Invalid arguments"}, nil
	}
	id, err := uuid.Parse(args.ID)
	if err != nil {
		return errDocumentNotFound, nil
	}
	doc, err := r.stores.Documents.GetDocument(id)
	if err != nil {
		return errDocumentNotFound, nil
	}

	system := updateDocumentPrompt(doc.ContentString(), doc.Kind)
	if doc.Kind == domain.KindSheet {
		system += "\n\n" + sheetPrompt
	}
	content, err := r.generateArtifact(ctx, artifactJob{
		docID:  id,
		title:  doc.Title,
		kind:   doc.Kind,
		system: system,
		prompt: args.Description,
	})
	if err != nil {
		return nil, err
	}
	if _, err := r.stores.Documents.UpdateDocument(id, documentContent(content)); err != nil {
		return errDocumentNotFound, nil
	}

	return documentResult{
		ID:      id,
		Title:   doc.Title,
		Kind:    doc.Kind,
		Content: "The document has been updated successfully.",
	}, nil
}

type suggestionsResult struct {
	ID      uuid.UUID   `json:"id"`
	Title   string      `json:"title"`
	Kind    domain.Kind `json:"kind"`
	Count   int         `json:"count"`
	Message string      `json:"message"`
}

func requestSuggestions(ctx context.Context, r *run, raw json.RawMessage) (any, error) {
	var args struct {
		DocumentID   string `json:"documentId"`
		SelectedText string `json:"selectedText"`
		Type         string `json:"type"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return errorResult{Error: "Invalid arguments"}, nil
	}
	id, err := uuid.Parse(args.DocumentID)
	if err != nil {
		return errDocumentNotFound, nil
	}
	doc, err := r.stores.Documents.GetDocument(id)
	if err != nil {
		return errDocumentNotFound, nil
	}
	if doc.Kind == domain.KindImage {
		return errorResult{Error: "Suggestions are not available for images"}, nil
	}

	prompt := doc.ContentString()
	if args.SelectedText != "" {
		prompt = "Focus on this part of the text:\n" + args.SelectedText + "\n\nFull text:\n" + prompt
	}
	if args.Type != "" && args.Type != "general" {
		prompt = "Suggest " + args.Type + " improvements.\n\n" + prompt
	}

	var buf strings.Builder
	err = r.streamArtifactModel(ctx, fmt.Sprintf(suggestionsPrompt, config.MaxSuggestions), prompt, llm.JSONObject,
		func(delta string) { buf.WriteString(delta) })
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Suggestions []struct {
			OriginalSentence  string `json:"originalSentence"`
			SuggestedSentence string `json:"suggestedSentence"`
			Description       string `json:"description"`
		} `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(buf.String()), &parsed); err != nil {
		slog.Warn("failed to parse suggestions", "document_id", id, "error", err)
		return errorResult{Error: "Could not generate suggestions"}, nil
	}

	count := 0
	for _, s := range parsed.Suggestions {
		if count == config.MaxSuggestions {
			break
		}
		if strings.TrimSpace(s.OriginalSentence) == "" {
			continue
		}
		sid := r.stores.Documents.CreateSuggestion(id, s.OriginalSentence, s.SuggestedSentence, s.Description)
		count++
		sg, err := r.stores.Documents.GetSuggestion(sid)
		if err != nil {
			continue
		}
		r.sink.Emit(Event{Type: EventSuggestion, DocumentID: idRef(id), Suggestion: sg})
	}

	return suggestionsResult{
		ID:      id,
		Title:   doc.Title,
		Kind:    doc.Kind,
		Count:   count,
		Message: "Suggestions have been added to the document",
	}, nil
}

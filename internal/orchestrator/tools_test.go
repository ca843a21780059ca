package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/llm"
)

func toolPart(t *testing.T, msg domain.Message, name string) domain.Part {
	t.Helper()
	for _, p := range msg.Parts {
		if p.Type == domain.PartToolInvocation && p.ToolName == name {
			return p
		}
	}
	t.Fatalf("no %s invocation in message", name)
	return domain.Part{}
}

func TestCreateDocumentText(t *testing.T) {
	ws := newWorkspace(t)
	sid := uuid.New()
	model := &fakeModel{scripts: []script{
		toolReply("call-1", toolCreateDocument, `{"title":"Roses","kind":"text"}`),
		textReply("Roses are red", ", violets are blue"),
		textReply("I wrote a poem."),
	}}
	o := newOrchestrator(model)
	rec := &recorder{}

	res := o.Send(context.Background(), StoresFor(ws), userRequest(sid, "write a poem"), rec)
	require.Nil(t, res.Failure)
	assert.Equal(t, "I wrote a poem.", res.Content)

	docs := ws.Documents.ListDocuments()
	require.Len(t, docs, 1)
	doc := docs[0]
	assert.Equal(t, "Roses", doc.Title)
	assert.Equal(t, domain.KindText, doc.Kind)
	assert.Equal(t, "Roses are red, violets are blue", doc.ContentString())

	versions, err := ws.Documents.Versions(doc.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)

	art := ws.Documents.Artifact()
	assert.Equal(t, doc.ID.String(), art.DocumentID)
	assert.Equal(t, domain.StatusIdle, art.Status)
	assert.True(t, art.IsVisible)
	assert.Equal(t, doc.ContentString(), art.Content)

	msgs, err := ws.Chats.GetMessages(sid)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	part := toolPart(t, msgs[1], toolCreateDocument)
	var result documentResult
	require.NoError(t, json.Unmarshal(part.Result, &result))
	assert.Equal(t, doc.ID, result.ID)
	assert.Equal(t, "A document was created and is now visible to the user.", result.Content)

	assert.Len(t, rec.Of(EventArtifactStart), 1)
	assert.Len(t, rec.Of(EventArtifactDelta), 2)
	assert.Len(t, rec.Of(EventArtifactFinish), 1)
	assert.Len(t, rec.Of(EventToolResult), 1)

	// the tool result is handed back to the model
	reqs := model.Requests()
	require.Len(t, reqs, 3)
	last := reqs[2].Messages
	assert.Equal(t, "tool", last[len(last)-1].Role)
	assert.Equal(t, "call-1", last[len(last)-1].ToolCallID)
}

func TestCreateDocumentCodeStripsFences(t *testing.T) {
	ws := newWorkspace(t)
	model := &fakeModel{scripts: []script{
		toolReply("c", toolCreateDocument, `{"title":"Hello","kind":"code"}`),
		textReply("```python\n", "print('hi')\n", "```"),
		textReply("done"),
	}}
	o := newOrchestrator(model)

	res := o.Send(context.Background(), StoresFor(ws), userRequest(uuid.New(), "code please"), nil)
	require.Nil(t, res.Failure)

	docs := ws.Documents.ListDocuments()
	require.Len(t, docs, 1)
	assert.Equal(t, "print('hi')", docs[0].ContentString())
}

func TestCreateDocumentSheet(t *testing.T) {
	ws := newWorkspace(t)
	model := &fakeModel{scripts: []script{
		toolReply("s", toolCreateDocument, `{"title":"Budget","kind":"sheet"}`),
		textReply(`{"csv": "a,b`, `\n1,2`, `"}`),
		textReply("done"),
	}}
	o := newOrchestrator(model)
	rec := &recorder{}

	res := o.Send(context.Background(), StoresFor(ws), userRequest(uuid.New(), "sheet"), rec)
	require.Nil(t, res.Failure)

	docs := ws.Documents.ListDocuments()
	require.Len(t, docs, 1)
	assert.Equal(t, "a,b\n1,2", docs[0].ContentString())

	objs := rec.Of(EventObjectDelta)
	require.Len(t, objs, 2)
	assert.JSONEq(t, `{"csv":"a,b"}`, string(objs[0].Object))
	assert.JSONEq(t, `{"csv":"a,b\n1,2"}`, string(objs[1].Object))

	reqs := model.Requests()
	require.NotNil(t, reqs[1].ResponseFormat)
	assert.Equal(t, "json_object", reqs[1].ResponseFormat.Type)
}

func TestCreateDocumentImage(t *testing.T) {
	ws := newWorkspace(t)
	model := &fakeModel{
		scripts: []script{
			toolReply("i", toolCreateDocument, `{"title":"A cat","kind":"image"}`),
			textReply("here"),
		},
		image: "aW1hZ2U=",
	}
	o := newOrchestrator(model)

	res := o.Send(context.Background(), StoresFor(ws), userRequest(uuid.New(), "draw"), nil)
	require.Nil(t, res.Failure)

	docs := ws.Documents.ListDocuments()
	require.Len(t, docs, 1)
	assert.Equal(t, "aW1hZ2U=", docs[0].ContentString())
	assert.Equal(t, "openai/gpt-image-1", model.Requests()[1].Model)
}

func TestCreateDocumentGenerationFailure(t *testing.T) {
	ws := newWorkspace(t)
	sid := uuid.New()
	model := &fakeModel{scripts: []script{
		toolReply("c", toolCreateDocument, `{"title":"Broken","kind":"text"}`),
		{events: []llm.Event{{Type: llm.EventTextDelta, Text: "half"}}, err: &llm.APIError{StatusCode: 500, Message: "boom"}},
	}}
	o := newOrchestrator(model)

	res := o.Send(context.Background(), StoresFor(ws), userRequest(sid, "write"), nil)

	require.NotNil(t, res.Failure)
	assert.Equal(t, domain.CategoryProvider, res.Failure.Category)
	assert.Equal(t, domain.StatusIdle, ws.Documents.Artifact().Status)
	assert.Equal(t, "half", ws.Documents.Artifact().Content)

	msgs, err := ws.Chats.GetMessages(sid)
	require.NoError(t, err)
	assert.True(t, isErrorMessage(msgs[len(msgs)-1]))
}

func TestCreateDocumentBadKind(t *testing.T) {
	ws := newWorkspace(t)
	sid := uuid.New()
	model := &fakeModel{scripts: []script{
		toolReply("c", toolCreateDocument, `{"title":"X","kind":"video"}`),
		textReply("sorry"),
	}}
	o := newOrchestrator(model)

	res := o.Send(context.Background(), StoresFor(ws), userRequest(sid, "video"), nil)
	require.Nil(t, res.Failure)
	assert.Empty(t, ws.Documents.ListDocuments())

	msgs, err := ws.Chats.GetMessages(sid)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Unsupported document kind \"video\""}`, string(toolPart(t, msgs[1], toolCreateDocument).Result))
}

func TestUpdateDocument(t *testing.T) {
	ws := newWorkspace(t)
	docID := uuid.New()
	initial := "old text"
	ws.Documents.CreateDocumentWithID(docID, "Essay", domain.KindText, &initial)

	model := &fakeModel{scripts: []script{
		toolReply("u", toolUpdateDocument, `{"id":"`+docID.String()+`","description":"make it new"}`),
		textReply("new ", "text"),
		textReply("updated"),
	}}
	o := newOrchestrator(model)

	res := o.Send(context.Background(), StoresFor(ws), userRequest(uuid.New(), "update it"), nil)
	require.Nil(t, res.Failure)

	doc, err := ws.Documents.GetDocument(docID)
	require.NoError(t, err)
	assert.Equal(t, "new text", doc.ContentString())

	versions, err := ws.Documents.Versions(docID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "old text", versions[0].Content)

	gen := model.Requests()[1]
	assert.Contains(t, gen.Messages[0].Content, "old text")
	assert.Equal(t, "make it new", gen.Messages[1].Content)
}

func TestUpdateDocumentNotFound(t *testing.T) {
	ws := newWorkspace(t)
	sid := uuid.New()
	model := &fakeModel{scripts: []script{
		toolReply("u", toolUpdateDocument, `{"id":"`+uuid.NewString()+`","description":"x"}`),
		textReply("could not find it"),
	}}
	o := newOrchestrator(model)

	res := o.Send(context.Background(), StoresFor(ws), userRequest(sid, "update"), nil)
	require.Nil(t, res.Failure)

	msgs, err := ws.Chats.GetMessages(sid)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Document not found"}`, string(toolPart(t, msgs[1], toolUpdateDocument).Result))
	assert.Len(t, model.Requests(), 2)
}

func TestRequestSuggestions(t *testing.T) {
	ws := newWorkspace(t)
	docID := uuid.New()
	content := "This are a test. It work fine."
	ws.Documents.CreateDocumentWithID(docID, "Notes", domain.KindText, &content)

	suggestions := `{"suggestions":[` +
		`{"originalSentence":"This are a test.","suggestedSentence":"This is a test.","description":"Subject-verb agreement"},` +
		`{"originalSentence":"It work fine.","suggestedSentence":"It works fine.","description":"Verb form"}]}`
	model := &fakeModel{scripts: []script{
		toolReply("r", toolRequestSuggestions, `{"documentId":"`+docID.String()+`"}`),
		textReply(suggestions[:40], suggestions[40:]),
		textReply("added suggestions"),
	}}
	o := newOrchestrator(model)
	rec := &recorder{}

	res := o.Send(context.Background(), StoresFor(ws), userRequest(uuid.New(), "review"), rec)
	require.Nil(t, res.Failure)

	stored := ws.Documents.SuggestionsByDocument(docID)
	require.Len(t, stored, 2)

	events := rec.Of(EventSuggestion)
	require.Len(t, events, 2)
	assert.Equal(t, "This are a test.", events[0].Suggestion.OriginalText)
	assert.Equal(t, "This is a test.", events[0].Suggestion.SuggestedText)
	assert.Equal(t, docID, *events[0].DocumentID)

	results := rec.Of(EventToolResult)
	require.Len(t, results, 1)
	var out suggestionsResult
	require.NoError(t, json.Unmarshal(results[0].Result, &out))
	assert.Equal(t, 2, out.Count)
	assert.Equal(t, "Suggestions have been added to the document", out.Message)
}

func TestGetWeather(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/forecast", r.URL.Path)
		assert.Equal(t, "52.52", r.URL.Query().Get("latitude"))
		assert.Equal(t, "13.41", r.URL.Query().Get("longitude"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"current":{"temperature_2m":21.5}}`))
	}))
	defer srv.Close()

	ws := newWorkspace(t)
	sid := uuid.New()
	model := &fakeModel{scripts: []script{
		toolReply("w", toolGetWeather, `{"latitude":52.52,"longitude":13.41}`),
		textReply("It is warm."),
	}}
	o := newOrchestrator(model, func(o *Options) { o.Weather = NewWeatherClient(srv.URL + "/") })

	res := o.Send(context.Background(), StoresFor(ws), userRequest(sid, "weather?"), nil)
	require.Nil(t, res.Failure)

	msgs, err := ws.Chats.GetMessages(sid)
	require.NoError(t, err)
	assert.JSONEq(t, `{"current":{"temperature_2m":21.5}}`, string(toolPart(t, msgs[1], toolGetWeather).Result))
}

func TestGetWeatherServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ws := newWorkspace(t)
	sid := uuid.New()
	model := &fakeModel{scripts: []script{
		toolReply("w", toolGetWeather, `{"latitude":1,"longitude":2}`),
		textReply("no weather"),
	}}
	o := newOrchestrator(model, func(o *Options) { o.Weather = NewWeatherClient(srv.URL) })

	res := o.Send(context.Background(), StoresFor(ws), userRequest(sid, "weather?"), nil)
	require.Nil(t, res.Failure)

	msgs, err := ws.Chats.GetMessages(sid)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Weather service unavailable"}`, string(toolPart(t, msgs[1], toolGetWeather).Result))
}

func TestUnknownToolIsReportedToModel(t *testing.T) {
	ws := newWorkspace(t)
	sid := uuid.New()
	model := &fakeModel{scripts: []script{
		toolReply("x", "launchRocket", `{}`),
		textReply("cannot do that"),
	}}
	o := newOrchestrator(model)

	res := o.Send(context.Background(), StoresFor(ws), userRequest(sid, "launch"), nil)
	require.Nil(t, res.Failure)

	msgs, err := ws.Chats.GetMessages(sid)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"Unknown tool \"launchRocket\""}`, string(toolPart(t, msgs[1], "launchRocket").Result))
}

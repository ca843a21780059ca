package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/llm"
	"github.com/set-night/mindcanvas/internal/service"
)

type artifactJob struct {
	docID  uuid.UUID
	title  string
	kind   domain.Kind
	system string
	prompt string
}

// generateArtifact streams new content for a document into the artifact
// panel and returns the final content. The artifact goes back to idle
// whether generation succeeds or not.
func (r *run) generateArtifact(ctx context.Context, job artifactJob) (string, error) {
	docID := job.docID.String()
	r.stores.Documents.SetArtifact(func(a domain.UIArtifact) domain.UIArtifact {
		a.DocumentID = docID
		a.Title = job.title
		a.Kind = job.kind
		a.Content = ""
		a.Status = domain.StatusStreaming
		a.IsVisible = true
		return a
	})
	r.sink.Emit(Event{Type: EventArtifactStart, DocumentID: idRef(job.docID), Kind: job.kind, Title: job.title})

	batch := newDeltaBatcher(r.o.deltaInterval, func(content string) {
		r.stores.Documents.SetArtifact(func(a domain.UIArtifact) domain.UIArtifact {
			if a.DocumentID == docID {
				a.Content = content
			}
			return a
		})
	})

	var err error
	switch job.kind {
	case domain.KindCode:
		err = r.generateCode(ctx, job, batch)
	case domain.KindSheet:
		err = r.generateSheet(ctx, job, batch)
	case domain.KindImage:
		err = r.generateImage(ctx, job, batch)
	default:
		err = r.generateText(ctx, job, batch)
	}
	batch.Flush()

	r.stores.Documents.SetArtifact(func(a domain.UIArtifact) domain.UIArtifact {
		if a.DocumentID == docID {
			a.Status = domain.StatusIdle
		}
		return a
	})
	if err != nil {
		return "", err
	}

	r.sink.Emit(Event{Type: EventArtifactFinish, DocumentID: idRef(job.docID), Kind: job.kind})
	return batch.Content(), nil
}

func (r *run) generateText(ctx context.Context, job artifactJob, batch *deltaBatcher) error {
	return r.streamArtifactModel(ctx, job.system, job.prompt, nil, func(delta string) {
		batch.Append(delta)
		r.sink.Emit(Event{Type: EventArtifactDelta, DocumentID: idRef(job.docID), Text: delta})
	})
}

func (r *run) generateCode(ctx context.Context, job artifactJob, batch *deltaBatcher) error {
	var raw strings.Builder
	return r.streamArtifactModel(ctx, job.system, job.prompt, nil, func(delta string) {
		raw.WriteString(delta)
		code := stripFences(raw.String())
		if code == batch.Content() {
			return
		}
		batch.Replace(code)
		r.sink.Emit(Event{Type: EventArtifactDelta, DocumentID: idRef(job.docID), Content: code})
	})
}

func (r *run) generateSheet(ctx context.Context, job artifactJob, batch *deltaBatcher) error {
	var raw strings.Builder
	err := r.streamArtifactModel(ctx, job.system, job.prompt, llm.JSONObject, func(delta string) {
		raw.WriteString(delta)
		csv, ok := partialStringField(raw.String(), "csv")
		if !ok || csv == batch.Content() {
			return
		}
		batch.Replace(csv)
		obj, _ := json.Marshal(struct {
			CSV string `json:"csv"`
		}{csv})
		r.sink.Emit(Event{Type: EventObjectDelta, DocumentID: idRef(job.docID), Object: obj})
	})
	if err != nil {
		return err
	}

	var final struct {
		CSV string `json:"csv"`
	}
	if json.Unmarshal([]byte(raw.String()), &final) == nil && final.CSV != "" {
		batch.Replace(final.CSV)
	}
	return nil
}

func (r *run) generateImage(ctx context.Context, job artifactJob, batch *deltaBatcher) error {
	spec, err := r.o.catalog.Lookup(llm.ImageModel)
	if err != nil {
		return err
	}
	b64, err := r.o.model.GenerateImage(ctx, llm.ImageRequest{
		Model:  spec.Provider,
		Prompt: job.prompt,
		DID:    r.stores.Owner,
	})
	if err != nil {
		return fmt.Errorf("generate image: %w", err)
	}
	batch.Replace(b64)
	r.sink.Emit(Event{Type: EventArtifactDelta, DocumentID: idRef(job.docID), Content: b64})
	return nil
}

// streamArtifactModel runs one prompt against the artifact model and feeds
// every text delta to onDelta. Usage is added to the reply's total.
func (r *run) streamArtifactModel(ctx context.Context, system, prompt string, format *llm.ResponseFormat, onDelta func(string)) error {
	spec, err := r.o.catalog.Lookup(llm.ArtifactModel)
	if err != nil {
		return err
	}
	req := llm.Request{
		Model: spec.Provider,
		Messages: []llm.Message{
			{Role: string(domain.RoleSystem), Content: system},
			{Role: string(domain.RoleUser), Content: prompt},
		},
		ResponseFormat: format,
		DID:            r.stores.Owner,
	}
	return r.o.model.Stream(ctx, req, func(ev llm.Event) error {
		switch ev.Type {
		case llm.EventTextDelta:
			onDelta(ev.Text)
		case llm.EventFinish:
			if ev.Usage != nil {
				r.res.Usage = r.res.Usage.Add(*ev.Usage)
			}
		}
		return ctx.Err()
	})
}

// stripFences removes a surrounding markdown code fence, also while the
// closing fence has not arrived yet.
func stripFences(s string) string {
	t := strings.TrimLeft(s, " \t\r\n")
	if !strings.HasPrefix(t, "```") {
		return s
	}
	nl := strings.IndexByte(t, '\n')
	if nl < 0 {
		return ""
	}
	t = t[nl+1:]
	if i := strings.LastIndex(t, "```"); i >= 0 {
		t = t[:i]
	}
	return strings.TrimRight(t, "\n")
}

func documentContent(content string) service.DocumentUpdate {
	return service.DocumentUpdate{Content: &content}
}

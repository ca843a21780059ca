package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const titleSystemPrompt = `
- you will generate a short title based on the first message a user begins a conversation with
- ensure it is not more than 80 characters long
- the title should be a summary of the user's message
- do not use quotes or colons`

type Completer interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// TitleGenerator asks the title model for a chat title.
type TitleGenerator struct {
	client  Completer
	catalog *Catalog
}

func NewTitleGenerator(client Completer, catalog *Catalog) *TitleGenerator {
	return &TitleGenerator{client: client, catalog: catalog}
}

func (g *TitleGenerator) GenerateTitle(ctx context.Context, firstMessage string) (string, error) {
	spec, err := g.catalog.Lookup(TitleModel)
	if err != nil {
		return "", err
	}

	resp, err := g.client.Complete(ctx, Request{
		Model: spec.Provider,
		Messages: []Message{
			{Role: "system", Content: titleSystemPrompt},
			{Role: "user", Content: firstMessage},
		},
	})
	if err != nil {
		return "", fmt.Errorf("title completion: %w", err)
	}
	return resp.Content, nil
}

// CleanTitle turns raw model output into a single-line title of at most
// maxLen runes. Markup, <think> blocks, quotes and colons are removed.
func CleanTitle(raw string, maxLen int) string {
	text := raw
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err == nil {
		doc.Find("think").Remove()
		text = doc.Text()
	}

	var line string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			line = l
			break
		}
	}

	line = strings.TrimLeft(line, "#>-* ")
	line = strings.NewReplacer(
		`"`, "", "'", "", "“", "", "”", "", "‘", "", "’", "", "`", "",
		"**", "", ":", "",
	).Replace(line)
	line = strings.Join(strings.Fields(line), " ")

	if maxLen > 0 && utf8.RuneCountInString(line) > maxLen {
		line = strings.TrimSpace(string([]rune(line)[:maxLen]))
	}
	return line
}

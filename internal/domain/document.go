package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindText  Kind = "text"
	KindCode  Kind = "code"
	KindImage Kind = "image"
	KindSheet Kind = "sheet"
)

var Kinds = []Kind{KindText, KindCode, KindImage, KindSheet}

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
}

type Document struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"did"`
	Title     string    `json:"title"`
	Content   *string   `json:"content"`
	Kind      Kind      `json:"kind"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (d *Document) Clone() *Document {
	c := *d
	if d.Content != nil {
		s := *d.Content
		c.Content = &s
	}
	return &c
}

// ContentString returns the content or an empty string when unset.
func (d *Document) ContentString() string {
	if d.Content == nil {
		return ""
	}
	return *d.Content
}

// DocumentVersion is an immutable snapshot of a document's content.
// Index is dense and 0-based per document.
type DocumentVersion struct {
	DocumentID uuid.UUID `json:"documentId"`
	Index      int       `json:"index"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Suggestion struct {
	ID            uuid.UUID `json:"id"`
	OwnerID       string    `json:"did"`
	DocumentID    uuid.UUID `json:"documentId"`
	OriginalText  string    `json:"originalText"`
	SuggestedText string    `json:"suggestedText"`
	Description   string    `json:"description"`
	IsResolved    bool      `json:"isResolved"`
	CreatedAt     time.Time `json:"createdAt"`
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/set-night/mindcanvas/internal/domain"
	"github.com/set-night/mindcanvas/internal/llm"
)

type severity int

const (
	severityInfo severity = iota
	severityWarning
	severityError
	severityCritical
)

func (s severity) header() string {
	switch s {
	case severityInfo:
		return "ℹ️ **Information**"
	case severityWarning:
		return "⚠️ **Warning**"
	case severityCritical:
		return "🚨 **Critical Error**"
	default:
		return "❌ **Error**"
	}
}

const persistHint = "*If this issue persists, please check your internet connection or try refreshing the page.*"

// Failure is a classified error ready to be shown in the chat.
type Failure struct {
	Category domain.ErrorCategory
	Text     string
	Err      error
	level    severity
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Category, f.Err)
	}
	return string(f.Category) + ": " + f.Text
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Format renders the chat text of the failure.
func (f *Failure) Format() string {
	return f.level.header() + ": " + f.Text + "\n\n" + persistHint
}

// Message builds the assistant message that records the failure in the chat.
func (f *Failure) Message() domain.Message {
	text := f.Format()
	return domain.Message{
		ID:        uuid.New(),
		Role:      domain.RoleAssistant,
		Content:   text,
		Parts:     []domain.Part{{Type: domain.PartError, Text: text, Category: f.Category}},
		CreatedAt: time.Now().UTC(),
	}
}

func newFailure(category domain.ErrorCategory, text string, err error) *Failure {
	f := &Failure{Category: category, Text: text, Err: err, level: severityError}
	switch category {
	case domain.CategoryTimeout, domain.CategoryValidation, domain.CategoryNotFound,
		domain.CategoryStorage, domain.CategoryRateLimit:
		f.level = severityWarning
	}
	if text == "" {
		f.Text = defaultText(category)
	}
	return f
}

func defaultText(category domain.ErrorCategory) string {
	switch category {
	case domain.CategoryNetwork:
		return "Network connection failed. Please check your internet connection."
	case domain.CategoryProvider:
		return "Service temporarily unavailable. Please try again later."
	case domain.CategoryTimeout:
		return "The request timed out. Please try again."
	case domain.CategoryRateLimit:
		return "Too many requests. Please wait a moment and try again."
	case domain.CategoryValidation:
		return "Invalid input provided. Please check your data and try again."
	case domain.CategoryNotFound:
		return "The requested resource was not found."
	case domain.CategoryStorage:
		return "Unable to save data locally. Your changes may not be preserved."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// classify maps any error from a generation onto a failure category.
func classify(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	var apiErr *llm.APIError
	var netErr net.Error
	var urlErr *url.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return newFailure(domain.CategoryTimeout, "", err)
	case errors.Is(err, llm.ErrRateLimited), errors.Is(err, domain.ErrMessageLimit):
		return newFailure(domain.CategoryRateLimit, "", err)
	case errors.Is(err, domain.ErrModelNotFound), errors.Is(err, domain.ErrModelNotAvailable),
		errors.Is(err, domain.ErrEmptyMessage):
		return newFailure(domain.CategoryValidation, "", err)
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrDocumentNotFound):
		return newFailure(domain.CategoryNotFound, "", err)
	case errors.Is(err, llm.ErrNotConfigured), errors.Is(err, llm.ErrUnavailable):
		return newFailure(domain.CategoryProvider, "", err)
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == 400 || apiErr.StatusCode == 422 {
			return newFailure(domain.CategoryValidation, "", err)
		}
		return newFailure(domain.CategoryProvider, "", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return newFailure(domain.CategoryTimeout, "", err)
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return newFailure(domain.CategoryNetwork, "", err)
	default:
		return newFailure(domain.CategoryUnknown, "", err)
	}
}

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotConfigured = errors.New("llm client not configured")
	ErrRateLimited   = errors.New("rate limited by provider (429)")
	ErrUnavailable   = errors.New("provider unavailable (503)")
)

// APIError is a non-success response from the provider.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("provider error %d: %s", e.StatusCode, e.Message)
}

// StreamError is a failure in the middle of a stream. Partial holds the text
// received before it.
type StreamError struct {
	Partial string
	Err     error
}

func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream interrupted after %d chars: %v", len(e.Partial), e.Err)
	}
	return fmt.Sprintf("stream interrupted: %v", e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

type apiErrorBody struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

func (b *apiErrorBody) code() string {
	if len(b.Code) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(b.Code, &s); err == nil {
		return s
	}
	return string(b.Code)
}

// errorFromResponse maps a non-2xx response to a typed error. 429 and 503
// wrap the sentinel errors so callers can use errors.Is.
func errorFromResponse(status int, body []byte) error {
	apiErr := &APIError{StatusCode: status, Message: http.StatusText(status)}

	var parsed struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		apiErr.Code = parsed.Error.code()
	} else if len(body) > 0 && len(body) < 512 {
		apiErr.Message = string(body)
	}

	switch status {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, apiErr)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %w", ErrUnavailable, apiErr)
	default:
		return apiErr
	}
}

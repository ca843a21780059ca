package domain

import "errors"

var (
	ErrInvalidDID         = errors.New("invalid DID format, expected did:nuwa:username")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrSessionNotFound    = errors.New("session not found")
	ErrMessageNotFound    = errors.New("message not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrVersionNotFound    = errors.New("document version not found")
	ErrSuggestionNotFound = errors.New("suggestion not found")
	ErrInvalidKind        = errors.New("invalid document kind")
	ErrInvalidSetting     = errors.New("invalid setting value")
	ErrModelNotFound      = errors.New("model not found")
	ErrModelNotAvailable  = errors.New("model not available for this identity")
	ErrMessageLimit       = errors.New("daily message limit exceeded")
	ErrEmptyMessage       = errors.New("message content is empty")
	ErrStreamNotFound     = errors.New("stream not found")
	ErrFileNotFound       = errors.New("file not found")
)

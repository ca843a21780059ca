package domain

type ErrorCategory string

const (
	CategoryNetwork    ErrorCategory = "network"
	CategoryProvider   ErrorCategory = "provider"
	CategoryTimeout    ErrorCategory = "timeout"
	CategoryRateLimit  ErrorCategory = "rate_limit"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"
	CategoryStorage    ErrorCategory = "storage"
	CategoryUnknown    ErrorCategory = "unknown"
)

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a specific failure kind of the weather pipeline.
type ErrorCode string

const (
	// ErrCodeValidation indicates bad caller input.
	ErrCodeValidation ErrorCode = "VALIDATION"
	// ErrCodeRateLimitExceeded indicates the local cap or an upstream 429.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	// ErrCodeNotFound indicates the upstream answered 404.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAPIUnavailable indicates timeouts, server errors and other non-success statuses.
	ErrCodeAPIUnavailable ErrorCode = "API_UNAVAILABLE"
	// ErrCodeGeneric indicates anything unclassified.
	ErrCodeGeneric ErrorCode = "GENERIC"
)

// WeatherError represents a structured failure of a weather operation.
type WeatherError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *WeatherError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *WeatherError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *WeatherError) WithContext(key string, value interface{}) *WeatherError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *WeatherError) GetCode() ErrorCode {
	return e.Code
}

// Retryable reports whether the pipeline may try again after this failure.
// Validation, rate limiting and not-found are final.
func (e *WeatherError) Retryable() bool {
	switch e.Code {
	case ErrCodeValidation, ErrCodeRateLimitExceeded, ErrCodeNotFound:
		return false
	default:
		return true
	}
}

// Validation creates a validation error.
func Validation(msg string) *WeatherError {
	return &WeatherError{Code: ErrCodeValidation, Message: msg}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *WeatherError {
	return &WeatherError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// NotFound creates a not found error.
func NotFound(msg string) *WeatherError {
	return &WeatherError{Code: ErrCodeNotFound, Message: msg}
}

// APIUnavailable creates an API unavailable error.
func APIUnavailable(msg string) *WeatherError {
	return &WeatherError{Code: ErrCodeAPIUnavailable, Message: msg}
}

// Generic creates an unclassified error.
func Generic(msg string) *WeatherError {
	return &WeatherError{Code: ErrCodeGeneric, Message: msg}
}

// Wrap wraps an existing error with a code and message.
func Wrap(cause error, code ErrorCode, msg string) *WeatherError {
	return &WeatherError{Code: code, Message: msg, Cause: cause}
}

// As finds the first WeatherError in err's chain.
func As(err error) (*WeatherError, bool) {
	var weatherErr *WeatherError
	if stderrors.As(err, &weatherErr) {
		return weatherErr, true
	}
	return nil, false
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if weatherErr, ok := As(err); ok {
		return weatherErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not a WeatherError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if weatherErr, ok := As(err); ok {
		return weatherErr.Code
	}
	return defaultCode
}

// UserMessage returns the human-readable message without the code tag.
// The second result is false when err carries no WeatherError.
func UserMessage(err error) (string, bool) {
	if weatherErr, ok := As(err); ok {
		return weatherErr.Message, true
	}
	return "", false
}

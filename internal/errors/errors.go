package errors

import (
	stderrors "errors"
	"fmt"
)

// AmanError is the structured error type used across amanrag.
type AmanError struct {
	// Code is the unique error code (e.g., "ERR_201_FILE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	Category Category
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates the operation may succeed if repeated.
	Retryable bool

	// Suggestion is an actionable hint for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *AmanError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AmanError) Unwrap() error {
	return e.Cause
}

// Is matches by code, so errors.Is(err, ErrNotFound) works on any
// AmanError carrying the not-found code.
func (e *AmanError) Is(target error) bool {
	if t, ok := target.(*AmanError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *AmanError) WithDetail(key, value string) *AmanError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *AmanError) WithSuggestion(suggestion string) *AmanError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AmanError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AmanError {
	return &AmanError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AmanError from an existing error.
func Wrap(code string, err error) *AmanError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// As returns the first AmanError in err's chain.
func As(err error) (*AmanError, bool) {
	var ae *AmanError
	if stderrors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsRetryable reports whether any AmanError in the chain is retryable.
func IsRetryable(err error) bool {
	ae, ok := As(err)
	return ok && ae.Retryable
}

// IsFatal reports whether err carries fatal severity.
func IsFatal(err error) bool {
	ae, ok := As(err)
	return ok && ae.Severity == SeverityFatal
}

// GetCode extracts the error code, or "" for foreign errors.
func GetCode(err error) string {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return ""
}

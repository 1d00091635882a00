package errors

import "fmt"

// Sentinels for errors.Is. Matching is by code, so any error built by the
// constructors below satisfies the corresponding sentinel.
var (
	ErrNotFound           = &AmanError{Code: ErrCodeFileNotFound}
	ErrUnsupportedType    = &AmanError{Code: ErrCodeUnsupportedType}
	ErrExtraction         = &AmanError{Code: ErrCodeExtractionFailed}
	ErrInvalidConfig      = &AmanError{Code: ErrCodeConfigInvalid}
	ErrUnknownBackend     = &AmanError{Code: ErrCodeUnknownBackend}
	ErrInvalidMode        = &AmanError{Code: ErrCodeInvalidMode}
	ErrIndexing           = &AmanError{Code: ErrCodeIndexFailed}
	ErrAlreadyInitialized = &AmanError{Code: ErrCodeAlreadyInitialized}
	ErrQueryFailed        = &AmanError{Code: ErrCodeQueryFailed}
	ErrCircuitOpen        = &AmanError{Code: ErrCodeCircuitOpen}
	ErrStorageLocked      = &AmanError{Code: ErrCodeStorageLocked}
)

// NotFound reports a missing input file.
func NotFound(path string, cause error) *AmanError {
	return New(ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path), cause).
		WithDetail("path", path)
}

// UnsupportedType reports a file whose extension the loader does not accept.
func UnsupportedType(path, ext string) *AmanError {
	if ext == "" {
		ext = "(none)"
	}
	return New(ErrCodeUnsupportedType, fmt.Sprintf("unsupported file type %s", ext), nil).
		WithDetail("path", path).
		WithDetail("extension", ext).
		WithSuggestion("Only .pdf and .txt files can be loaded")
}

// Extraction reports a failure of a document codec.
func Extraction(path string, cause error) *AmanError {
	return New(ErrCodeExtractionFailed, fmt.Sprintf("extract text from %s", path), cause).
		WithDetail("path", path)
}

// InvalidConfig reports an unusable configuration value.
func InvalidConfig(message string) *AmanError {
	return New(ErrCodeConfigInvalid, message, nil)
}

// UnknownBackend reports a backend name missing from a registry family.
func UnknownBackend(family, name string, known []string) *AmanError {
	return New(ErrCodeUnknownBackend, fmt.Sprintf("unknown %s backend %q", family, name), nil).
		WithDetail("family", family).
		WithDetail("name", name).
		WithSuggestion(fmt.Sprintf("Use one of: %v", known))
}

// InvalidMode reports an unrecognized retrieval mode.
func InvalidMode(mode string) *AmanError {
	return New(ErrCodeInvalidMode, fmt.Sprintf("unknown retrieval mode %q", mode), nil).
		WithDetail("mode", mode).
		WithSuggestion("Use one of: naive, local, global, hybrid")
}

// Indexing wraps any failure raised while ingesting text.
func Indexing(stage string, cause error) *AmanError {
	return New(ErrCodeIndexFailed, fmt.Sprintf("indexing failed during %s", stage), cause).
		WithDetail("stage", stage)
}

// AlreadyInitialized reports a second engine construction in one process.
func AlreadyInitialized() *AmanError {
	return New(ErrCodeAlreadyInitialized, "engine already initialized in this process", nil).
		WithSuggestion("Obtain the engine through lifecycle.Instance")
}

// QueryFailed wraps a failure that happened while answering a query.
func QueryFailed(stage string, cause error) *AmanError {
	return New(ErrCodeQueryFailed, fmt.Sprintf("query failed during %s", stage), cause).
		WithDetail("stage", stage)
}

// FromHTTPStatus classifies a failed provider call by HTTP status. A zero
// status means the request never got a response.
func FromHTTPStatus(provider string, status int, cause error) *AmanError {
	var e *AmanError
	switch {
	case status == 0:
		e = New(ErrCodeNetworkTimeout, provider+" request failed", cause)
	case status == 429:
		e = New(ErrCodeProviderRateLimit, provider+" rate limited", cause)
	case status >= 500:
		e = New(ErrCodeNetworkUnavailable, provider+" unavailable", cause)
	default:
		e = New(ErrCodeProviderRejected, provider+" rejected the request", cause)
	}
	if status != 0 {
		e.WithDetail("status", fmt.Sprint(status))
	}
	return e.WithDetail("provider", provider)
}

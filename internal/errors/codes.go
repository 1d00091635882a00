// Package errors provides structured error handling for amanrag.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and document errors
//   - 3XX: Network and provider errors
//   - 4XX: Validation errors
//   - 5XX: Engine errors
package errors

// Category defines error categories for classification.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryNetwork    Category = "NETWORK"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal aborts the current process step.
	SeverityFatal Severity = "FATAL"
	// SeverityError fails the operation; the process continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning marks a degraded but completed operation.
	SeverityWarning Severity = "WARNING"
)

const (
	// Config errors (100-199)
	ErrCodeConfigNotFound  = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid   = "ERR_102_CONFIG_INVALID"
	ErrCodeStorageLocked   = "ERR_103_STORAGE_LOCKED"
	ErrCodeUnknownBackend  = "ERR_104_UNKNOWN_BACKEND"
	ErrCodeMissingProvider = "ERR_105_MISSING_PROVIDER"

	// IO errors (200-299)
	ErrCodeFileNotFound      = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission    = "ERR_202_FILE_PERMISSION"
	ErrCodeDiskFull          = "ERR_203_DISK_FULL"
	ErrCodeWriteFailed       = "ERR_204_WRITE_FAILED"
	ErrCodeCorruptIndex      = "ERR_205_CORRUPT_INDEX"
	ErrCodeUnsupportedType   = "ERR_207_UNSUPPORTED_TYPE"
	ErrCodeExtractionFailed  = "ERR_208_EXTRACTION_FAILED"
	ErrCodeExtractorNotFound = "ERR_209_EXTRACTOR_NOT_FOUND"

	// Network errors (300-399)
	ErrCodeNetworkTimeout     = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeProviderRejected   = "ERR_303_PROVIDER_REJECTED"
	ErrCodeProviderRateLimit  = "ERR_304_PROVIDER_RATE_LIMIT"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeInvalidQuery      = "ERR_403_INVALID_QUERY"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"
	ErrCodeInvalidMode       = "ERR_407_INVALID_MODE"

	// Engine errors (500-599)
	ErrCodeInternal           = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed    = "ERR_502_EMBEDDING_FAILED"
	ErrCodeCompletionFailed   = "ERR_503_COMPLETION_FAILED"
	ErrCodeChunkingFailed     = "ERR_504_CHUNKING_FAILED"
	ErrCodeIndexFailed        = "ERR_505_INDEX_FAILED"
	ErrCodeAlreadyInitialized = "ERR_506_ALREADY_INITIALIZED"
	ErrCodeQueryFailed        = "ERR_507_QUERY_FAILED"
	ErrCodeCircuitOpen        = "ERR_508_CIRCUIT_OPEN"
)

// categoryFromCode extracts category from error code ("ERR_1xx" → CONFIG).
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeDiskFull, ErrCodeStorageLocked:
		return SeverityFatal
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable, ErrCodeProviderRateLimit:
		return true
	default:
		return false
	}
}

// Package mcp implements the Model Context Protocol (MCP) server for amanrag.
package mcp

import (
	"context"
	"errors"
	"fmt"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Custom MCP error codes for amanrag.
const (
	// ErrCodeIndexingFailed indicates a document could not be indexed.
	ErrCodeIndexingFailed = -32001

	// ErrCodeProviderFailed indicates an embedding or completion provider failed.
	ErrCodeProviderFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeFileNotFound indicates a file no longer exists on disk.
	ErrCodeFileNotFound = -32004

	// ErrCodeUnsupportedType indicates a file type the loader does not accept.
	ErrCodeUnsupportedType = -32005

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Sentinel errors for internal use.
var (
	// ErrToolNotFound indicates the requested tool does not exist.
	ErrToolNotFound = errors.New("tool not found")

	// ErrInvalidParams indicates invalid parameters were provided.
	ErrInvalidParams = errors.New("invalid parameters")

	// ErrResourceNotFound indicates the requested resource does not exist.
	ErrResourceNotFound = errors.New("resource not found")
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}
	var amanErr *amerrors.AmanError
	if errors.As(err, &amanErr) {
		return mapAmanError(amanErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	case errors.Is(err, ErrToolNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Tool not found."}
	case errors.Is(err, ErrInvalidParams):
		return &MCPError{Code: ErrCodeInvalidParams, Message: "Invalid parameters."}
	case errors.Is(err, ErrResourceNotFound):
		return &MCPError{Code: ErrCodeMethodNotFound, Message: "Resource not found."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewMethodNotFoundError creates an error for unknown methods/tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Tool '%s' not found.", name)}
}

// NewResourceNotFoundError creates an error for unknown resources.
func NewResourceNotFoundError(uri string) *MCPError {
	return &MCPError{Code: ErrCodeMethodNotFound, Message: fmt.Sprintf("Resource '%s' not found.", uri)}
}

// mapAmanError converts an AmanError to an MCPError.
func mapAmanError(ae *amerrors.AmanError) *MCPError {
	message := ae.Error()
	if ae.Suggestion != "" {
		message = fmt.Sprintf("%s %s", message, ae.Suggestion)
	}

	switch ae.Code {
	case amerrors.ErrCodeFileNotFound:
		return &MCPError{Code: ErrCodeFileNotFound, Message: message}
	case amerrors.ErrCodeUnsupportedType:
		return &MCPError{Code: ErrCodeUnsupportedType, Message: message}
	case amerrors.ErrCodeIndexFailed:
		return &MCPError{Code: ErrCodeIndexingFailed, Message: message}
	case amerrors.ErrCodeEmbeddingFailed, amerrors.ErrCodeCompletionFailed, amerrors.ErrCodeCircuitOpen:
		return &MCPError{Code: ErrCodeProviderFailed, Message: message}
	}

	switch ae.Category {
	case amerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeTimeout, Message: message}
	case amerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	default: // config, io, internal
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MaxResourceSize is the maximum file size for resources (1MB).
const MaxResourceSize = 1024 * 1024

// Resource URIs.
const (
	statusURI       = "amanrag://status"
	textURIPrefix   = "amanrag://texts/"
	textURITemplate = textURIPrefix + "{name}"
)

// registerResources exposes index status and the normalized document texts.
func (s *Server) registerResources() {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        "index_status",
			URI:         statusURI,
			Description: "Document, chunk, entity and relation counts",
			MIMEType:    "application/json",
		},
		func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readStatus(ctx)
		},
	)
	s.mcp.AddResourceTemplate(
		&mcp.ResourceTemplate{
			Name:        "document_text",
			URITemplate: textURITemplate,
			Description: "Normalized text of an ingested document, by file name under the texts directory",
			MIMEType:    "text/plain",
		},
		func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readText(ctx, req.Params.URI)
		},
	)
}

func (s *Server) readStatus(ctx context.Context) (*mcp.ReadResourceResult, error) {
	out, err := s.handleIndexStatus(ctx)
	if err != nil {
		return nil, err
	}
	content, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: statusURI, MIMEType: "application/json", Text: string(content)}},
	}, nil
}

// readText returns a file from the texts directory with security validation.
func (s *Server) readText(_ context.Context, uri string) (*mcp.ReadResourceResult, error) {
	name, ok := strings.CutPrefix(uri, textURIPrefix)
	if !ok {
		return nil, NewResourceNotFoundError(uri)
	}
	if !isValidPath(name) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", name))
	}

	fullPath := filepath.Join(s.config.Paths.TextDir(), name)
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{Code: ErrCodeFileNotFound, Message: fmt.Sprintf("file not found: %s", name)}
		}
		return nil, MapError(err)
	}
	if info.Size() > MaxResourceSize {
		return nil, NewInvalidParamsError(fmt.Sprintf("file too large: %s (max %s)",
			humanSize(info.Size()), humanSize(MaxResourceSize)))
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: MimeTypeForPath(name), Text: string(content)}},
	}, nil
}

// isValidPath validates that a path is safe to access.
// Returns false for path traversal attempts or absolute paths.
func isValidPath(path string) bool {
	if path == "" {
		return false
	}

	// Reject absolute paths
	if filepath.IsAbs(path) {
		return false
	}

	// Check for Windows absolute paths
	if len(path) >= 2 && path[1] == ':' {
		return false
	}

	cleaned := filepath.Clean(path)
	if strings.HasPrefix(cleaned, "..") {
		return false
	}
	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return false
		}
	}
	return true
}

// humanSize formats bytes as a human-readable string.
func humanSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

package mcp

import (
	"path/filepath"
	"strings"
)

// mimeTypes maps document extensions to MIME types.
var mimeTypes = map[string]string{
	".txt":  "text/plain",
	".pdf":  "application/pdf",
	".md":   "text/markdown",
	".json": "application/json",
}

// MimeTypeForPath returns the MIME type for a file path.
// Returns "text/plain" for unknown types.
func MimeTypeForPath(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mime, ok := mimeTypes[ext]; ok {
		return mime
	}
	return "text/plain"
}

// Package logging configures structured slog output for amanrag.
//
// Logs are JSON lines written to a size-rotated file under ~/.amanrag/logs.
// The MCP server writes to the file only, because stdout carries JSON-RPC.
package logging

// Package llm answers questions over retrieved context with a completion
// model.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// Completer produces an answer for prompt grounded in context.
type Completer interface {
	// Complete returns the model's answer. context may be empty for
	// prompts that carry their own instructions (entity extraction).
	Complete(ctx context.Context, prompt, context string) (string, error)
	// ModelName identifies the model for logs and status output.
	ModelName() string
}

// systemPromptTemplate frames retrieved context for the model.
const systemPromptTemplate = `You are a helpful assistant answering questions about a document collection.

Answer using only the information in the context below. If the context does
not contain the answer, say that you do not know. Do not make anything up.

---Context---
%s
`

// SystemPrompt renders the instructions that wrap retrieved context. An
// empty context yields an empty system prompt.
func SystemPrompt(retrieved string) string {
	if strings.TrimSpace(retrieved) == "" {
		return ""
	}
	return fmt.Sprintf(systemPromptTemplate, retrieved)
}

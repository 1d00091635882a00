package mcp

import (
	"fmt"
	"slices"
	"strings"
)

// maxSourcePreview bounds each source excerpt in FormatAnswer.
const maxSourcePreview = 300

// FormatAnswer formats a query answer as markdown.
func FormatAnswer(out *QueryOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Answer (%s)\n\n", out.Mode)

	switch out.Status {
	case "error":
		fmt.Fprintf(&sb, "**Query failed:** %s\n", out.Error)
		return sb.String()
	default:
		sb.WriteString(strings.TrimSpace(out.Response))
		sb.WriteString("\n")
	}

	if len(out.Entities) > 0 {
		fmt.Fprintf(&sb, "\n**Entities:** %s\n", strings.Join(out.Entities, ", "))
	}
	if len(out.Relations) > 0 {
		fmt.Fprintf(&sb, "**Relations:** %s\n", strings.Join(out.Relations, "; "))
	}
	if len(out.Sources) == 0 {
		return sb.String()
	}

	sb.WriteString("\n### Sources\n\n")
	for i, src := range out.Sources {
		fmt.Fprintf(&sb, "%d. `%s`", i+1, src.ChunkID)
		if src.Score > 0 {
			fmt.Fprintf(&sb, " (score: %.2f)", src.Score)
		}
		fmt.Fprintf(&sb, "\n   > %s\n", excerpt(src.Content, maxSourcePreview))
	}
	return sb.String()
}

// FormatUpload formats an upload result as markdown.
func FormatUpload(out *UploadAndIndexOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Indexed %s\n\n", out.Filename)
	fmt.Fprintf(&sb, "- **Status:** %s\n", out.Status)
	fmt.Fprintf(&sb, "- **Job:** %s\n", out.JobID)
	if out.SavedPath != "" {
		fmt.Fprintf(&sb, "- **Saved:** %s\n", out.SavedPath)
	}
	fmt.Fprintf(&sb, "- **Raw:** %s\n", out.RawPath)
	fmt.Fprintf(&sb, "- **Text:** %s\n", out.TextPath)
	if out.TextPreview != "" {
		fmt.Fprintf(&sb, "\n```\n%s\n```\n", out.TextPreview)
	}
	return sb.String()
}

// FormatStatus formats index statistics as markdown.
func FormatStatus(out *IndexStatusOutput) string {
	var sb strings.Builder
	sb.WriteString("## Index Status\n\n")
	fmt.Fprintf(&sb, "| documents | chunks | entities | relations |\n|---|---|---|---|\n| %d | %d | %d | %d |\n\n",
		out.Documents, out.Chunks, out.Entities, out.Relations)
	fmt.Fprintf(&sb, "- **Backends:** graph=%s vector=%s keyword=%s\n",
		out.GraphBackend, out.VectorBackend, out.KeywordBackend)
	fmt.Fprintf(&sb, "- **Models:** embedding=%s llm=%s extractor=%s\n",
		out.EmbeddingModel, out.LLMModel, out.Extractor)

	namespaces := make([]string, 0, len(out.Vectors))
	for ns := range out.Vectors {
		namespaces = append(namespaces, ns)
	}
	slices.Sort(namespaces)
	for _, ns := range namespaces {
		fmt.Fprintf(&sb, "- **Vectors (%s):** %d\n", ns, out.Vectors[ns])
	}
	return sb.String()
}

// excerpt flattens whitespace and cuts text to n runes.
func excerpt(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n-3]) + "..."
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

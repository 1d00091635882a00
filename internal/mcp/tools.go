package mcp

import "github.com/Aman-CERP/amanrag/internal/rag"

// Tool names.
const (
	ToolUploadAndIndex = "upload_and_index"
	ToolQuery          = "query_rag"
	ToolIndexStatus    = "index_status"
)

// UploadAndIndexInput defines the input schema for the upload_and_index tool.
// Exactly one of Content, ContentBase64 or Path is used, in that order.
type UploadAndIndexInput struct {
	Filename      string `json:"filename,omitempty" jsonschema:"file name including extension (.pdf or .txt); required with content or content_base64"`
	Content       string `json:"content,omitempty" jsonschema:"plain text body of a .txt upload"`
	ContentBase64 string `json:"content_base64,omitempty" jsonschema:"base64 encoded file body, for PDFs"`
	Path          string `json:"path,omitempty" jsonschema:"path of a .pdf or .txt file on the server to index in place"`
}

// UploadAndIndexOutput defines the output schema for the upload_and_index tool.
type UploadAndIndexOutput struct {
	Status      string `json:"status" jsonschema:"saved_and_indexed or indexed"`
	JobID       string `json:"job_id"`
	Filename    string `json:"filename"`
	SavedPath   string `json:"saved_path,omitempty"`
	RawPath     string `json:"raw_path"`
	TextPath    string `json:"text_path"`
	TextPreview string `json:"text_preview" jsonschema:"first 200 characters of the extracted text"`
}

// QueryInput defines the input schema for the query_rag tool.
type QueryInput struct {
	Query           string `json:"query" jsonschema:"the question to answer"`
	Mode            string `json:"mode,omitempty" jsonschema:"retrieval mode: naive, local, global or hybrid (default hybrid)"`
	TopK            int    `json:"top_k,omitempty" jsonschema:"entities or relations to retrieve"`
	ChunkTopK       int    `json:"chunk_top_k,omitempty" jsonschema:"text chunks to keep in the context"`
	OnlyNeedContext bool   `json:"only_need_context,omitempty" jsonschema:"return the retrieved context without calling the model"`
}

// QueryOutput defines the output schema for the query_rag tool.
type QueryOutput struct {
	Query     string       `json:"query"`
	Mode      string       `json:"mode"`
	Status    string       `json:"status" jsonschema:"ok, no_context or error"`
	Response  string       `json:"response"`
	Error     string       `json:"error,omitempty"`
	Sources   []rag.Source `json:"sources,omitempty"`
	Entities  []string     `json:"entities,omitempty"`
	Relations []string     `json:"relations,omitempty"`
}

// IndexStatusInput defines the input schema for the index_status tool (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Documents      int            `json:"documents"`
	Chunks         int            `json:"chunks"`
	Entities       int            `json:"entities"`
	Relations      int            `json:"relations"`
	Vectors        map[string]int `json:"vectors"`
	GraphBackend   string         `json:"graph_backend"`
	VectorBackend  string         `json:"vector_backend"`
	KeywordBackend string         `json:"keyword_backend"`
	EmbeddingModel string         `json:"embedding_model"`
	LLMModel       string         `json:"llm_model"`
	Extractor      string         `json:"extractor"`
}

package mcp

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanrag/internal/app"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/rag"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// Service is the caller-facing API the server exposes.
type Service interface {
	UploadAndIndex(ctx context.Context, filename string, r io.Reader) (*app.UploadResult, error)
	IndexFile(ctx context.Context, path string) (*app.UploadResult, error)
	QueryWithParam(ctx context.Context, text, mode string, p rag.QueryParam) (*app.QueryResult, error)
	Status(ctx context.Context) (*rag.IndexStatus, error)
}

// Server is the MCP server for amanrag.
type Server struct {
	mcp     *mcp.Server
	service Service
	config  *config.Config
	logger  *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        ToolUploadAndIndex,
		Description: "Save a PDF or TXT document and index it into the knowledge base. Pass filename plus content (text) or content_base64 (binary), or path for a file already on the server.",
	},
	{
		Name:        ToolQuery,
		Description: "Answer a question from the indexed documents. Modes: naive (text chunks only), local (entities and their neighbourhood), global (relations), hybrid (local and global, the default).",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report how many documents, chunks, entities and relations are indexed and which backends and models are active.",
	},
}

// NewServer creates a new MCP server.
func NewServer(service Service, cfg *config.Config) (*Server, error) {
	if service == nil {
		return nil, errors.New("service is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}

	s := &Server{
		service: service,
		config:  cfg,
		logger:  slog.Default(),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "amanrag",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return tools
}

// CallTool invokes a tool by name with JSON-decoded arguments. The result is
// the markdown the MCP handler sends as text content.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case ToolUploadAndIndex:
		out, err := s.handleUpload(ctx, UploadAndIndexInput{
			Filename:      stringArg(args, "filename"),
			Content:       stringArg(args, "content"),
			ContentBase64: stringArg(args, "content_base64"),
			Path:          stringArg(args, "path"),
		})
		if err != nil {
			return "", err
		}
		return FormatUpload(out), nil
	case ToolQuery:
		out, err := s.handleQuery(ctx, QueryInput{
			Query:           stringArg(args, "query"),
			Mode:            stringArg(args, "mode"),
			TopK:            intArg(args, "top_k"),
			ChunkTopK:       intArg(args, "chunk_top_k"),
			OnlyNeedContext: boolArg(args, "only_need_context"),
		})
		if err != nil {
			return "", err
		}
		return FormatAnswer(out), nil
	case ToolIndexStatus:
		out, err := s.handleIndexStatus(ctx)
		if err != nil {
			return "", err
		}
		return FormatStatus(out), nil
	default:
		return "", NewMethodNotFoundError(name)
	}
}

func (s *Server) handleUpload(ctx context.Context, in UploadAndIndexInput) (*UploadAndIndexOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	var (
		res *app.UploadResult
		err error
	)
	switch {
	case in.Content != "" || in.ContentBase64 != "":
		if strings.TrimSpace(in.Filename) == "" {
			return nil, NewInvalidParamsError("filename is required with content")
		}
		body := []byte(in.Content)
		if in.Content == "" {
			if body, err = base64.StdEncoding.DecodeString(in.ContentBase64); err != nil {
				return nil, NewInvalidParamsError(fmt.Sprintf("content_base64 is not valid base64: %v", err))
			}
		}
		res, err = s.service.UploadAndIndex(ctx, in.Filename, bytes.NewReader(body))
	case in.Path != "":
		res, err = s.service.IndexFile(ctx, in.Path)
	default:
		return nil, NewInvalidParamsError("one of content, content_base64 or path is required")
	}

	if err != nil {
		s.logger.Error("upload_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	s.logger.Info("upload_completed",
		slog.String("request_id", requestID),
		slog.String("job_id", res.JobID),
		slog.Duration("duration", time.Since(start)))

	return &UploadAndIndexOutput{
		Status:      res.Status,
		JobID:       res.JobID,
		Filename:    res.Filename,
		SavedPath:   res.SavedPath,
		RawPath:     res.RawPath,
		TextPath:    res.TextPath,
		TextPreview: res.TextPreview,
	}, nil
}

func (s *Server) handleQuery(ctx context.Context, in QueryInput) (*QueryOutput, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	res, err := s.service.QueryWithParam(ctx, in.Query, in.Mode, rag.QueryParam{
		TopK:            clampLimit(in.TopK, 0, 0, 200),
		ChunkTopK:       clampLimit(in.ChunkTopK, 0, 0, 100),
		OnlyNeedContext: in.OnlyNeedContext,
	})
	if err != nil {
		return nil, MapError(err)
	}

	ans := res.Response
	s.logger.Info("query_completed",
		slog.String("request_id", requestID),
		slog.String("mode", string(res.Mode)),
		slog.String("status", string(ans.Status)),
		slog.Duration("duration", time.Since(start)))

	return &QueryOutput{
		Query:     res.Query,
		Mode:      string(res.Mode),
		Status:    string(ans.Status),
		Response:  ans.Text,
		Error:     ans.Error,
		Sources:   ans.Sources,
		Entities:  ans.Entities,
		Relations: ans.Relations,
	}, nil
}

func (s *Server) handleIndexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	st, err := s.service.Status(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	return &IndexStatusOutput{
		Documents:      st.Documents,
		Chunks:         st.Chunks,
		Entities:       st.Entities,
		Relations:      st.Relations,
		Vectors:        st.Vectors,
		GraphBackend:   st.GraphBackend,
		VectorBackend:  st.VectorBackend,
		KeywordBackend: st.KeywordBackend,
		EmbeddingModel: st.EmbeddingModel,
		LLMModel:       st.LLMModel,
		Extractor:      st.Extractor,
	}, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpUploadHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpQueryHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpIndexStatusHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpUploadHandler(ctx context.Context, _ *mcp.CallToolRequest, in UploadAndIndexInput) (
	*mcp.CallToolResult,
	*UploadAndIndexOutput,
	error,
) {
	out, err := s.handleUpload(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return textResult(FormatUpload(out)), out, nil
}

// mcpQueryHandler reports failed answers as tool errors so clients can
// tell them apart from real answers.
func (s *Server) mcpQueryHandler(ctx context.Context, _ *mcp.CallToolRequest, in QueryInput) (
	*mcp.CallToolResult,
	*QueryOutput,
	error,
) {
	out, err := s.handleQuery(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	res := textResult(FormatAnswer(out))
	res.IsError = out.Status == string(rag.StatusError)
	return res, out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.handleIndexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
		} else {
			s.logger.Info("mcp_server_stopped")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func boolArg(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

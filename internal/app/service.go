// Package app implements the caller-facing operations shared by the CLI,
// the MCP server and the inbox watcher.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Aman-CERP/amanrag/internal/config"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/lifecycle"
	"github.com/Aman-CERP/amanrag/internal/loader"
	"github.com/Aman-CERP/amanrag/internal/rag"
)

// Upload statuses.
const (
	StatusSavedAndIndexed = "saved_and_indexed"
	StatusIndexed         = "indexed"
)

// PreviewRunes is the length of UploadResult.TextPreview.
const PreviewRunes = 200

// Engine is the part of rag.Engine the service drives.
type Engine interface {
	Ingest(ctx context.Context, text string) error
	QueryWithParam(ctx context.Context, text string, p rag.QueryParam) *rag.Answer
	Status(ctx context.Context) (*rag.IndexStatus, error)
}

// EngineSource returns the engine to use for one call.
type EngineSource func(ctx context.Context) (Engine, error)

// UploadResult describes an indexed file.
type UploadResult struct {
	Status      string `json:"status"`
	JobID       string `json:"job_id"`
	Filename    string `json:"filename"`
	SavedPath   string `json:"saved_path,omitempty"`
	RawPath     string `json:"raw_path"`
	TextPath    string `json:"text_path"`
	TextPreview string `json:"text_preview"`
	Characters  int    `json:"characters"`
}

// QueryResult is the response of Query.
type QueryResult struct {
	Query    string      `json:"query"`
	Mode     rag.Mode    `json:"mode"`
	Response *rag.Answer `json:"response"`
}

// Service wires the loader to the shared engine.
type Service struct {
	cfg    *config.Config
	loader *loader.Loader
	engine EngineSource
	logger *slog.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithEngine uses a fixed engine instead of the process-wide one.
func WithEngine(e Engine) Option {
	return func(s *Service) {
		s.engine = func(context.Context) (Engine, error) { return e, nil }
	}
}

// WithPageExtractor replaces pdftotext.
func WithPageExtractor(p loader.PageExtractor) Option {
	return func(s *Service) { s.loader = loader.New(s.cfg.Paths, p) }
}

// WithLogger sets the logger; the default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// NewService returns a Service. By default the engine comes from
// lifecycle.Instance, so every Service in the process shares one.
func NewService(cfg *config.Config, opts ...Option) *Service {
	s := &Service{
		cfg:    cfg,
		loader: loader.New(cfg.Paths, nil),
		logger: slog.Default(),
	}
	s.engine = func(ctx context.Context) (Engine, error) {
		return lifecycle.Instance(ctx, s.cfg)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the service configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// UploadAndIndex saves r as <upload_dir>/<base name of filename>, loads it
// and ingests its text.
func (s *Service) UploadAndIndex(ctx context.Context, filename string, r io.Reader) (*UploadResult, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "upload needs a file name", nil)
	}
	if !loader.Supported(name) {
		return nil, amerrors.UnsupportedType(name, strings.ToLower(filepath.Ext(name)))
	}

	saved := filepath.Join(s.cfg.Paths.UploadDir, name)
	if err := save(saved, r); err != nil {
		return nil, err
	}
	res, err := s.index(ctx, saved)
	if err != nil {
		return nil, err
	}
	res.Status = StatusSavedAndIndexed
	res.SavedPath = saved
	return res, nil
}

// IndexFile loads and ingests a file already on disk.
func (s *Service) IndexFile(ctx context.Context, path string) (*UploadResult, error) {
	res, err := s.index(ctx, path)
	if err != nil {
		return nil, err
	}
	res.Status = StatusIndexed
	return res, nil
}

func (s *Service) index(ctx context.Context, path string) (*UploadResult, error) {
	start := time.Now()
	jobID := uuid.NewString()

	doc, err := s.loader.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	text := doc.Text()

	e, err := s.engine(ctx)
	if err != nil {
		return nil, err
	}
	if err := e.Ingest(ctx, text); err != nil {
		s.logger.Error("file_index_failed",
			slog.String("job_id", jobID),
			slog.String("file", doc.Name),
			slog.String("error", err.Error()))
		return nil, err
	}

	s.logger.Info("file_indexed",
		slog.String("job_id", jobID),
		slog.String("file", doc.Name),
		slog.Int("characters", len(text)),
		slog.Duration("duration", time.Since(start)))
	return &UploadResult{
		JobID:       jobID,
		Filename:    doc.Name,
		RawPath:     doc.RawPath,
		TextPath:    doc.TextPath,
		TextPreview: preview(text, PreviewRunes),
		Characters:  len(text),
	}, nil
}

// Query answers text. An empty mode means hybrid; unknown modes are
// rejected before the engine is touched.
func (s *Service) Query(ctx context.Context, text, mode string) (*QueryResult, error) {
	return s.QueryWithParam(ctx, text, mode, rag.QueryParam{})
}

// QueryWithParam is Query with explicit retrieval parameters. p.Mode is
// replaced by mode.
func (s *Service) QueryWithParam(ctx context.Context, text, mode string, p rag.QueryParam) (*QueryResult, error) {
	if strings.TrimSpace(mode) == "" {
		mode = string(rag.ModeHybrid)
	}
	m, err := rag.ParseMode(mode)
	if err != nil {
		return nil, err
	}
	e, err := s.engine(ctx)
	if err != nil {
		return nil, err
	}
	p.Mode = m
	return &QueryResult{Query: text, Mode: m, Response: e.QueryWithParam(ctx, text, p)}, nil
}

// Status reports the engine's index counts.
func (s *Service) Status(ctx context.Context) (*rag.IndexStatus, error) {
	e, err := s.engine(ctx)
	if err != nil {
		return nil, err
	}
	return e.Status(ctx)
}

func save(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return writeError(path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return writeError(path, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return writeError(path, err)
	}
	if err := f.Close(); err != nil {
		return writeError(path, err)
	}
	return nil
}

func writeError(path string, err error) error {
	return amerrors.New(amerrors.ErrCodeWriteFailed, fmt.Sprintf("save upload %s", path), err).
		WithDetail("path", path)
}

// preview returns the first n runes of text.
func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

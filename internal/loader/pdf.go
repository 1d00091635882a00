package loader

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// PageExtractor turns a binary document into per-page text.
type PageExtractor interface {
	Extract(ctx context.Context, path string) ([]string, error)
}

// CommandRunner runs an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ErrPDFToolNotFound is returned when pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("pdftotext not found in PATH")

// PDFToText extracts PDF pages with poppler's pdftotext.
type PDFToText struct {
	runner   CommandRunner
	lookPath func(string) (string, error)
}

// NewPDFToText returns an extractor that shells out to pdftotext.
func NewPDFToText() *PDFToText {
	return &PDFToText{runner: execRunner{}, lookPath: exec.LookPath}
}

// NewPDFToTextWithRunner returns an extractor using runner (tests).
func NewPDFToTextWithRunner(runner CommandRunner) *PDFToText {
	return &PDFToText{runner: runner}
}

// Extract implements PageExtractor. pdftotext separates pages with form
// feeds; the feed after the last page is dropped.
func (p *PDFToText) Extract(ctx context.Context, path string) ([]string, error) {
	if p.lookPath != nil {
		if _, err := p.lookPath("pdftotext"); err != nil {
			return nil, amerrors.Extraction(path, ErrPDFToolNotFound).
				WithSuggestion(InstallInstructions())
		}
	}

	out, err := p.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, amerrors.Extraction(path, err)
	}

	pages := strings.Split(strings.ToValidUTF8(string(out), ""), "\f")
	if len(pages) > 1 && pages[len(pages)-1] == "" {
		pages = pages[:len(pages)-1]
	}
	return pages, nil
}

// InstallInstructions explains how to get pdftotext.
func InstallInstructions() string {
	return "Install poppler: brew install poppler (macOS) or apt install poppler-utils (Debian/Ubuntu)"
}

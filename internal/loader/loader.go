// Package loader copies PDF and TXT inputs into the data directory and
// produces their normalized text.
package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/amanrag/internal/config"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Content types accepted by the loader.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeText = "text/plain"
)

// separator joins PDF pages in the normalized text.
const separator = "\n\n"

// TextUnit is one extracted text segment (a PDF page or a whole TXT file).
type TextUnit struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Document is a loaded input file.
type Document struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	ContentType string     `json:"content_type"`
	RawPath     string     `json:"raw_path"`
	TextPath    string     `json:"text_path"`
	Units       []TextUnit `json:"units"`
}

// Text joins the units with the page separator.
func (d *Document) Text() string {
	parts := make([]string, len(d.Units))
	for i, u := range d.Units {
		parts[i] = u.Text
	}
	return strings.Join(parts, separator)
}

// Loader loads documents into the data directory layout.
type Loader struct {
	rawDir  string
	textDir string
	pdf     PageExtractor
	logger  *slog.Logger
}

// New creates a Loader. A nil extractor uses pdftotext.
func New(paths config.PathsConfig, pdf PageExtractor) *Loader {
	if pdf == nil {
		pdf = NewPDFToText()
	}
	return &Loader{
		rawDir:  paths.RawDir(),
		textDir: paths.TextDir(),
		pdf:     pdf,
		logger:  slog.Default(),
	}
}

// Supported reports whether path has an extension the loader accepts.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt":
		return true
	}
	return false
}

// Load copies path into the data directory, writes <stem>.txt under the
// text directory and returns the trimmed text units. Missing files and
// unsupported types fail before anything is written.
func (l *Loader) Load(ctx context.Context, path string) (*Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, amerrors.NotFound(path, err)
		}
		return nil, amerrors.New(amerrors.ErrCodeFilePermission, fmt.Sprintf("cannot access %s", path), err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	if info.IsDir() || !Supported(path) {
		return nil, amerrors.UnsupportedType(path, ext)
	}

	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	doc := &Document{
		ID:       stem,
		Name:     name,
		TextPath: filepath.Join(l.textDir, stem+".txt"),
	}

	var pages []string
	switch ext {
	case ".pdf":
		doc.ContentType = ContentTypePDF
		doc.RawPath = filepath.Join(l.rawDir, name)
		if err := copyFile(path, doc.RawPath); err != nil {
			return nil, err
		}
		pages, err = l.pdf.Extract(ctx, path)
		if err != nil {
			return nil, err
		}
	case ".txt":
		doc.ContentType = ContentTypeText
		doc.RawPath = filepath.Join(l.textDir, name)
		if err := copyFile(path, doc.RawPath); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(doc.RawPath)
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeFilePermission, fmt.Sprintf("read %s", doc.RawPath), err)
		}
		pages = []string{strings.ToValidUTF8(string(data), "")}
	}

	if err := writeFile(doc.TextPath, strings.Join(pages, separator)); err != nil {
		return nil, err
	}

	doc.Units = make([]TextUnit, len(pages))
	for i, p := range pages {
		doc.Units[i] = TextUnit{Index: i, Text: strings.TrimSpace(p)}
	}

	l.logger.Debug("document_loaded",
		slog.String("name", name),
		slog.String("content_type", doc.ContentType),
		slog.Int("units", len(doc.Units)),
		slog.String("text_path", doc.TextPath))
	return doc, nil
}

// copyFile copies src to dst, creating dst's directory. Copying a file onto
// itself is a no-op.
func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return writeError(dst, err)
	}
	if si, err := os.Stat(src); err == nil {
		if di, err := os.Stat(dst); err == nil && os.SameFile(si, di) {
			return nil
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return amerrors.New(amerrors.ErrCodeFilePermission, fmt.Sprintf("open %s", src), err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return writeError(dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return writeError(dst, err)
	}
	if err := out.Close(); err != nil {
		return writeError(dst, err)
	}
	return nil
}

// writeFile writes data atomically via a temp file and rename.
func writeFile(path, data string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return writeError(path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(data), 0o644); err != nil {
		_ = os.Remove(tmp)
		return writeError(path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return writeError(path, err)
	}
	return nil
}

func writeError(path string, err error) error {
	return amerrors.New(amerrors.ErrCodeWriteFailed, fmt.Sprintf("write %s", path), err).
		WithDetail("path", path)
}

// Package docextract implements the DocumentExtractor component: best-effort
// plain-text extraction from PDF and DOCX files, the two non-plain-text
// document formats the indexer supports.
package docextract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	fsindexerrors "github.com/fsgraph/indexer/internal/errors"
)

// Extractor pulls plain text out of a document file.
type Extractor struct {
	// DisablePDF skips PDF extraction, reporting it unsupported. Some
	// minimal build targets omit the PDF codec's transitive dependencies;
	// this flag lets an operator turn the format off without a rebuild.
	DisablePDF bool
}

// New creates an Extractor with PDF extraction enabled.
func New() *Extractor {
	return &Extractor{}
}

// Extract returns the plain text content of a document at path, dispatching
// on the lowercase file extension (".pdf" or ".docx"). Any other extension
// returns an unsupported-format error.
func (e *Extractor) Extract(path string, ext string) (string, error) {
	switch ext {
	case ".pdf":
		if e.DisablePDF {
			return "", fsindexerrors.New(fsindexerrors.ErrCodeUnsupportedType, "PDF extraction is disabled", nil)
		}
		return e.extractPDF(path)
	case ".docx":
		return e.extractDOCX(path)
	default:
		return "", fsindexerrors.New(fsindexerrors.ErrCodeUnsupportedType, fmt.Sprintf("unsupported document format %q", ext), nil)
	}
}

func (e *Extractor) extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fsindexerrors.Wrap(fsindexerrors.ErrCodeExtractFailed, fmt.Errorf("open pdf: %w", err))
	}
	defer func() { _ = f.Close() }()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fsindexerrors.Wrap(fsindexerrors.ErrCodeExtractFailed, fmt.Errorf("read pdf text: %w", err))
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", fsindexerrors.Wrap(fsindexerrors.ErrCodeExtractFailed, fmt.Errorf("drain pdf text: %w", err))
	}

	text := strings.TrimSpace(buf.String())
	if text == "" {
		return "", fsindexerrors.New(fsindexerrors.ErrCodeExtractFailed, "pdf contained no extractable text", nil)
	}

	return text, nil
}

func (e *Extractor) extractDOCX(path string) (string, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return "", fsindexerrors.Wrap(fsindexerrors.ErrCodeExtractFailed, fmt.Errorf("open docx: %w", err))
	}
	defer func() { _ = doc.Close() }()

	text := strings.TrimSpace(doc.Editable().GetContent())
	if text == "" {
		return "", fsindexerrors.New(fsindexerrors.ErrCodeExtractFailed, "docx contained no extractable text", nil)
	}

	return text, nil
}

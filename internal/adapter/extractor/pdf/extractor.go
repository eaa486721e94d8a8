// Package pdf extracts plain text from uploaded candidate documents.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"

	"github.com/screenhire/screener/internal/domain"
	"github.com/screenhire/screener/pkg/textx"
)

// Extractor parses PDF bytes into normalized plain text. Plain-text uploads
// pass through with the same sanitization.
type Extractor struct{}

// New returns a ready Extractor.
func New() *Extractor { return &Extractor{} }

// Extract implements domain.Extractor. It sniffs the payload, parses the text
// layer page by page and normalizes the output. A structurally broken PDF or
// one with no extractable text yields domain.ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("op=pdf.Extract: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("op=pdf.Extract file=%s: empty payload: %w", filename, domain.ErrExtraction)
	}

	mt := mimetype.Detect(data)
	switch {
	case mt.Is("application/pdf"):
		text, err := extractPDFText(data)
		if err != nil {
			return "", fmt.Errorf("op=pdf.Extract file=%s: %s: %w", filename, err, domain.ErrExtraction)
		}
		text = textx.NormalizeParagraphs(textx.SanitizeText(text))
		if text == "" {
			return "", fmt.Errorf("op=pdf.Extract file=%s: no text layer: %w", filename, domain.ErrExtraction)
		}
		return text, nil
	case mt.Is("text/plain") || strings.HasPrefix(mt.String(), "text/"):
		text := textx.NormalizeParagraphs(textx.SanitizeText(string(data)))
		if text == "" {
			return "", fmt.Errorf("op=pdf.Extract file=%s: empty document: %w", filename, domain.ErrExtraction)
		}
		return text, nil
	default:
		return "", fmt.Errorf("op=pdf.Extract file=%s: unsupported media type %s: %w", filename, mt.String(), domain.ErrExtraction)
	}
}

func extractPDFText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}
	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Package extract turns uploaded files into page texts.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"certrag/internal/domain"
	"certrag/internal/logger"
)

const module = "extract"

// PDF extracts text page by page with ledongthuc/pdf.
type PDF struct {
	log logger.Logger
}

var _ domain.Extractor = (*PDF)(nil)

func NewPDF(log logger.Logger) *PDF {
	return &PDF{log: log}
}

// Extract returns one entry per page that produced text. Unreadable input or a
// document without any text yields domain.ErrExtraction.
func (e *PDF) Extract(ctx context.Context, content []byte) (pages []domain.Page, err error) {
	defer func() {
		// the parser panics on some malformed files
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: malformed PDF: %v", domain.ErrExtraction, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create PDF reader: %v", domain.ErrExtraction, err)
	}

	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			e.log.Warn(module, "failed to extract page text", map[string]interface{}{
				"page": i, "error": err.Error(),
			})
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		pages = append(pages, domain.Page{Number: i, Text: text})
	}

	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: no text extracted from %d pages", domain.ErrExtraction, total)
	}
	return pages, nil
}

// PlainText treats the whole input as a single page of UTF-8 text.
type PlainText struct{}

var _ domain.Extractor = PlainText{}

func (PlainText) Extract(_ context.Context, content []byte) ([]domain.Page, error) {
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%w: content is not valid UTF-8", domain.ErrExtraction)
	}
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", domain.ErrExtraction)
	}
	return []domain.Page{{Number: 1, Text: text}}, nil
}

// ForFilename picks the extractor matching a file extension.
func ForFilename(name string, pdfExtractor *PDF) domain.Extractor {
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return pdfExtractor
	}
	return PlainText{}
}

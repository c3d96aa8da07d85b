// Package parser provides document parsing adapters.
package parser

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ledongthuc/pdf"
)

// PDFExtractor implements ports.PageExtractor using github.com/ledongthuc/pdf.
type PDFExtractor struct {
	logger *slog.Logger
}

// NewPDFExtractor creates a new PDF page extractor.
func NewPDFExtractor(logger *slog.Logger) *PDFExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFExtractor{logger: logger}
}

// ExtractPages returns the plain text of every page of the PDF at path, in page order.
// Null pages yield "" so indexes stay aligned with 1-based page numbers.
func (p *PDFExtractor) ExtractPages(ctx context.Context, path string) (pages []string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("reading file info: %w", err)
	}

	// The reader panics on some malformed xref tables and object streams.
	defer func() {
		if r := recover(); r != nil {
			pages, err = nil, fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("creating PDF reader: %w", err)
	}

	numPages := reader.NumPage()
	pages = make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting text from page %d: %w", i, err)
		}
		pages = append(pages, text)
	}

	p.logger.Debug("PDF parsed", "path", path, "pages", numPages)
	return pages, nil
}

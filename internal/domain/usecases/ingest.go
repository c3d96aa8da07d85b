// Package usecases contains application business rules.
// Usecases orchestrate entities and depend on port interfaces only.
package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/MoeScet/smart-document-chat/internal/domain/entities"
	"github.com/MoeScet/smart-document-chat/internal/domain/ports"
)

// Page chunking defaults for PDF ingestion.
const (
	DefaultPageChunkSize    = 800
	DefaultPageChunkOverlap = 200
)

// IngestReport summarises one ingested file.
type IngestReport struct {
	Filename string
	Chunks   int
	Pages    int
}

// FolderReport summarises a folder pass.
type FolderReport struct {
	Indexed     []string
	Skipped     []string
	Failed      map[string]error
	TotalChunks int
}

// IngestUseCase turns PDFs into chunks and keeps the retrieval index in sync with them.
type IngestUseCase struct {
	extractor    ports.PageExtractor
	index        ports.RetrievalIndex
	lister       ports.DocumentLister
	chunkSize    int
	chunkOverlap int
	logger       *slog.Logger
}

// NewIngestUseCase creates an IngestUseCase with injected dependencies.
// Chunk parameters are validated on first use by SplitText.
func NewIngestUseCase(
	extractor ports.PageExtractor,
	index ports.RetrievalIndex,
	lister ports.DocumentLister,
	chunkSize, chunkOverlap int,
	logger *slog.Logger,
) *IngestUseCase {
	if chunkSize == 0 {
		chunkSize = DefaultPageChunkSize
		chunkOverlap = DefaultPageChunkOverlap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestUseCase{
		extractor:    extractor,
		index:        index,
		lister:       lister,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		logger:       logger,
	}
}

// ProcessPDF extracts the pages of path and chunks each one under the identity filename.
// Blank pages are skipped; page numbers stay 1-based PDF page numbers.
func (uc *IngestUseCase) ProcessPDF(ctx context.Context, path, filename string) ([]entities.Chunk, error) {
	pages, err := uc.extractor.ExtractPages(ctx, path)
	if err != nil {
		return nil, &entities.DocumentProcessingError{Filename: filename, Err: err}
	}

	var chunks []entities.Chunk
	for i, text := range pages {
		if strings.TrimSpace(text) == "" {
			continue
		}

		parts, err := SplitText(text, uc.chunkSize, uc.chunkOverlap)
		if err != nil {
			return nil, &entities.DocumentProcessingError{Filename: filename, Err: err}
		}
		for j, part := range parts {
			chunk, err := entities.NewChunk(part, filename, i+1, j)
			if err != nil {
				return nil, &entities.DocumentProcessingError{Filename: filename, Err: err}
			}
			chunks = append(chunks, chunk)
		}
	}

	if len(chunks) == 0 {
		return nil, &entities.DocumentProcessingError{Filename: filename, Err: entities.ErrNoExtractableText}
	}
	return chunks, nil
}

// IngestFile indexes one PDF under its base filename.
// Returns ErrAlreadyIndexed when the filename already has chunks.
func (uc *IngestUseCase) IngestFile(ctx context.Context, path string) (*IngestReport, error) {
	filename := filepath.Base(path)

	indexed, err := uc.index.IsIndexed(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", filename, err)
	}
	if indexed {
		return nil, fmt.Errorf("%s: %w", filename, entities.ErrAlreadyIndexed)
	}

	return uc.ingest(ctx, path, filename)
}

func (uc *IngestUseCase) ingest(ctx context.Context, path, filename string) (*IngestReport, error) {
	chunks, err := uc.ProcessPDF(ctx, path, filename)
	if err != nil {
		return nil, err
	}
	return uc.store(ctx, filename, chunks)
}

func (uc *IngestUseCase) store(ctx context.Context, filename string, chunks []entities.Chunk) (*IngestReport, error) {
	if err := uc.index.Store(ctx, chunks); err != nil {
		return nil, fmt.Errorf("storing %s: %w", filename, err)
	}

	stats := entities.GetDocumentStats(chunks)
	uc.logger.Info("document indexed", "filename", filename, "chunks", stats.TotalChunks, "pages", stats.Pages)

	return &IngestReport{Filename: filename, Chunks: stats.TotalChunks, Pages: stats.Pages}, nil
}

// IngestFolder indexes every PDF in dir that is not indexed yet.
// A failing file is recorded in the report and does not stop the rest.
func (uc *IngestUseCase) IngestFolder(ctx context.Context, dir string) (*FolderReport, error) {
	paths, err := uc.lister.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	report := &FolderReport{Failed: make(map[string]error)}
	if len(paths) == 0 {
		uc.logger.Info("no PDF files found", "dir", dir)
		return report, nil
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		filename := filepath.Base(path)
		res, err := uc.IngestFile(ctx, path)
		switch {
		case errors.Is(err, entities.ErrAlreadyIndexed):
			uc.logger.Info("skipping already indexed document", "filename", filename)
			report.Skipped = append(report.Skipped, filename)
		case err != nil:
			uc.logger.Error("failed to index document", "filename", filename, "error", err)
			report.Failed[filename] = err
		default:
			report.Indexed = append(report.Indexed, filename)
			report.TotalChunks += res.Chunks
		}
	}

	uc.logger.Info("folder processed",
		"dir", dir,
		"indexed", len(report.Indexed),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
		"chunks", report.TotalChunks,
	)
	return report, nil
}

// DeleteDocument removes all chunks of filename and returns how many went.
// A filename with no chunks yields entities.ErrNotIndexed.
func (uc *IngestUseCase) DeleteDocument(ctx context.Context, filename string) (int, error) {
	n, err := uc.index.DeleteBySource(ctx, filename)
	if err != nil {
		return 0, fmt.Errorf("deleting %s: %w", filename, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%s: %w", filename, entities.ErrNotIndexed)
	}
	uc.logger.Info("document deleted", "filename", filename, "chunks", n)
	return n, nil
}

// Reindex replaces whatever the index holds for path with its current contents.
// The old chunks stay in place when the file cannot be processed, e.g. while
// it is still being copied into the folder.
func (uc *IngestUseCase) Reindex(ctx context.Context, path string) (*IngestReport, error) {
	filename := filepath.Base(path)
	chunks, err := uc.ProcessPDF(ctx, path, filename)
	if err != nil {
		return nil, err
	}

	if _, err := uc.DeleteDocument(ctx, filename); err != nil && !errors.Is(err, entities.ErrNotIndexed) {
		return nil, err
	}
	return uc.store(ctx, filename, chunks)
}

// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions, not concrete implementations. Adapters implement them.
package ports

import (
	"context"

	"github.com/MoeScet/smart-document-chat/internal/domain/entities"
)

// EmbeddingService generates vector embeddings for text.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, order preserved.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces text from a local language model.
type Generator interface {
	// Generate sends one prompt and returns the generated text.
	// Failures are *entities.GenerationError.
	Generate(ctx context.Context, prompt string) (string, error)

	// Ping is a best-effort liveness probe.
	Ping(ctx context.Context) bool
}

// RetrievalIndex persists chunks and answers semantic nearest-neighbour queries.
// A Store is visible to every read issued after it returns.
type RetrievalIndex interface {
	// Store assigns IDs and persists text plus metadata. No-op on empty input.
	Store(ctx context.Context, chunks []entities.Chunk) error

	// Search returns up to k chunks ranked by similarity to query.
	Search(ctx context.Context, query string, k int) ([]entities.RetrievedChunk, error)

	// ListSources returns the distinct source filenames, sorted.
	ListSources(ctx context.Context) ([]string, error)

	// IsIndexed reports whether any chunk has the given source.
	IsIndexed(ctx context.Context, filename string) (bool, error)

	// DeleteBySource removes every chunk of filename and returns how many were removed.
	DeleteBySource(ctx context.Context, filename string) (int, error)

	// Count returns the total chunk count.
	Count(ctx context.Context) (int, error)

	// Clear removes all data from the index.
	Clear(ctx context.Context) error

	// Close releases the underlying storage.
	Close() error
}

// PageExtractor extracts per-page text from a document.
type PageExtractor interface {
	// ExtractPages returns one entry per page in page order. Pages without text yield "".
	ExtractPages(ctx context.Context, path string) ([]string, error)
}

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}

// DocumentLister lists the documents waiting in an ingestion folder.
type DocumentLister interface {
	// List returns absolute or folder-relative paths of ingestible files, sorted by name.
	List(ctx context.Context, dir string) ([]string, error)
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)

func (op FileOperation) String() string {
	switch op {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

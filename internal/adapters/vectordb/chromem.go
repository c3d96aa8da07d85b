package vectordb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/MoeScet/smart-document-chat/internal/domain/entities"
	"github.com/MoeScet/smart-document-chat/internal/domain/ports"
)

// Chromem defaults.
const (
	DefaultChromemPath       = "./chroma_db"
	DefaultChromemCollection = "documents"
	catalogFilename          = "sources.json"
	addConcurrency           = 4
)

// ChromemStore is a persistent retrieval index on chromem-go.
// chromem cannot enumerate documents, so a JSON catalog next to the database
// maps each source to its chunk IDs.
type ChromemStore struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	name       string
	embedder   ports.EmbeddingService
	embed      chromem.EmbeddingFunc
	path       string
	catalog    map[string][]string
	logger     *slog.Logger
}

// NewChromemStore opens (or creates) the database at path and the named collection in it.
// A missing or stale source catalog is rebuilt from the stored chunk metadata.
func NewChromemStore(ctx context.Context, path, collection string, embedder ports.EmbeddingService, logger *slog.Logger) (*ChromemStore, error) {
	if path == "" {
		path = DefaultChromemPath
	}
	if collection == "" {
		collection = DefaultChromemCollection
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening chromem database: %w", err)
	}

	embed := chromem.EmbeddingFunc(embedder.Embed)
	col, err := db.GetOrCreateCollection(collection, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("opening collection %s: %w", collection, err)
	}

	s := &ChromemStore{
		db:         db,
		collection: col,
		name:       collection,
		embedder:   embedder,
		embed:      embed,
		path:       path,
		logger:     logger,
	}
	if err := s.loadCatalog(); err != nil {
		return nil, err
	}
	if s.catalogSize() != col.Count() {
		if err := s.rebuildCatalog(ctx); err != nil {
			logger.Warn("cannot rebuild source catalog; sources may be missing from listings", "path", s.catalogPath(), "error", err)
		}
	}

	logger.Info("chromem index opened", "path", path, "collection", collection, "chunks", col.Count())
	return s, nil
}

// Store embeds chunks and adds them to the collection.
func (s *ChromemStore) Store(ctx context.Context, chunks []entities.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	chunks = withIDs(chunks)
	vecs, err := embedChunks(ctx, s.embedder, chunks)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        c.ID,
			Content:   c.Text,
			Embedding: vecs[i],
			Metadata: map[string]string{
				"source": c.Metadata.Source,
				"page":   strconv.Itoa(c.Metadata.Page),
				"chunk":  strconv.Itoa(c.Metadata.Chunk),
			},
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.collection.AddDocuments(ctx, docs, addConcurrency); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	for _, c := range chunks {
		s.catalog[c.Metadata.Source] = append(s.catalog[c.Metadata.Source], c.ID)
	}
	return s.saveCatalog()
}

// Search returns up to k chunks ranked by chromem's cosine similarity.
func (s *ChromemStore) Search(ctx context.Context, query string, k int) ([]entities.RetrievedChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// chromem rejects nResults above the collection size.
	n := min(k, s.collection.Count())
	if n <= 0 {
		return []entities.RetrievedChunk{}, nil
	}

	results, err := s.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	hits := make([]entities.RetrievedChunk, len(results))
	for i, r := range results {
		hits[i] = entities.RetrievedChunk{
			Text:   r.Content,
			Source: entities.ParseSourceRef(r.Metadata),
			Score:  float64(r.Similarity),
		}
	}
	return hits, nil
}

// ListSources returns the distinct source filenames, sorted.
func (s *ChromemStore) ListSources(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make([]string, 0, len(s.catalog))
	for src := range s.catalog {
		sources = append(sources, src)
	}
	sort.Strings(sources)
	return sources, nil
}

// IsIndexed reports whether filename has any chunk.
func (s *ChromemStore) IsIndexed(_ context.Context, filename string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.catalog[filename]) > 0, nil
}

// DeleteBySource removes all chunks for a document.
func (s *ChromemStore) DeleteBySource(ctx context.Context, filename string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.catalog[filename]; !ok {
		return 0, nil
	}

	before := s.collection.Count()
	if err := s.collection.Delete(ctx, map[string]string{"source": filename}, nil); err != nil {
		return 0, fmt.Errorf("deleting %s: %w", filename, err)
	}
	removed := before - s.collection.Count()

	delete(s.catalog, filename)
	if err := s.saveCatalog(); err != nil {
		return removed, err
	}
	return removed, nil
}

// Count returns the number of stored chunks.
func (s *ChromemStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collection.Count(), nil
}

// Clear drops and recreates the collection.
func (s *ChromemStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(s.name); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	col, err := s.db.GetOrCreateCollection(s.name, nil, s.embed)
	if err != nil {
		return fmt.Errorf("recreating collection: %w", err)
	}
	s.collection = col
	s.catalog = make(map[string][]string)
	return s.saveCatalog()
}

// Close is a no-op; chromem persists every write immediately.
func (s *ChromemStore) Close() error { return nil }

func (s *ChromemStore) catalogPath() string {
	return filepath.Join(s.path, catalogFilename)
}

func (s *ChromemStore) loadCatalog() error {
	s.catalog = make(map[string][]string)

	data, err := os.ReadFile(s.catalogPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading source catalog: %w", err)
	}
	if err := json.Unmarshal(data, &s.catalog); err != nil {
		return fmt.Errorf("decoding source catalog: %w", err)
	}
	return nil
}

func (s *ChromemStore) catalogSize() int {
	n := 0
	for _, ids := range s.catalog {
		n += len(ids)
	}
	return n
}

// rebuildCatalog reads every chunk's source back from the collection.
// chromem only enumerates through a query, so one embedding call supplies a
// query vector of the collection's dimension.
func (s *ChromemStore) rebuildCatalog(ctx context.Context) error {
	catalog := make(map[string][]string)

	if n := s.collection.Count(); n > 0 {
		vec, err := s.embedder.Embed(ctx, "source catalog")
		if err != nil {
			return fmt.Errorf("embedding catalog query: %w", err)
		}
		results, err := s.collection.QueryEmbedding(ctx, vec, n, nil, nil)
		if err != nil {
			return fmt.Errorf("listing chunks: %w", err)
		}
		for _, r := range results {
			src := r.Metadata["source"]
			if src == "" {
				continue
			}
			catalog[src] = append(catalog[src], r.ID)
		}
		for _, ids := range catalog {
			sort.Strings(ids)
		}
	}

	s.catalog = catalog
	s.logger.Info("source catalog rebuilt", "sources", len(catalog), "chunks", s.collection.Count())
	return s.saveCatalog()
}

// saveCatalog replaces the catalog file atomically.
func (s *ChromemStore) saveCatalog() error {
	data, err := json.MarshalIndent(s.catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding source catalog: %w", err)
	}
	tmp := s.catalogPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing source catalog: %w", err)
	}
	if err := os.Rename(tmp, s.catalogPath()); err != nil {
		return fmt.Errorf("replacing source catalog: %w", err)
	}
	return nil
}

package vectordb

import (
	"context"
	"sort"
	"sync"

	"github.com/MoeScet/smart-document-chat/internal/domain/entities"
	"github.com/MoeScet/smart-document-chat/internal/domain/ports"
)

// InMemoryStore is a process-local retrieval index. Nothing survives a restart.
type InMemoryStore struct {
	embedder ports.EmbeddingService

	mu      sync.RWMutex
	entries []memoryEntry // Insertion order
}

type memoryEntry struct {
	id string
	candidate
}

// NewInMemoryStore creates a new in-memory retrieval index.
func NewInMemoryStore(embedder ports.EmbeddingService) *InMemoryStore {
	return &InMemoryStore{embedder: embedder}
}

// Store embeds and appends chunks. Chunks reusing an existing ID replace it.
func (s *InMemoryStore) Store(ctx context.Context, chunks []entities.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	chunks = withIDs(chunks)
	vecs, err := embedChunks(ctx, s.embedder, chunks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	replace := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		replace[c.ID] = struct{}{}
	}
	kept := s.entries[:0]
	for _, e := range s.entries {
		if _, ok := replace[e.id]; !ok {
			kept = append(kept, e)
		}
	}
	s.entries = kept

	for i, c := range chunks {
		s.entries = append(s.entries, memoryEntry{
			id:        c.ID,
			candidate: candidate{text: c.Text, meta: c.Metadata, embedding: vecs[i]},
		})
	}
	return nil
}

// Search ranks every stored chunk by cosine similarity to the query embedding.
func (s *InMemoryStore) Search(ctx context.Context, query string, k int) ([]entities.RetrievedChunk, error) {
	s.mu.RLock()
	empty := len(s.entries) == 0
	s.mu.RUnlock()
	if k <= 0 || empty {
		return []entities.RetrievedChunk{}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	cands := make([]candidate, len(s.entries))
	for i, e := range s.entries {
		cands[i] = e.candidate
	}
	return rank(vec, cands, k), nil
}

// ListSources returns the distinct source filenames, sorted.
func (s *InMemoryStore) ListSources(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	sources := []string{}
	for _, e := range s.entries {
		if _, ok := seen[e.meta.Source]; !ok {
			seen[e.meta.Source] = struct{}{}
			sources = append(sources, e.meta.Source)
		}
	}
	sort.Strings(sources)
	return sources, nil
}

// IsIndexed reports whether filename has any chunk.
func (s *InMemoryStore) IsIndexed(_ context.Context, filename string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.meta.Source == filename {
			return true, nil
		}
	}
	return false, nil
}

// DeleteBySource removes all chunks for a document.
func (s *InMemoryStore) DeleteBySource(_ context.Context, filename string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	removed := 0
	for _, e := range s.entries {
		if e.meta.Source == filename {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return removed, nil
}

// Count returns the number of stored chunks.
func (s *InMemoryStore) Count(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Clear removes all data from the store.
func (s *InMemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }

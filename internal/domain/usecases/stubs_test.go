package usecases

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/MoeScet/smart-document-chat/internal/domain/entities"
)

// stubExtractor serves page text per path.
type stubExtractor struct {
	pages map[string][]string
	err   error
}

func (s *stubExtractor) ExtractPages(_ context.Context, path string) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	pages, ok := s.pages[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return pages, nil
}

// stubLister returns a fixed listing.
type stubLister struct {
	paths []string
	err   error
}

func (s *stubLister) List(context.Context, string) ([]string, error) {
	return s.paths, s.err
}

// fakeIndex keeps chunks in insertion order and "ranks" by insertion order too.
type fakeIndex struct {
	mu        sync.Mutex
	chunks    []entities.Chunk
	storeErr  error
	searchErr error
	searched  []int
}

func (f *fakeIndex) Store(_ context.Context, chunks []entities.Chunk) error {
	if f.storeErr != nil {
		return f.storeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeIndex) Search(_ context.Context, _ string, k int) ([]entities.RetrievedChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searched = append(f.searched, k)
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var out []entities.RetrievedChunk
	for _, c := range f.chunks {
		if len(out) >= k {
			break
		}
		out = append(out, entities.RetrievedChunk{Text: c.Text, Source: c.Metadata.Ref(), Score: 1})
	}
	return out, nil
}

func (f *fakeIndex) ListSources(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, c := range f.chunks {
		if _, ok := seen[c.Metadata.Source]; !ok {
			seen[c.Metadata.Source] = struct{}{}
			out = append(out, c.Metadata.Source)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeIndex) IsIndexed(_ context.Context, filename string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.chunks {
		if c.Metadata.Source == filename {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeIndex) DeleteBySource(_ context.Context, filename string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.chunks[:0]
	removed := 0
	for _, c := range f.chunks {
		if c.Metadata.Source == filename {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	f.chunks = kept
	return removed, nil
}

func (f *fakeIndex) Count(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks), nil
}

func (f *fakeIndex) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = nil
	return nil
}

func (f *fakeIndex) Close() error { return nil }

func (f *fakeIndex) sources() []entities.Metadata {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entities.Metadata, len(f.chunks))
	for i, c := range f.chunks {
		out[i] = c.Metadata
	}
	return out
}

// stubGenerator records prompts and returns a canned reply.
type stubGenerator struct {
	reply   string
	err     error
	online  bool
	prompts []string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func (g *stubGenerator) Ping(context.Context) bool { return g.online }

// wordCounter counts whitespace-separated words as tokens.
type wordCounter struct{}

func (wordCounter) Count(text string) int { return len(strings.Fields(text)) }

package vectordb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoeScet/smart-document-chat/internal/domain/entities"
	"github.com/MoeScet/smart-document-chat/internal/domain/ports"
)

// vocab maps topic words onto fixed dimensions; the last dimension is a constant bias.
var vocab = map[string]int{"cat": 0, "dog": 1, "fish": 2, "bird": 3, "tree": 4}

// topicEmbedder counts topic words, so texts sharing words are similar.
type topicEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *topicEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	vec := make([]float32, len(vocab)+1)
	vec[len(vocab)] = 0.01
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if i, ok := vocab[strings.Trim(w, ".,!?")]; ok {
			vec[i]++
		}
	}
	return vec, nil
}

func (e *topicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func mustChunk(t *testing.T, text, source string, page, chunk int) entities.Chunk {
	t.Helper()
	c, err := entities.NewChunk(text, source, page, chunk)
	require.NoError(t, err)
	return c
}

type backend struct {
	name string
	open func(t *testing.T, dir string, emb ports.EmbeddingService) ports.RetrievalIndex
}

var backends = []backend{
	{"memory", func(t *testing.T, _ string, emb ports.EmbeddingService) ports.RetrievalIndex {
		return NewInMemoryStore(emb)
	}},
	{"sqlite", func(t *testing.T, dir string, emb ports.EmbeddingService) ports.RetrievalIndex {
		s, err := NewSQLiteStore(dir, emb, nil)
		require.NoError(t, err)
		return s
	}},
	{"chromem", func(t *testing.T, dir string, emb ports.EmbeddingService) ports.RetrievalIndex {
		s, err := NewChromemStore(context.Background(), dir, "", emb, nil)
		require.NoError(t, err)
		return s
	}},
}

func forEachBackend(t *testing.T, fn func(t *testing.T, idx ports.RetrievalIndex)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			idx := b.open(t, t.TempDir(), &topicEmbedder{})
			defer idx.Close()
			fn(t, idx)
		})
	}
}

func seed(t *testing.T, idx ports.RetrievalIndex) {
	t.Helper()
	require.NoError(t, idx.Store(context.Background(), []entities.Chunk{
		mustChunk(t, "The cat sat on the mat. cat cat.", "pets.pdf", 1, 0),
		mustChunk(t, "A dog chased the ball.", "pets.pdf", 1, 1),
		mustChunk(t, "Fish swim in the sea.", "ocean.pdf", 2, 0),
		mustChunk(t, "A bird sang in the tree.", "nature.pdf", 5, 0),
	}))
}

func TestIndex_SearchRanksBySimilarity(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx ports.RetrievalIndex) {
		seed(t, idx)

		hits, err := idx.Search(context.Background(), "where is my cat", 2)
		require.NoError(t, err)
		require.Len(t, hits, 2)

		assert.Equal(t, "The cat sat on the mat. cat cat.", hits[0].Text)
		assert.Equal(t, "pets.pdf (Page 1)", hits[0].Source.Citation())
		assert.Equal(t, 0, hits[0].Source.Chunk.MustGet())
		assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
	})
}

func TestIndex_SearchFewerThanK(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx ports.RetrievalIndex) {
		seed(t, idx)

		hits, err := idx.Search(context.Background(), "fish", 10)
		require.NoError(t, err)
		assert.Len(t, hits, 4)
		assert.Equal(t, "ocean.pdf (Page 2)", hits[0].Source.Citation())
	})
}

func TestIndex_SearchEmptyAndZeroK(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx ports.RetrievalIndex) {
		ctx := context.Background()

		hits, err := idx.Search(ctx, "anything", 5)
		require.NoError(t, err)
		assert.Empty(t, hits)

		seed(t, idx)
		hits, err = idx.Search(ctx, "cat", 0)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})
}

func TestIndex_StoreEmptyIsNoop(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx ports.RetrievalIndex) {
		require.NoError(t, idx.Store(context.Background(), nil))

		n, err := idx.Count(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestIndex_SourcesAndDelete(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx ports.RetrievalIndex) {
		ctx := context.Background()
		seed(t, idx)

		sources, err := idx.ListSources(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"nature.pdf", "ocean.pdf", "pets.pdf"}, sources)

		indexed, err := idx.IsIndexed(ctx, "pets.pdf")
		require.NoError(t, err)
		assert.True(t, indexed)

		removed, err := idx.DeleteBySource(ctx, "pets.pdf")
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		indexed, err = idx.IsIndexed(ctx, "pets.pdf")
		require.NoError(t, err)
		assert.False(t, indexed)

		n, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		hits, err := idx.Search(ctx, "cat dog", 5)
		require.NoError(t, err)
		for _, h := range hits {
			assert.NotEqual(t, "pets.pdf", h.Source.Source.OrElse(""))
		}

		removed, err = idx.DeleteBySource(ctx, "pets.pdf")
		require.NoError(t, err)
		assert.Zero(t, removed)
	})
}

func TestIndex_Clear(t *testing.T) {
	forEachBackend(t, func(t *testing.T, idx ports.RetrievalIndex) {
		ctx := context.Background()
		seed(t, idx)

		require.NoError(t, idx.Clear(ctx))

		n, err := idx.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		sources, err := idx.ListSources(ctx)
		require.NoError(t, err)
		assert.Empty(t, sources)

		seed(t, idx)
		n, err = idx.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})
}

func TestIndex_EmbeddingFailure(t *testing.T) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			cause := errors.New("ollama down")
			idx := b.open(t, t.TempDir(), &topicEmbedder{err: cause})
			defer idx.Close()

			err := idx.Store(context.Background(), []entities.Chunk{mustChunk(t, "cat", "a.pdf", 1, 0)})
			assert.ErrorIs(t, err, cause)

			n, err := idx.Count(context.Background())
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}

func TestIndex_Persistence(t *testing.T) {
	for _, b := range backends {
		if b.name == "memory" {
			continue
		}
		t.Run(b.name, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()

			first := b.open(t, dir, &topicEmbedder{})
			seed(t, first)
			require.NoError(t, first.Close())

			second := b.open(t, dir, &topicEmbedder{})
			defer second.Close()

			n, err := second.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			sources, err := second.ListSources(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"nature.pdf", "ocean.pdf", "pets.pdf"}, sources)

			hits, err := second.Search(ctx, "bird", 1)
			require.NoError(t, err)
			require.Len(t, hits, 1)
			assert.Equal(t, "nature.pdf (Page 5)", hits[0].Source.Citation())
		})
	}
}

func TestChromemStore_RebuildsCatalog(t *testing.T) {
	cases := map[string]func(t *testing.T, path string){
		"missing": func(t *testing.T, path string) {
			require.NoError(t, os.Remove(path))
		},
		"stale": func(t *testing.T, path string) {
			require.NoError(t, os.WriteFile(path, []byte(`{"pets.pdf":["gone"]}`), 0o644))
		},
	}
	for name, damage := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			ctx := context.Background()

			first, err := NewChromemStore(ctx, dir, "", &topicEmbedder{}, nil)
			require.NoError(t, err)
			seed(t, first)
			require.NoError(t, first.Close())

			damage(t, filepath.Join(dir, catalogFilename))

			second, err := NewChromemStore(ctx, dir, "", &topicEmbedder{}, nil)
			require.NoError(t, err)
			defer second.Close()

			sources, err := second.ListSources(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"nature.pdf", "ocean.pdf", "pets.pdf"}, sources)

			indexed, err := second.IsIndexed(ctx, "pets.pdf")
			require.NoError(t, err)
			assert.True(t, indexed)

			n, err := second.DeleteBySource(ctx, "pets.pdf")
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestChromemStore_RebuildFailureStillOpens(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewChromemStore(ctx, dir, "", &topicEmbedder{}, nil)
	require.NoError(t, err)
	seed(t, first)
	require.NoError(t, os.Remove(filepath.Join(dir, catalogFilename)))

	second, err := NewChromemStore(ctx, dir, "", &topicEmbedder{err: errors.New("ollama down")}, nil)
	require.NoError(t, err)

	n, err := second.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestRank_TiesKeepInsertionOrder(t *testing.T) {
	same := []float32{1, 0}
	cands := []candidate{
		{text: "first", meta: entities.Metadata{Source: "a.pdf", Page: 1}, embedding: same},
		{text: "second", meta: entities.Metadata{Source: "a.pdf", Page: 2}, embedding: same},
		{text: "other", meta: entities.Metadata{Source: "b.pdf", Page: 1}, embedding: []float32{0, 1}},
		{text: "third", meta: entities.Metadata{Source: "a.pdf", Page: 3}, embedding: same},
	}

	hits := rank([]float32{1, 0}, cands, 3)

	require.Len(t, hits, 3)
	assert.Equal(t, []string{"first", "second", "third"}, []string{hits[0].Text, hits[1].Text, hits[2].Text})
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, cosineSimilarity([]float32{1}, []float32{1, 2}))
	assert.Zero(t, cosineSimilarity([]float32{0, 0}, []float32{1, 2}))
}

func TestWithIDs(t *testing.T) {
	in := []entities.Chunk{{ID: "keep"}, {}}

	out := withIDs(in)

	assert.Equal(t, "keep", out[0].ID)
	assert.Len(t, out[1].ID, 36)
	assert.Empty(t, in[1].ID, "input is not modified")
}

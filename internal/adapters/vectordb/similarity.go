// Package vectordb provides retrieval index adapters.
// Each backend implements ports.RetrievalIndex and embeds text through ports.EmbeddingService.
package vectordb

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/MoeScet/smart-document-chat/internal/domain/entities"
	"github.com/MoeScet/smart-document-chat/internal/domain/ports"
)

// candidate is a stored chunk considered by brute-force ranking.
type candidate struct {
	text      string
	meta      entities.Metadata
	embedding []float32
}

// rank returns the k candidates most similar to query.
// Candidates must be in insertion order; equal scores keep that order.
func rank(query []float32, cands []candidate, k int) []entities.RetrievedChunk {
	if k <= 0 || len(cands) == 0 {
		return []entities.RetrievedChunk{}
	}

	scores := make([]float64, len(cands))
	order := make([]int, len(cands))
	for i, c := range cands {
		scores[i] = cosineSimilarity(query, c.embedding)
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if len(order) > k {
		order = order[:k]
	}
	hits := make([]entities.RetrievedChunk, len(order))
	for i, idx := range order {
		hits[i] = entities.RetrievedChunk{
			Text:   cands[idx].text,
			Source: cands[idx].meta.Ref(),
			Score:  scores[idx],
		}
	}
	return hits
}

// withIDs copies chunks, giving each one without an ID a random UUID.
func withIDs(chunks []entities.Chunk) []entities.Chunk {
	out := make([]entities.Chunk, len(chunks))
	for i, c := range chunks {
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		out[i] = c
	}
	return out
}

// embedChunks embeds chunk texts in order.
func embedChunks(ctx context.Context, embedder ports.EmbeddingService, chunks []entities.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding chunks: %w", err)
	}
	if len(vecs) != len(chunks) {
		return nil, fmt.Errorf("embedding chunks: got %d vectors for %d chunks", len(vecs), len(chunks))
	}
	return vecs, nil
}

// cosineSimilarity calculates cosine similarity between two vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Package usecases - query.go answers questions over the retrieval index.
package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MoeScet/smart-document-chat/internal/domain/entities"
	"github.com/MoeScet/smart-document-chat/internal/domain/ports"
)

// Retrieval depth bounds.
const (
	DefaultTopK = 5
	MaxTopK     = 20
)

// NoDocumentsMessage is answered when retrieval finds nothing.
const NoDocumentsMessage = "I don't have any documents to reference. Please upload some documents first."

const generationFailurePrefix = "Error getting response from Ollama: "

// Health is a snapshot of the index and generator state.
type Health struct {
	ChunksIndexed   int
	Documents       []string
	GeneratorOnline bool
}

// QueryUseCase runs retrieval-augmented generation.
type QueryUseCase struct {
	index     ports.RetrievalIndex
	generator ports.Generator
	prompts   *PromptBuilder
	logger    *slog.Logger
}

// NewQueryUseCase creates a QueryUseCase with injected dependencies.
func NewQueryUseCase(
	index ports.RetrievalIndex,
	generator ports.Generator,
	prompts *PromptBuilder,
	logger *slog.Logger,
) *QueryUseCase {
	if prompts == nil {
		prompts = NewPromptBuilder(nil, 0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryUseCase{
		index:     index,
		generator: generator,
		prompts:   prompts,
		logger:    logger,
	}
}

// Answer retrieves the top k chunks for query and asks the generator to answer from them.
// Generation failures are reported inside the Answer; only index failures return an error.
func (uc *QueryUseCase) Answer(
	ctx context.Context,
	query string,
	history []entities.ChatMessage,
	k int,
) (*entities.Answer, error) {
	hits, err := uc.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}

	if len(hits) == 0 {
		return &entities.Answer{Response: NoDocumentsMessage, Sources: []entities.SourceRef{}}, nil
	}

	texts := make([]string, len(hits))
	sources := make([]entities.SourceRef, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
		sources[i] = h.Source
	}

	prompt := uc.prompts.Build(query, texts, history)
	response, err := uc.generator.Generate(ctx, prompt)
	if err != nil {
		uc.logger.Warn("generation failed", "error", err)
		return &entities.Answer{
			Response: generationFailurePrefix + err.Error(),
			Sources:  []entities.SourceRef{},
		}, nil
	}

	return &entities.Answer{Response: response, Sources: sources}, nil
}

// Search only retrieves relevant chunks without generation.
func (uc *QueryUseCase) Search(ctx context.Context, query string, k int) ([]entities.RetrievedChunk, error) {
	hits, err := uc.index.Search(ctx, query, clampTopK(k))
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	return hits, nil
}

// Health reports index size, indexed documents and generator reachability.
func (uc *QueryUseCase) Health(ctx context.Context) (*Health, error) {
	count, err := uc.index.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}
	docs, err := uc.index.ListSources(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}
	return &Health{
		ChunksIndexed:   count,
		Documents:       docs,
		GeneratorOnline: uc.generator.Ping(ctx),
	}, nil
}

func clampTopK(k int) int {
	switch {
	case k <= 0:
		return DefaultTopK
	case k > MaxTopK:
		return MaxTopK
	default:
		return k
	}
}

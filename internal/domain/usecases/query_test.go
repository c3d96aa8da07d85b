package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MoeScet/smart-document-chat/internal/domain/entities"
)

func seededIndex(t *testing.T) *fakeIndex {
	t.Helper()
	index := &fakeIndex{}
	for i, row := range []struct {
		text, source string
		page         int
	}{
		{"Paris is the capital of France.", "geo.pdf", 3},
		{"The Seine flows through Paris.", "geo.pdf", 4},
		{"Croissants are French pastries.", "food.pdf", 1},
	} {
		c, err := entities.NewChunk(row.text, row.source, row.page, i%2)
		require.NoError(t, err)
		require.NoError(t, index.Store(context.Background(), []entities.Chunk{c}))
	}
	return index
}

func TestQueryUseCase_Answer(t *testing.T) {
	index := seededIndex(t)
	gen := &stubGenerator{reply: "Paris."}
	uc := NewQueryUseCase(index, gen, NewPromptBuilder(nil, 0), nil)

	history := []entities.ChatMessage{{Role: entities.RoleUser, Content: "hello"}}
	answer, err := uc.Answer(context.Background(), "What is the capital of France?", history, 2)
	require.NoError(t, err)

	assert.Equal(t, "Paris.", answer.Response)
	assert.Equal(t, []string{"geo.pdf (Page 3)", "geo.pdf (Page 4)"}, answer.Citations())

	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "Paris is the capital of France.\n\n---\n\nThe Seine flows through Paris.")
	assert.Contains(t, gen.prompts[0], "USER: hello")
	assert.Contains(t, gen.prompts[0], "USER QUESTION: What is the capital of France?")
}

func TestQueryUseCase_Answer_EmptyIndex(t *testing.T) {
	gen := &stubGenerator{reply: "should not be used"}
	uc := NewQueryUseCase(&fakeIndex{}, gen, nil, nil)

	answer, err := uc.Answer(context.Background(), "anything", nil, 5)
	require.NoError(t, err)

	assert.Equal(t, NoDocumentsMessage, answer.Response)
	assert.Empty(t, answer.Sources)
	assert.Empty(t, gen.prompts, "generator must not be called")
}

func TestQueryUseCase_Answer_GenerationFailure(t *testing.T) {
	gen := &stubGenerator{err: &entities.GenerationError{
		Kind:    entities.GenerationConnection,
		Message: "Cannot connect to Ollama. Make sure it's running with: ollama serve",
	}}
	uc := NewQueryUseCase(seededIndex(t), gen, nil, nil)

	answer, err := uc.Answer(context.Background(), "q", nil, 5)
	require.NoError(t, err)

	assert.Equal(t,
		"Error getting response from Ollama: Cannot connect to Ollama. Make sure it's running with: ollama serve",
		answer.Response)
	assert.Empty(t, answer.Sources)
}

func TestQueryUseCase_Answer_IndexFailure(t *testing.T) {
	cause := errors.New("index corrupted")
	gen := &stubGenerator{reply: "x"}
	uc := NewQueryUseCase(&fakeIndex{searchErr: cause}, gen, nil, nil)

	_, err := uc.Answer(context.Background(), "q", nil, 5)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, gen.prompts)
}

func TestQueryUseCase_TopKClamping(t *testing.T) {
	index := &fakeIndex{}
	uc := NewQueryUseCase(index, &stubGenerator{}, nil, nil)
	ctx := context.Background()

	for _, k := range []int{0, -3, 7, 50} {
		_, err := uc.Search(ctx, "q", k)
		require.NoError(t, err)
	}
	assert.Equal(t, []int{DefaultTopK, DefaultTopK, 7, MaxTopK}, index.searched)
}

func TestQueryUseCase_Search_FewerThanK(t *testing.T) {
	uc := NewQueryUseCase(seededIndex(t), &stubGenerator{}, nil, nil)

	hits, err := uc.Search(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)
}

func TestQueryUseCase_Health(t *testing.T) {
	uc := NewQueryUseCase(seededIndex(t), &stubGenerator{online: true}, nil, nil)

	health, err := uc.Health(context.Background())
	require.NoError(t, err)

	assert.Equal(t, &Health{
		ChunksIndexed:   3,
		Documents:       []string{"food.pdf", "geo.pdf"},
		GeneratorOnline: true,
	}, health)
}

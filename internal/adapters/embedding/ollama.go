// Package embedding provides the Ollama embedding adapter.
// It knows about Ollama specifics but the domain layer doesn't.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Defaults for the embedding endpoint.
const (
	DefaultBaseURL   = "http://localhost:11434"
	DefaultModel     = "nomic-embed-text"
	DefaultTimeout   = 60 * time.Second
	DefaultBatchSize = 32
)

// ErrEmptyEmbedding is returned when Ollama answers with no vector, usually an unknown model.
var ErrEmptyEmbedding = errors.New("empty embedding")

// OllamaAdapter implements ports.EmbeddingService using Ollama API.
// Texts go to /api/embed in batches. Servers without that route get one
// /api/embeddings call per text instead.
type OllamaAdapter struct {
	baseURL   string
	model     string
	batchSize int
	client    *http.Client
	logger    *slog.Logger

	legacy atomic.Bool
}

// NewOllamaAdapter creates a new Ollama embedding adapter.
func NewOllamaAdapter(baseURL, model string, timeout time.Duration, logger *slog.Logger) *OllamaAdapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaAdapter{
		baseURL:   baseURL,
		model:     model,
		batchSize: DefaultBatchSize,
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

type legacyEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type legacyEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

type apiError struct {
	Error string `json:"error"`
}

// errRouteNotFound marks a server without the requested route, e.g. one that predates /api/embed.
var errRouteNotFound = errors.New("embedding route not found")

// Embed generates an embedding for a single text.
func (a *OllamaAdapter) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := a.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts, in input order.
func (a *OllamaAdapter) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += a.batchSize {
		batch := texts[start:min(start+a.batchSize, len(texts))]

		vecs, err := a.embedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embedding texts %d-%d: %w", start, start+len(batch)-1, err)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (a *OllamaAdapter) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if !a.legacy.Load() {
		vecs, err := a.embedNative(ctx, texts)
		if !errors.Is(err, errRouteNotFound) {
			return vecs, err
		}
		a.legacy.Store(true)
		a.logger.Info("ollama has no /api/embed, embedding one text per request", "url", a.baseURL)
	}

	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := a.embedLegacy(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (a *OllamaAdapter) embedNative(ctx context.Context, texts []string) ([][]float32, error) {
	var resp embedResponse
	if err := a.post(ctx, "/api/embed", embedRequest{Model: a.model, Input: texts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	for _, vec := range resp.Embeddings {
		if len(vec) == 0 {
			return nil, fmt.Errorf("model %s: %w", a.model, ErrEmptyEmbedding)
		}
	}

	a.logger.Debug("embeddings generated", "model", a.model, "texts", len(texts), "dims", len(resp.Embeddings[0]))
	return resp.Embeddings, nil
}

func (a *OllamaAdapter) embedLegacy(ctx context.Context, text string) ([]float32, error) {
	var resp legacyEmbedResponse
	if err := a.post(ctx, "/api/embeddings", legacyEmbedRequest{Model: a.model, Prompt: text}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("model %s: %w", a.model, ErrEmptyEmbedding)
	}
	return resp.Embedding, nil
}

// post sends body as JSON and decodes a 200 answer into out.
// A 404 without an Ollama error body means the route itself is unknown.
func (a *OllamaAdapter) post(ctx context.Context, path string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Error("ollama embedding call failed", "url", a.baseURL, "model", a.model, "error", err)
		return fmt.Errorf("calling Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("Ollama returned status %d: %s", resp.StatusCode, apiErr.Error)
		}
		if resp.StatusCode == http.StatusNotFound {
			return errRouteNotFound
		}
		return fmt.Errorf("Ollama returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

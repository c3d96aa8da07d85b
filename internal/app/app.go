// Package app is the composition root: it builds every adapter once and injects them into the use cases.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MoeScet/smart-document-chat/internal/adapters/embedding"
	"github.com/MoeScet/smart-document-chat/internal/adapters/filewatcher"
	"github.com/MoeScet/smart-document-chat/internal/adapters/llm"
	"github.com/MoeScet/smart-document-chat/internal/adapters/loader"
	"github.com/MoeScet/smart-document-chat/internal/adapters/parser"
	"github.com/MoeScet/smart-document-chat/internal/adapters/tokenizer"
	"github.com/MoeScet/smart-document-chat/internal/adapters/vectordb"
	"github.com/MoeScet/smart-document-chat/internal/config"
	"github.com/MoeScet/smart-document-chat/internal/domain/entities"
	"github.com/MoeScet/smart-document-chat/internal/domain/ports"
	"github.com/MoeScet/smart-document-chat/internal/domain/usecases"
)

// App holds the wired components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	Index     ports.RetrievalIndex
	Generator *llm.OllamaGenerator
	Ingest    *usecases.IngestUseCase
	Query     *usecases.QueryUseCase
}

// New validates cfg and wires the application. Close releases the index.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	embedder := embedding.NewOllamaAdapter(cfg.Ollama.URL, cfg.Ollama.EmbedModel, cfg.Ollama.EmbedTimeout(), logger)

	index, err := openIndex(ctx, cfg.Index, embedder, logger)
	if err != nil {
		return nil, err
	}

	generator := llm.NewOllamaGenerator(llm.Config{
		BaseURL:     cfg.Ollama.URL,
		Model:       cfg.Ollama.Model,
		Temperature: cfg.Ollama.Temperature,
		TopP:        cfg.Ollama.TopP,
		Timeout:     cfg.Ollama.Timeout(),
		PingTimeout: cfg.Ollama.PingTimeout(),
	}, logger)

	var counter ports.TokenCounter
	if cfg.Retrieval.MaxContextTokens > 0 {
		counter = tokenizer.New(cfg.Retrieval.Encoding, logger)
	}

	ingest := usecases.NewIngestUseCase(
		parser.NewPDFExtractor(logger),
		index,
		loader.NewFolderScanner(""),
		cfg.Ingest.ChunkSize,
		cfg.Ingest.ChunkOverlap,
		logger,
	)
	query := usecases.NewQueryUseCase(
		index,
		generator,
		usecases.NewPromptBuilder(counter, cfg.Retrieval.MaxContextTokens),
		logger,
	)

	if generator.Ping(ctx) {
		logger.Info("connected to Ollama", "url", cfg.Ollama.URL, "model", cfg.Ollama.Model)
	} else {
		logger.Warn("cannot reach Ollama, answers will fail until it is running", "url", cfg.Ollama.URL)
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		Index:     index,
		Generator: generator,
		Ingest:    ingest,
		Query:     query,
	}, nil
}

func openIndex(ctx context.Context, cfg config.IndexConfig, embedder ports.EmbeddingService, logger *slog.Logger) (ports.RetrievalIndex, error) {
	switch cfg.Backend {
	case config.BackendChromem:
		return vectordb.NewChromemStore(ctx, cfg.Path, cfg.Collection, embedder, logger)
	case config.BackendSQLite:
		return vectordb.NewSQLiteStore(cfg.Path, embedder, logger)
	case config.BackendMemory:
		return vectordb.NewInMemoryStore(embedder), nil
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

// Ask answers a question with the configured retrieval depth.
func (a *App) Ask(ctx context.Context, question string, history []entities.ChatMessage) (*entities.Answer, error) {
	return a.Query.Answer(ctx, question, history, a.cfg.Retrieval.TopK)
}

// Preprocess indexes every new PDF in the documents folder.
func (a *App) Preprocess(ctx context.Context) (*usecases.FolderReport, error) {
	return a.Ingest.IngestFolder(ctx, a.cfg.Ingest.DocumentsDir)
}

// Watch keeps the index in sync with the documents folder until ctx ends.
func (a *App) Watch(ctx context.Context) error {
	watcher, err := filewatcher.NewFSNotifyWatcher(filewatcher.Config{}, a.logger)
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	return usecases.NewWatchUseCase(watcher, a.Ingest, a.logger).Run(ctx, a.cfg.Ingest.DocumentsDir)
}

// Run preprocesses the documents folder, then watches it when configured to.
func (a *App) Run(ctx context.Context) error {
	if _, err := a.Preprocess(ctx); err != nil {
		return err
	}
	if !a.cfg.Ingest.Watch {
		return nil
	}
	err := a.Watch(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the index.
func (a *App) Close() error {
	return a.Index.Close()
}

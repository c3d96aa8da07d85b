package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/MoeScet/smart-document-chat/internal/domain/entities"
	"github.com/MoeScet/smart-document-chat/internal/domain/ports"
)

// WatchUseCase keeps the index in sync with a documents folder as files change.
type WatchUseCase struct {
	watcher ports.FileWatcher
	ingest  *IngestUseCase
	logger  *slog.Logger
}

// NewWatchUseCase creates a WatchUseCase.
func NewWatchUseCase(watcher ports.FileWatcher, ingest *IngestUseCase, logger *slog.Logger) *WatchUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatchUseCase{watcher: watcher, ingest: ingest, logger: logger}
}

// Run applies folder events until ctx is cancelled or the watcher closes its channel.
// Per-file failures are logged and never stop the loop.
func (uc *WatchUseCase) Run(ctx context.Context, dir string) error {
	events, err := uc.watcher.Watch(ctx, dir)
	if err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	defer uc.watcher.Stop()

	uc.logger.Info("watching documents folder", "dir", dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			uc.handle(ctx, ev)
		}
	}
}

func (uc *WatchUseCase) handle(ctx context.Context, ev ports.FileEvent) {
	filename := filepath.Base(ev.Path)
	switch ev.Operation {
	case ports.FileCreated, ports.FileModified:
		if _, err := uc.ingest.Reindex(ctx, ev.Path); err != nil {
			uc.logger.Error("reindex failed", "filename", filename, "op", ev.Operation.String(), "error", err)
		}
	case ports.FileDeleted:
		_, err := uc.ingest.DeleteDocument(ctx, filename)
		if errors.Is(err, entities.ErrNotIndexed) {
			uc.logger.Debug("deleted file was not indexed", "filename", filename)
		} else if err != nil {
			uc.logger.Error("delete failed", "filename", filename, "error", err)
		}
	}
}

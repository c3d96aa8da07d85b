// Package filewatcher provides file system monitoring adapters.
package filewatcher

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MoeScet/smart-document-chat/internal/domain/ports"
)

// DefaultSettle is how long a path must stay quiet before its event is emitted.
const DefaultSettle = 500 * time.Millisecond

// Config configures an FSNotifyWatcher. Zero values take the defaults.
type Config struct {
	// Extensions are matched case-insensitively. Defaults to ".pdf".
	Extensions []string
	Settle     time.Duration
}

// FSNotifyWatcher implements ports.FileWatcher using fsnotify.
//
// Copying a PDF into the folder fires a create followed by a stream of
// writes. Events are held per path until the path has been quiet for the
// settle period, then one event goes out carrying the net operation.
type FSNotifyWatcher struct {
	watcher    *fsnotify.Watcher
	extensions map[string]struct{}
	settle     time.Duration
	logger     *slog.Logger
}

// NewFSNotifyWatcher creates a watcher for the configured extensions.
func NewFSNotifyWatcher(cfg Config, logger *slog.Logger) (*FSNotifyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".pdf"}
	}
	exts := make(map[string]struct{}, len(cfg.Extensions))
	for _, e := range cfg.Extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	if cfg.Settle <= 0 {
		cfg.Settle = DefaultSettle
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FSNotifyWatcher{
		watcher:    w,
		extensions: exts,
		settle:     cfg.Settle,
		logger:     logger,
	}, nil
}

// Watch starts monitoring dir. The channel closes when ctx ends or the watcher stops.
func (w *FSNotifyWatcher) Watch(ctx context.Context, dir string) (<-chan ports.FileEvent, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	events := make(chan ports.FileEvent, 100)
	go w.run(ctx, dir, events)
	return events, nil
}

func (w *FSNotifyWatcher) run(ctx context.Context, dir string, out chan<- ports.FileEvent) {
	defer close(out)

	pending := newBatch()
	var flush <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			op, ok := w.translate(event)
			if !ok {
				continue
			}
			pending.add(event.Name, op)
			flush = time.After(w.settle)
		case <-flush:
			flush = nil
			for _, ev := range pending.drain() {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "dir", dir, "error", err)
		}
	}
}

// translate maps a raw fsnotify event onto a FileOperation for watched files.
func (w *FSNotifyWatcher) translate(event fsnotify.Event) (ports.FileOperation, bool) {
	if !w.isWatchedExtension(event.Name) {
		return 0, false
	}
	switch {
	case event.Op.Has(fsnotify.Create):
		return ports.FileCreated, true
	case event.Op.Has(fsnotify.Write):
		return ports.FileModified, true
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		// A rename away looks like a removal from this folder.
		return ports.FileDeleted, true
	default:
		return 0, false
	}
}

// Stop stops the watcher.
func (w *FSNotifyWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *FSNotifyWatcher) isWatchedExtension(path string) bool {
	_, ok := w.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// batch accumulates the net operation per path, in first-seen order.
type batch struct {
	ops   map[string]ports.FileOperation
	order []string
}

func newBatch() *batch {
	return &batch{ops: make(map[string]ports.FileOperation)}
}

func (b *batch) add(path string, op ports.FileOperation) {
	prev, seen := b.ops[path]
	if !seen {
		b.order = append(b.order, path)
	}
	// Writes to a file created in this batch are part of its creation.
	if seen && prev == ports.FileCreated && op == ports.FileModified {
		return
	}
	b.ops[path] = op
}

func (b *batch) drain() []ports.FileEvent {
	events := make([]ports.FileEvent, len(b.order))
	for i, path := range b.order {
		events[i] = ports.FileEvent{Path: path, Operation: b.ops[path]}
	}
	b.ops = make(map[string]ports.FileOperation)
	b.order = nil
	return events
}

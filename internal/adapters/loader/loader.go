// Package loader provides document discovery adapters.
package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPattern matches .pdf and .PDF files directly inside the folder.
const DefaultPattern = "*.{pdf,PDF}"

// FolderScanner lists ingestible documents in a folder.
// Implements ports.DocumentLister.
type FolderScanner struct {
	pattern string
}

// NewFolderScanner creates a scanner. An empty pattern means DefaultPattern.
func NewFolderScanner(pattern string) *FolderScanner {
	if pattern == "" {
		pattern = DefaultPattern
	}
	return &FolderScanner{pattern: pattern}
}

// List creates dir when missing and returns the matching paths under it, sorted by name.
func (s *FolderScanner) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	// Globbing inside an fs.FS keeps metacharacters in dir from being read as pattern syntax.
	matches, err := doublestar.Glob(os.DirFS(dir), s.pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	sort.Strings(matches)
	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = filepath.Join(dir, filepath.FromSlash(m))
	}
	return paths, nil
}

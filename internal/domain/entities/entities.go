// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no knowledge of storage or transport.
package entities

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/mo"
)

// Defaults used when rendering metadata that an index returned without a field.
const (
	UnknownSource = "Unknown"
	UnknownPage   = "?"
)

// Metadata is the provenance of a chunk.
type Metadata struct {
	Source string // Filename, the document identity
	Page   int    // 1-based PDF page number
	Chunk  int    // 0-based position within the page's chunk sequence
}

// Chunk is a bounded slice of document text plus its provenance.
// Immutable once created; persisted verbatim into the retrieval index.
type Chunk struct {
	ID       string // Assigned by the index when empty
	Text     string
	Metadata Metadata
}

// NewChunk builds a validated Chunk.
func NewChunk(text, source string, page, chunk int) (Chunk, error) {
	switch {
	case strings.TrimSpace(text) == "":
		return Chunk{}, fmt.Errorf("%w: empty text", ErrInvalidChunk)
	case source == "":
		return Chunk{}, fmt.Errorf("%w: empty source", ErrInvalidChunk)
	case page < 1:
		return Chunk{}, fmt.Errorf("%w: page %d < 1", ErrInvalidChunk, page)
	case chunk < 0:
		return Chunk{}, fmt.Errorf("%w: chunk %d < 0", ErrInvalidChunk, chunk)
	}
	return Chunk{
		Text:     text,
		Metadata: Metadata{Source: source, Page: page, Chunk: chunk},
	}, nil
}

// Ref converts stored metadata into the read-back form.
func (m Metadata) Ref() SourceRef {
	return SourceRef{
		Source: mo.Some(m.Source),
		Page:   mo.Some(m.Page),
		Chunk:  mo.Some(m.Chunk),
	}
}

// SourceRef is chunk metadata as read back from an index.
// Every field is optional since persisted metadata may be incomplete.
type SourceRef struct {
	Source mo.Option[string]
	Page   mo.Option[int]
	Chunk  mo.Option[int]
}

// ParseSourceRef reads string-keyed metadata. Missing or malformed fields become None.
func ParseSourceRef(meta map[string]string) SourceRef {
	var ref SourceRef
	if s, ok := meta["source"]; ok && s != "" {
		ref.Source = mo.Some(s)
	}
	if p, err := strconv.Atoi(meta["page"]); err == nil {
		ref.Page = mo.Some(p)
	}
	if c, err := strconv.Atoi(meta["chunk"]); err == nil {
		ref.Chunk = mo.Some(c)
	}
	return ref
}

// Citation renders "{source} (Page {page})".
func (r SourceRef) Citation() string {
	page := UnknownPage
	if p, ok := r.Page.Get(); ok {
		page = strconv.Itoa(p)
	}
	return fmt.Sprintf("%s (Page %s)", r.Source.OrElse(UnknownSource), page)
}

// FormatSources renders one citation per entry, order preserved.
func FormatSources(refs []SourceRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.Citation()
	}
	return out
}

// RetrievedChunk is one ranked search hit.
type RetrievedChunk struct {
	Text   string
	Source SourceRef
	Score  float64 // Diagnostic only; callers rely on rank order
}

// Role of a chat message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage represents a conversation turn.
type ChatMessage struct {
	Role    Role
	Content string
}

// Answer is the orchestrator output: generated text plus the metadata of the chunks it saw.
type Answer struct {
	Response string
	Sources  []SourceRef
}

// Citations is shorthand for FormatSources(a.Sources).
func (a *Answer) Citations() []string {
	return FormatSources(a.Sources)
}

// DocumentStats aggregates a chunk sequence.
type DocumentStats struct {
	TotalChunks     int
	TotalCharacters int
	Sources         []string // Sorted, distinct
	AvgChunkSize    int
	Pages           int // Distinct (source, page) pairs
}

// GetDocumentStats is a pure aggregation; empty input yields zeros.
func GetDocumentStats(chunks []Chunk) DocumentStats {
	if len(chunks) == 0 {
		return DocumentStats{Sources: []string{}}
	}

	sources := make(map[string]struct{})
	pages := make(map[Metadata]struct{})
	total := 0
	for _, c := range chunks {
		total += len([]rune(c.Text))
		sources[c.Metadata.Source] = struct{}{}
		pages[Metadata{Source: c.Metadata.Source, Page: c.Metadata.Page}] = struct{}{}
	}

	names := make([]string, 0, len(sources))
	for s := range sources {
		names = append(names, s)
	}
	sort.Strings(names)

	return DocumentStats{
		TotalChunks:     len(chunks),
		TotalCharacters: total,
		Sources:         names,
		AvgChunkSize:    total / len(chunks),
		Pages:           len(pages),
	}
}

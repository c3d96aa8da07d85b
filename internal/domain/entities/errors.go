package entities

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidChunk is returned by NewChunk when a field breaks the chunk invariants.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidChunkParams is returned by the splitter for a non-positive size or an overlap >= size.
	ErrInvalidChunkParams = errors.New("invalid chunk parameters")

	// ErrNoExtractableText means a document produced no chunks.
	ErrNoExtractableText = errors.New("no extractable text")

	// ErrAlreadyIndexed means a filename already has chunks in the index.
	ErrAlreadyIndexed = errors.New("document already indexed")

	// ErrNotIndexed means a filename has no chunks in the index.
	ErrNotIndexed = errors.New("document not indexed")
)

// DocumentProcessingError names the file whose ingestion failed.
type DocumentProcessingError struct {
	Filename string
	Err      error
}

func (e *DocumentProcessingError) Error() string {
	return fmt.Sprintf("error processing PDF %s: %v", e.Filename, e.Err)
}

func (e *DocumentProcessingError) Unwrap() error { return e.Err }

// GenerationErrorKind classifies generation failures.
type GenerationErrorKind int

const (
	GenerationOther GenerationErrorKind = iota
	GenerationConnection
	GenerationTimeout
)

func (k GenerationErrorKind) String() string {
	switch k {
	case GenerationConnection:
		return "connection"
	case GenerationTimeout:
		return "timeout"
	default:
		return "other"
	}
}

// GenerationError is returned by generators for any failed call.
type GenerationError struct {
	Kind    GenerationErrorKind
	Message string
	Err     error
}

func (e *GenerationError) Error() string { return e.Message }

func (e *GenerationError) Unwrap() error { return e.Err }

// IsGenerationError reports whether err is a *GenerationError and returns it.
func IsGenerationError(err error) (*GenerationError, bool) {
	var genErr *GenerationError
	if errors.As(err, &genErr) {
		return genErr, true
	}
	return nil, false
}

package usecases

import (
	"fmt"
	"strings"

	"github.com/MoeScet/smart-document-chat/internal/domain/entities"
)

// Splitter defaults for free-standing text. Ingestion uses its own page settings.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// sentenceBreaks are tried in order; the first kind found in the window wins.
var sentenceBreaks = [][]rune{
	[]rune(". "),
	[]rune("? "),
	[]rune("! "),
	[]rune("\n"),
}

// SplitText splits text into overlapping chunks of at most chunkSize characters,
// preferring to cut after a sentence break, then at a space, then mid-word.
// Consecutive chunks share up to overlap characters. Empty chunks are dropped.
//
// A boundary is only accepted when it lies past the end of the previous chunk,
// and the next chunk never starts before the current one, so every chunk adds
// new text and the cursor always moves forward.
func SplitText(text string, chunkSize, overlap int) ([]string, error) {
	if chunkSize <= 0 || overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", entities.ErrInvalidChunkParams, chunkSize, overlap)
	}

	runes := []rune(text)
	n := len(runes)

	var chunks []string
	start, prevEnd := 0, 0
	for start < n {
		end := start + chunkSize
		if end < n {
			end = findBoundary(runes, start, end, prevEnd)
		} else {
			end = n
		}

		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= n {
			break
		}
		// An early break can sit closer to start than overlap.
		prevEnd = end
		start = max(end-overlap, start+1)
	}

	return chunks, nil
}

// findBoundary picks the cut position for the window [start, end).
// Candidates must produce a cut strictly after prevEnd.
func findBoundary(runes []rune, start, end, prevEnd int) int {
	lo := max(start, prevEnd)
	for _, br := range sentenceBreaks {
		if at := lastIndex(runes, br, lo, end); at != -1 {
			return at + 1
		}
	}
	if at := lastIndex(runes, []rune{' '}, lo+1, end); at != -1 {
		return at
	}
	return end
}

// lastIndex finds the last occurrence of sep lying entirely within runes[lo:hi].
func lastIndex(runes, sep []rune, lo, hi int) int {
	for i := hi - len(sep); i >= lo; i-- {
		match := true
		for j, r := range sep {
			if runes[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

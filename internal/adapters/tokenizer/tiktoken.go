// Package tokenizer measures prompt text in model tokens.
package tokenizer

import (
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/MoeScet/smart-document-chat/internal/domain/ports"
)

// DefaultEncoding is the BPE used to approximate local model token counts.
const DefaultEncoding = "cl100k_base"

var (
	_ ports.TokenCounter = (*TikTokenCounter)(nil)
	_ ports.TokenCounter = ApproxCounter{}
)

// TikTokenCounter counts tokens with a tiktoken encoding.
type TikTokenCounter struct {
	tke *tiktoken.Tiktoken
}

// NewTikTokenCounter loads the named encoding. Loading may need network access for the BPE ranks.
func NewTikTokenCounter(encoding string) (*TikTokenCounter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get encoding %s: %w", encoding, err)
	}
	return &TikTokenCounter{tke: tke}, nil
}

// Count returns the number of tokens in text.
func (c *TikTokenCounter) Count(text string) int {
	return len(c.tke.Encode(text, nil, nil))
}

// ApproxCounter estimates one token per four characters.
type ApproxCounter struct{}

// Count returns ceil(runes/4).
func (ApproxCounter) Count(text string) int {
	return (utf8.RuneCountInString(text) + 3) / 4
}

// New returns a tiktoken counter, or ApproxCounter when the encoding cannot be loaded.
func New(encoding string, logger *slog.Logger) ports.TokenCounter {
	c, err := NewTikTokenCounter(encoding)
	if err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("tiktoken unavailable, estimating tokens from length", "encoding", encoding, "error", err)
		return ApproxCounter{}
	}
	return c
}

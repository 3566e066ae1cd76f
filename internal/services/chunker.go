package services

import (
	"log/slog"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"easyform/internal/log"
)

const chunkerEncoding = "cl100k_base"

// Chunker splits page text into token-bounded, overlapping chunks. When the
// tiktoken encoding cannot be loaded it falls back to a word-count
// approximation (tokens taken as three quarters of the word count).
type Chunker struct {
	size     int
	overlap  int
	encoding *tiktoken.Tiktoken
	logger   *slog.Logger
}

// NewChunker creates a chunker with the given token size and overlap.
func NewChunker(size, overlap int) *Chunker {
	logger := log.WithModule("chunker")

	encoding, err := tiktoken.GetEncoding(chunkerEncoding)
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, using word-count approximation", "error", err)
		encoding = nil
	}

	return &Chunker{
		size:     size,
		overlap:  overlap,
		encoding: encoding,
		logger:   logger,
	}
}

// CountTokens returns the token count of text.
func (c *Chunker) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if c.encoding != nil {
		return len(c.encoding.Encode(text, nil, nil))
	}
	words := len(strings.Fields(text))
	return (words*3 + 3) / 4
}

// Split slices text into chunks of roughly the configured token size with the
// configured overlap. Returns nil for empty input.
func (c *Chunker) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if c.encoding != nil {
		return c.splitByTokens(text)
	}
	return c.splitByWords(text)
}

func (c *Chunker) splitByTokens(text string) []string {
	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) <= c.size {
		return []string{text}
	}

	step := c.size - c.overlap
	if step <= 0 {
		step = c.size
	}

	chunks := make([]string, 0, len(tokens)/step+1)
	for start := 0; start < len(tokens); start += step {
		end := start + c.size
		if end > len(tokens) {
			end = len(tokens)
		}
		chunk := strings.TrimSpace(c.encoding.Decode(tokens[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

func (c *Chunker) splitByWords(text string) []string {
	words := strings.Fields(text)

	// tokens ~ 3/4 of words, so invert the ratio for word budgets
	wordsPerChunk := c.size * 4 / 3
	overlapWords := c.overlap * 4 / 3
	if wordsPerChunk <= 0 {
		wordsPerChunk = 1
	}
	if len(words) <= wordsPerChunk {
		return []string{text}
	}

	step := wordsPerChunk - overlapWords
	if step <= 0 {
		step = wordsPerChunk
	}

	chunks := make([]string, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := start + wordsPerChunk
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.TrimSpace(strings.Join(words[start:end], " "))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(words) {
			break
		}
	}
	return chunks
}

package services

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easyform/internal/log"
)

// wordChunker builds a chunker without a tiktoken encoding so the word-count
// fallback is exercised deterministically.
func wordChunker(size, overlap int) *Chunker {
	return &Chunker{size: size, overlap: overlap, logger: log.WithModule("chunker")}
}

func numberedWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestCountTokens_WordApproximation(t *testing.T) {
	c := wordChunker(100, 10)
	assert.Equal(t, 0, c.CountTokens(""))
	// tokens ~ ceil(words * 3/4)
	assert.Equal(t, 1, c.CountTokens("one"))
	assert.Equal(t, 3, c.CountTokens("one two three four"))
	assert.Equal(t, 6, c.CountTokens(numberedWords(8)))
}

func TestSplit_Empty(t *testing.T) {
	c := wordChunker(100, 10)
	assert.Nil(t, c.Split(""))
	assert.Nil(t, c.Split("  \n  "))
}

func TestSplit_SingleChunkWhenSmall(t *testing.T) {
	c := wordChunker(100, 10)
	text := numberedWords(20)
	chunks := c.Split(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestSplit_OverlappingChunks(t *testing.T) {
	// size 30 tokens -> 40 words per chunk, overlap 15 tokens -> 20 words
	c := wordChunker(30, 15)
	chunks := c.Split(numberedWords(100))
	require.Len(t, chunks, 4)

	first := strings.Fields(chunks[0])
	second := strings.Fields(chunks[1])
	assert.Len(t, first, 40)
	assert.Equal(t, "w0", first[0])
	// the second chunk starts one step (20 words) in, overlapping the first
	assert.Equal(t, "w20", second[0])
	assert.Equal(t, first[20], second[0])

	last := strings.Fields(chunks[len(chunks)-1])
	assert.Equal(t, "w99", last[len(last)-1])
}

func TestSplit_DegenerateOverlap(t *testing.T) {
	// overlap >= size must still make forward progress
	c := wordChunker(10, 10)
	chunks := c.Split(numberedWords(40))
	require.NotEmpty(t, chunks)

	total := 0
	for _, chunk := range chunks {
		total += len(strings.Fields(chunk))
	}
	// no overlap in the degenerate case: chunks partition the text
	assert.Equal(t, 40, total)
}

func TestNewChunker_LoadsEncoding(t *testing.T) {
	c := NewChunker(512, 50)
	require.NotNil(t, c)
	if c.encoding == nil {
		t.Skip("tiktoken encoding unavailable in this environment")
	}
	// A realistic count, not the word approximation
	count := c.CountTokens("The quick brown fox jumps over the lazy dog")
	assert.Greater(t, count, 5)
	assert.Less(t, count, 15)
}

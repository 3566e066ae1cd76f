package agents

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncateOnRuneBoundary(t *testing.T) {
	assert.Equal(t, "short", truncateOnRuneBoundary("short", 500))
	assert.Equal(t, "abcd", truncateOnRuneBoundary("abcdef", 4))

	// A multi-byte rune straddling the limit is dropped whole
	text := strings.Repeat("a", 499) + "é"
	cut := truncateOnRuneBoundary(text, 500)
	assert.Equal(t, strings.Repeat("a", 499), cut)
	assert.True(t, utf8.ValidString(cut))

	cjk := strings.Repeat("表", 200) // 3 bytes each
	cut = truncateOnRuneBoundary(cjk, 500)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, 498, len(cut))
}

func TestFormatDocumentContext(t *testing.T) {
	assert.Contains(t, formatDocumentContext(nil, 0), "No relevant context")

	excerpts := []ContextExcerpt{
		{SourceLabel: "report.pdf (page 2)", Text: strings.Repeat("a", 499) + "日本語"},
	}
	out := formatDocumentContext(excerpts, 1)
	assert.Contains(t, out, "[report.pdf (page 2)]")
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "1 relevant image(s)")

	// Only the first five excerpts are rendered
	many := make([]ContextExcerpt, 7)
	for i := range many {
		many[i] = ContextExcerpt{SourceLabel: "doc", Text: "x"}
	}
	assert.Equal(t, 5, strings.Count(formatDocumentContext(many, 0), "[doc]"))
}

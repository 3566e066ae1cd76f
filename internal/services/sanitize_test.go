package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "a\nb", SanitizeText("a\r\nb"))
	assert.Equal(t, "a\nb", SanitizeText("a\rb"))
	assert.Equal(t, "a b", SanitizeText("a\tb"))
	assert.Equal(t, "a b", SanitizeText("a\fb"))
	// Runs of three or more newlines collapse to a paragraph break
	assert.Equal(t, "a\n\nb", SanitizeText("a\n\n\n\n\nb"))
	// Exactly two newlines are preserved
	assert.Equal(t, "a\n\nb", SanitizeText("a\n\nb"))
	assert.Equal(t, "hello", SanitizeText("  hello \n\n"))
	assert.Equal(t, "", SanitizeText("   \t  "))
}

func TestSanitizeHTML_StripsNonContentTags(t *testing.T) {
	html := `<html><head><style>.x{color:red}</style></head><body>` +
		`<script>alert("hi")</script>` +
		`<noscript>enable js</noscript>` +
		`<form><input name="email"></form>` +
		`</body></html>`

	cleaned := SanitizeHTML(html)
	assert.NotContains(t, cleaned, "alert")
	assert.NotContains(t, cleaned, "color:red")
	assert.NotContains(t, cleaned, "enable js")
	assert.Contains(t, cleaned, `name="email"`)
}

func TestSanitizeHTML_Empty(t *testing.T) {
	assert.Equal(t, "", SanitizeHTML("   "))
}

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "First name", NormalizeLabel("  First   name  "))
	assert.Equal(t, "First name", NormalizeLabel("First\nname"))
	assert.Equal(t, "a b c", NormalizeLabel("a \t b \n c"))
	assert.Equal(t, "", NormalizeLabel(" \n "))
}

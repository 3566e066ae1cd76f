package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// StripCodeFences removes a leading ```json or ``` fence plus the trailing
// fence, and surrounding whitespace.
func StripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	if strings.HasSuffix(strings.TrimSpace(s), "```") {
		s = strings.TrimSpace(s)
		s = s[:len(s)-len("```")]
	}
	return strings.TrimSpace(s)
}

// EscapeControlChars escapes unescaped control bytes (< 0x20) that appear
// inside JSON string literals. Models occasionally emit literal newlines in
// string values, which the strict parser rejects.
func EscapeControlChars(raw string) string {
	var out strings.Builder
	out.Grow(len(raw))

	inString := false
	escaped := false
	for i := 0; i < len(raw); i++ {
		b := raw[i]
		if escaped {
			out.WriteByte(b)
			escaped = false
			continue
		}
		switch {
		case b == '\\' && inString:
			out.WriteByte(b)
			escaped = true
		case b == '"':
			out.WriteByte(b)
			inString = !inString
		case inString && b < 0x20:
			switch b {
			case '\n':
				out.WriteString(`\n`)
			case '\r':
				out.WriteString(`\r`)
			case '\t':
				out.WriteString(`\t`)
			default:
				out.WriteString(fmt.Sprintf(`\u%04x`, b))
			}
		default:
			out.WriteByte(b)
		}
	}
	return out.String()
}

// ParseTolerant parses model output into a JSON object: fence stripping,
// control-char escaping, strict parse, then a best-effort repair pass.
func ParseTolerant(raw string) (map[string]interface{}, error) {
	cleaned := EscapeControlChars(StripCodeFences(raw))
	if cleaned == "" {
		return nil, fmt.Errorf("empty response")
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err == nil {
		return parsed, nil
	}

	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return nil, fmt.Errorf("json repair failed: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &parsed); err != nil {
		return nil, fmt.Errorf("parse after repair failed: %w", err)
	}
	return parsed, nil
}

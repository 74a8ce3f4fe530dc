package genai

import (
	"encoding/json"
	"regexp"
	"strings"

	"genieops-engine/internal/common/errors"
)

var (
	reasoningSpan = regexp.MustCompile(`(?s)<think>.*?</think>`)
	formatNoise   = strings.NewReplacer("`", `"`, "\n", " ", "\r", " ")
)

// Extract recovers the outermost JSON object from raw model text.
//
// Reasoning spans are dropped, backticks are read as double quotes and line breaks as
// spaces, then the text between the first '{' and the last '}' is decoded. Other raw
// control characters inside string literals are tolerated. Every failure is returned as a
// PARSE_ERROR; Extract never panics.
func Extract(raw string) (map[string]interface{}, error) {
	text := formatNoise.Replace(reasoningSpan.ReplaceAllString(raw, ""))

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return nil, errors.NewParseError("no JSON object found")
	}

	out, err := decodeObject(text[start : end+1])
	if err != nil {
		return nil, errors.NewParseError(err.Error())
	}
	return out, nil
}

func decodeObject(s string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(escapeControlChars(s)), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// escapeControlChars rewrites bytes below 0x20 inside string literals as \u escapes and
// turns the ones outside literals into spaces, so encoding/json accepts them.
func escapeControlChars(s string) string {
	if !hasControlChars(s) {
		return s
	}

	const hex = "0123456789abcdef"
	var b strings.Builder
	b.Grow(len(s) + 16)

	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c < 0x20 && inString:
			b.WriteString(`\u00`)
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0xf])
			escaped = false
			continue
		case c < 0x20:
			b.WriteByte(' ')
			continue
		}

		b.WriteByte(c)
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		}
	}
	return b.String()
}

func hasControlChars(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 {
			return true
		}
	}
	return false
}

package oracle

import (
	"encoding/json"
	"errors"
	"strings"
)

// Extract pulls a JSON object out of raw model output.
//
// It strips surrounding markdown fences, and when the stripped text is not
// itself well-formed JSON it scans for the first balanced brace-delimited
// substring. No retries happen at this layer; callers decide how to
// recover from a *ParseError.
func Extract(raw string) (string, error) {
	text := stripFences(raw)

	if json.Valid([]byte(text)) {
		return text, nil
	}

	if obj, ok := firstObject(text); ok && json.Valid([]byte(obj)) {
		return obj, nil
	}

	return "", &ParseError{Raw: raw, Err: errors.New("no JSON object found")}
}

// Decode extracts a JSON object from raw and unmarshals it into v.
func Decode(raw string, v any) error {
	text, err := Extract(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return &ParseError{Raw: raw, Err: err}
	}
	return nil
}

// stripFences removes leading/trailing markdown code fences, tolerating a
// language tag on the opening fence and whitespace around both.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)

	if strings.HasPrefix(text, "```") {
		if idx := strings.IndexByte(text, '\n'); idx >= 0 {
			text = text[idx+1:]
		} else {
			text = strings.TrimPrefix(text, "```json")
			text = strings.TrimPrefix(text, "```")
		}
	}
	text = strings.TrimSpace(text)

	if strings.HasSuffix(text, "```") {
		text = strings.TrimSpace(text[:len(text)-3])
	}

	return text
}

// firstObject returns the first balanced {...} substring, tracking string
// literals and escapes so braces inside values do not break the scan.
func firstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	return "", false
}

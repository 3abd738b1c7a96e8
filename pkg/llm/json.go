package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// thinkTagPattern strips the <think>...</think> preamble some models emit
// before their payload.
var thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// delimiters for the two JSON container shapes, tried in text order.
var jsonDelims = [][2]byte{{'{', '}'}, {'[', ']'}}

// ExtractJSON pulls the first valid JSON value out of a model response
// that may be wrapped in think tags, markdown fences, or prose. The
// normalizer and insight generator both parse model output through here so
// malformed responses fail in one place.
func ExtractJSON(response string) (string, error) {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")

	// Whichever container opens first in the text wins.
	delims := jsonDelims
	objAt := strings.IndexByte(cleaned, '{')
	arrAt := strings.IndexByte(cleaned, '[')
	if arrAt >= 0 && (objAt < 0 || arrAt < objAt) {
		delims = [][2]byte{{'[', ']'}, {'{', '}'}}
	}

	for _, d := range delims {
		if candidate, ok := balancedSpan(cleaned, d[0], d[1]); ok && json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	if trimmed := strings.TrimSpace(cleaned); json.Valid([]byte(trimmed)) {
		return trimmed, nil
	}
	return "", fmt.Errorf("no valid JSON found in response")
}

// balancedSpan returns the first balanced open..close span, tracking
// string and escape state so braces inside string values do not count.
func balancedSpan(s string, open, close byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseJSONResponse extracts and unmarshals a model response into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return result, nil
}

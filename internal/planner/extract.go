package planner

import (
	"encoding/json"
	"strings"
)

// ExtractJSON finds a JSON object inside model output. It first tries the
// widest span from the first '{' to the last '}', then falls back to
// balancing braces forward from each '{' so trailing junk is dropped.
func ExtractJSON(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	if candidate := text[start : end+1]; json.Valid([]byte(candidate)) {
		return candidate, true
	}
	for i := start; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		if obj, ok := balanced(text[i:]); ok && json.Valid([]byte(obj)) {
			return obj, true
		}
	}
	return "", false
}

// balanced returns the prefix of s (which starts with '{') up to the brace
// that closes it. Braces inside string literals are ignored.
func balanced(s string) (string, bool) {
	depth := 0
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
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
				return s[:i+1], true
			}
		}
	}
	return "", false
}

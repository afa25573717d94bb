package classifier

import (
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ExtractJSONObject finds the JSON object embedded in free-form model output.
// The outermost span from the first '{' to the last '}' is tried first, so
// nested objects are kept whole. When that span does not parse (prose with a
// stray brace after the object, say) the first balanced object is tried.
func ExtractJSONObject(text string) (map[string]interface{}, bool) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, false
	}
	if obj, ok := decodeObject(text[start : end+1]); ok {
		return obj, true
	}
	if span, ok := balancedSpan(text[start:]); ok {
		return decodeObject(span)
	}
	return nil, false
}

func decodeObject(s string) (map[string]interface{}, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// balancedSpan returns the prefix of s (which starts with '{') up to the
// matching closing brace, skipping braces inside string literals.
func balancedSpan(s string) (string, bool) {
	depth := 0
	inString := false
	escaped := false
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

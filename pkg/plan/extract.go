package plan

import "strings"

// ExtractCandidate returns the first balanced {...} span in text. Braces inside string
// literals (including escaped quotes) do not count toward the balance. It returns false
// when text has no opening brace or the first object never closes.
func ExtractCandidate(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	// Byte scanning is safe for UTF-8: the delimiters are ASCII and never appear
	// inside multi-byte sequences.
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

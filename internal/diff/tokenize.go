package diff

import "unicode"

// tokenize splits s into comparison units for the given granularity.
// At word granularity, runs of whitespace are kept as their own tokens
// so that joining all tokens reproduces s exactly. At char granularity
// each rune becomes a token (multi-byte safe).
func tokenize(s string, g Granularity) []string {
	if s == "" {
		return nil
	}
	if g == Chars {
		runes := []rune(s)
		tokens := make([]string, len(runes))
		for i, r := range runes {
			tokens[i] = string(r)
		}
		return tokens
	}

	var tokens []string
	runes := []rune(s)
	start := 0
	inSpace := unicode.IsSpace(runes[0])
	for i := 1; i < len(runes); i++ {
		isSpace := unicode.IsSpace(runes[i])
		if isSpace != inSpace {
			tokens = append(tokens, string(runes[start:i]))
			start = i
			inSpace = isSpace
		}
	}
	tokens = append(tokens, string(runes[start:]))
	return tokens
}

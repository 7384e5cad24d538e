package guard

import (
	"fmt"
	"regexp"
)

// Kind classifies the substring a protected token shields.
type Kind string

const (
	KindMention  Kind = "mention"
	KindEmoji    Kind = "emoji"
	KindURL      Kind = "url"
	KindEmail    Kind = "email"
	KindPath     Kind = "path"
	KindCodeSpan Kind = "code"
)

// pattern couples a compiled regex with the token kind it detects.
// group is the submatch index of the span to protect; 0 means the whole
// match. Patterns that need a leading-boundary guard (Go regexp has no
// lookbehind) capture the real token in a submatch instead.
type pattern struct {
	kind  Kind
	re    *regexp.Regexp
	group int
}

// patternSpec is the source form of a pattern, compiled once at startup.
type patternSpec struct {
	kind  Kind
	expr  string
	group int
}

// specs lists the protection patterns in priority order. Earlier
// patterns win: once a span is consumed it is not eligible for a later
// pattern. Order is mentions, emoji codes, URLs, emails, file paths,
// inline code spans.
var specs = []patternSpec{
	{kind: KindMention, expr: `(?:^|[\s(\[{])(@[A-Za-z0-9_][A-Za-z0-9_.-]*)`, group: 1},
	{kind: KindEmoji, expr: `:[a-z_+-][a-z0-9_+-]*:`},
	{kind: KindURL, expr: `https?://[^\s<>"'\x60]+`},
	{kind: KindEmail, expr: `[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`},
	{kind: KindPath, expr: `(?:~/|\./|\.\./|/)[A-Za-z0-9._+-]+(?:/[A-Za-z0-9._+-]+)+/?`},
	{kind: KindCodeSpan, expr: "`[^`\n]+`"},
}

// compilePatterns compiles every spec, failing on the first invalid
// expression rather than panicking at match time.
func compilePatterns(specs []patternSpec) ([]pattern, error) {
	compiled := make([]pattern, 0, len(specs))
	for _, s := range specs {
		re, err := regexp.Compile(s.expr)
		if err != nil {
			return nil, fmt.Errorf("compiling %s pattern: %w", s.kind, err)
		}
		compiled = append(compiled, pattern{kind: s.kind, re: re, group: s.group})
	}
	return compiled, nil
}

// patterns holds the compiled protection patterns. If compilation fails
// patternErr is set and Protect degrades to no protection instead of
// crashing.
var patterns, patternErr = compilePatterns(specs)

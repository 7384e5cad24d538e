// Package guard shields static substrings (mentions, emoji codes, URLs,
// emails, file paths, inline code spans) from model edits by replacing
// them with opaque placeholders before a correction request and
// restoring them afterwards. Placeholders are guaranteed absent from the
// source text, so a well-behaved model returns them byte-identical.
package guard

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// placeholderAttempts bounds regeneration when a candidate placeholder
// collides with the source text.
const placeholderAttempts = 16

// ErrTokensCorrupted indicates at least one placeholder is missing from
// the candidate text, so an exact restoration is impossible.
var ErrTokensCorrupted = errors.New("protected tokens corrupted")

// CorruptedError reports which placeholders could not be found. It
// unwraps to ErrTokensCorrupted.
type CorruptedError struct {
	Missing []string
}

func (e *CorruptedError) Error() string {
	return fmt.Sprintf("protected tokens corrupted: %d placeholder(s) missing", len(e.Missing))
}

func (e *CorruptedError) Unwrap() error { return ErrTokensCorrupted }

// Token is one protected substring. Placeholder is unique within the
// document being processed; Original is the exact source bytes.
type Token struct {
	Placeholder string `json:"placeholder"`
	Original    string `json:"original"`
	Kind        Kind   `json:"kind"`
}

// Result is the outcome of Protect. Substituting every placeholder in
// ProtectedText with its Original reproduces the source text exactly.
// Tokens are ordered by first occurrence in the source.
type Result struct {
	ProtectedText string  `json:"protected_text"`
	Tokens        []Token `json:"tokens"`
}

var warnOnce sync.Once

// Protect scans text left to right in pattern priority order and
// replaces each protected span with a fresh placeholder. A span consumed
// by an earlier-priority pattern is not eligible for a later one.
//
// If the protection patterns failed to compile, Protect degrades to no
// protection (the text passes through untouched) and logs a warning once
// per process.
func Protect(text string) Result {
	if patternErr != nil {
		warnOnce.Do(func() {
			slog.Warn("token protection disabled: pattern compilation failed", "error", patternErr)
		})
		return Result{ProtectedText: text}
	}
	if text == "" {
		return Result{}
	}

	spans := findSpans(text)
	if len(spans) == 0 {
		return Result{ProtectedText: text}
	}

	used := make(map[string]bool, len(spans))
	tokens := make([]Token, 0, len(spans))
	var b strings.Builder
	prev := 0
	for _, sp := range spans {
		ph := newPlaceholder(text, used)
		used[ph] = true
		tokens = append(tokens, Token{
			Placeholder: ph,
			Original:    text[sp.start:sp.end],
			Kind:        sp.kind,
		})
		b.WriteString(text[prev:sp.start])
		b.WriteString(ph)
		prev = sp.end
	}
	b.WriteString(text[prev:])

	return Result{ProtectedText: b.String(), Tokens: tokens}
}

// span is a half-open byte range claimed by a pattern.
type span struct {
	start, end int
	kind       Kind
}

// findSpans collects non-overlapping protected spans, honoring pattern
// priority, and returns them in source order.
func findSpans(text string) []span {
	var accepted []span
	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2*p.group], m[2*p.group+1]
			if start < 0 || start == end {
				continue
			}
			if overlaps(accepted, start, end) {
				continue
			}
			accepted = append(accepted, span{start: start, end: end, kind: p.kind})
		}
	}
	sort.Slice(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })
	return accepted
}

func overlaps(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

// newPlaceholder returns a sentinel placeholder absent from both the
// source text and the already-issued set, regenerating on collision.
func newPlaceholder(text string, used map[string]bool) string {
	for i := 0; i < placeholderAttempts; i++ {
		id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
		candidate := fmt.Sprintf("__QTK_%s__", id)
		if !used[candidate] && !strings.Contains(text, candidate) {
			return candidate
		}
	}
	// Collisions across repeated 8-hex draws against finite text are
	// vanishingly unlikely; widen to a full UUID as the escape hatch.
	return fmt.Sprintf("__QTK_%s__", strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Restore substitutes every token's placeholder with its original text.
// It fails with a CorruptedError (wrapping ErrTokensCorrupted) if any
// placeholder is absent from text.
func Restore(text string, tokens []Token) (string, error) {
	var missing []string
	for _, tk := range tokens {
		if !strings.Contains(text, tk.Placeholder) {
			missing = append(missing, tk.Placeholder)
		}
	}
	if len(missing) > 0 {
		return "", &CorruptedError{Missing: missing}
	}

	for _, tk := range tokens {
		text = strings.ReplaceAll(text, tk.Placeholder, tk.Original)
	}
	return text, nil
}

// BestEffortRestore restores every placeholder still present and leaves
// the rest of the text as-is. It never fails; the returned slice lists
// the tokens whose placeholders were missing and therefore could not be
// restored.
func BestEffortRestore(text string, tokens []Token) (string, []Token) {
	var lost []Token
	for _, tk := range tokens {
		if strings.Contains(text, tk.Placeholder) {
			text = strings.ReplaceAll(text, tk.Placeholder, tk.Original)
		} else {
			lost = append(lost, tk)
		}
	}
	return text, lost
}

// PlaceholdersIntact reports whether every token's placeholder still
// occurs in text.
func PlaceholdersIntact(text string, tokens []Token) bool {
	for _, tk := range tokens {
		if !strings.Contains(text, tk.Placeholder) {
			return false
		}
	}
	return true
}

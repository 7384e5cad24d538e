package diff

import (
	"fmt"
	"strings"
)

// IsIdentical reports whether old and new align without any insertions
// or deletions.
func IsIdentical(old, new string) bool {
	return old == new
}

// HasChanges reports whether the alignment contains at least one
// insertion or deletion segment.
func HasChanges(segs []Segment) bool {
	for _, s := range segs {
		if s.Op != OpEqual {
			return true
		}
	}
	return false
}

// ChangeSummary renders a short human-readable description of a
// word-granularity alignment, e.g. "3 words added, 1 removed".
func ChangeSummary(segs []Segment) string {
	added := 0
	removed := 0
	for _, s := range segs {
		words := len(strings.Fields(s.Text))
		switch s.Op {
		case OpInsert:
			added += words
		case OpDelete:
			removed += words
		}
	}

	switch {
	case added == 0 && removed == 0:
		return "no changes"
	case removed == 0:
		return fmt.Sprintf("%s added", countWords(added))
	case added == 0:
		return fmt.Sprintf("%s removed", countWords(removed))
	default:
		return fmt.Sprintf("%s added, %d removed", countWords(added), removed)
	}
}

// countWords formats a word count with the correct plural.
func countWords(n int) string {
	if n == 1 {
		return "1 word"
	}
	return fmt.Sprintf("%d words", n)
}

// Old reconstructs the old string from an alignment.
func Old(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		if s.Op == OpEqual || s.Op == OpDelete {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

// New reconstructs the new string from an alignment.
func New(segs []Segment) string {
	var b strings.Builder
	for _, s := range segs {
		if s.Op == OpEqual || s.Op == OpInsert {
			b.WriteString(s.Text)
		}
	}
	return b.String()
}

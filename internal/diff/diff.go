// Package diff aligns two strings into labeled segments (equal, insert,
// delete) using the Myers shortest-edit-script algorithm. Alignments are
// computed at word or character granularity and are deterministic: the
// same inputs always produce the same segment sequence.
package diff

// Op labels a segment of an alignment.
type Op int

const (
	// OpEqual indicates text present in both strings.
	OpEqual Op = iota
	// OpInsert indicates text present only in the new string.
	OpInsert
	// OpDelete indicates text present only in the old string.
	OpDelete
)

// String returns a short human-readable name for the operation.
func (o Op) String() string {
	switch o {
	case OpEqual:
		return "equal"
	case OpInsert:
		return "insert"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Segment is a run of text with a single alignment operation.
// Concatenating the text of all OpEqual and OpDelete segments reproduces
// the old string; OpEqual and OpInsert reproduce the new string.
type Segment struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
}

// Granularity selects the unit of comparison.
type Granularity int

const (
	// Words compares whole words, keeping whitespace runs as their own
	// tokens so reconstruction is exact.
	Words Granularity = iota
	// Chars compares individual characters (runes).
	Chars
)

// WordDiff aligns old and new at word granularity.
func WordDiff(old, new string) []Segment {
	return Align(old, new, Words)
}

// CharDiff aligns old and new at character granularity.
func CharDiff(old, new string) []Segment {
	return Align(old, new, Chars)
}

// Align computes the shortest edit script between old and new at the
// given granularity and returns it as coalesced segments.
func Align(old, new string, g Granularity) []Segment {
	a := tokenize(old, g)
	b := tokenize(new, g)

	switch {
	case len(a) == 0 && len(b) == 0:
		return nil
	case len(a) == 0:
		return []Segment{{Op: OpInsert, Text: new}}
	case len(b) == 0:
		return []Segment{{Op: OpDelete, Text: old}}
	}

	return coalesce(shortestEdit(a, b))
}

// edit is a single-token step of the edit script.
type edit struct {
	op   Op
	text string
}

// shortestEdit runs the Myers O(N·D) furthest-reaching search over the
// token sequences and reconstructs the edit path by walking the recorded
// trace backward. Ties between equally short scripts are broken by the
// conventional greedy snake preference (extend matches along the
// diagonal before taking a vertical step).
func shortestEdit(a, b []string) []edit {
	n := len(a)
	m := len(b)
	max := n + m

	// v[max+k] holds the furthest-reaching x on diagonal k.
	v := make([]int, 2*max+1)
	var trace [][]int

	depth := -1
search:
	for d := 0; d <= max; d++ {
		snapshot := make([]int, len(v))
		copy(snapshot, v)
		trace = append(trace, snapshot)

		for k := -d; k <= d; k += 2 {
			var x int
			if k == -d || (k != d && v[max+k-1] < v[max+k+1]) {
				x = v[max+k+1]
			} else {
				x = v[max+k-1] + 1
			}
			y := x - k
			for x < n && y < m && a[x] == b[y] {
				x++
				y++
			}
			v[max+k] = x
			if x >= n && y >= m {
				depth = d
				break search
			}
		}
	}

	// Backtrack from (n, m) to (0, 0), emitting edits in reverse.
	var rev []edit
	x, y := n, m
	for d := depth; d > 0; d-- {
		vd := trace[d]
		k := x - y

		var prevK int
		if k == -d || (k != d && vd[max+k-1] < vd[max+k+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := vd[max+prevK]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			rev = append(rev, edit{op: OpEqual, text: a[x-1]})
			x--
			y--
		}
		if x == prevX {
			rev = append(rev, edit{op: OpInsert, text: b[y-1]})
			y--
		} else {
			rev = append(rev, edit{op: OpDelete, text: a[x-1]})
			x--
		}
	}
	for x > 0 && y > 0 {
		rev = append(rev, edit{op: OpEqual, text: a[x-1]})
		x--
		y--
	}

	// Reverse into forward order.
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// coalesce merges consecutive same-op edits into single segments.
func coalesce(edits []edit) []Segment {
	if len(edits) == 0 {
		return nil
	}
	var segs []Segment
	cur := Segment{Op: edits[0].op, Text: edits[0].text}
	for _, e := range edits[1:] {
		if e.op == cur.Op {
			cur.Text += e.text
			continue
		}
		segs = append(segs, cur)
		cur = Segment{Op: e.op, Text: e.text}
	}
	segs = append(segs, cur)
	return segs
}

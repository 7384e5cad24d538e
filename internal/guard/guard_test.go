package guard

import (
	"errors"
	"strings"
	"testing"
)

func TestProtect_RoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantTokens int
		wantKinds  map[Kind]int
	}{
		{
			name:       "email mention emoji",
			input:      "Email me at a@b.com re: @alice :smile:",
			wantTokens: 3,
			wantKinds:  map[Kind]int{KindEmail: 1, KindMention: 1, KindEmoji: 1},
		},
		{
			name:       "url and email",
			input:      "see https://docs.example.com/guide and email bob@corp.io please",
			wantTokens: 2,
			wantKinds:  map[Kind]int{KindURL: 1, KindEmail: 1},
		},
		{
			name:       "mention at start",
			input:      "@alice can you review this",
			wantTokens: 1,
			wantKinds:  map[Kind]int{KindMention: 1},
		},
		{
			name:       "file path",
			input:      "the config lives in /etc/quill/config.yaml now",
			wantTokens: 1,
			wantKinds:  map[Kind]int{KindPath: 1},
		},
		{
			name:       "home relative path",
			input:      "check ~/projects/quill for details",
			wantTokens: 1,
			wantKinds:  map[Kind]int{KindPath: 1},
		},
		{
			name:       "inline code span",
			input:      "call `fmt.Println` to print",
			wantTokens: 1,
			wantKinds:  map[Kind]int{KindCodeSpan: 1},
		},
		{
			name:       "multiple emoji",
			input:      "great :tada: work :+1:",
			wantTokens: 2,
			wantKinds:  map[Kind]int{KindEmoji: 2},
		},
		{
			name:       "nothing to protect",
			input:      "just some plain text with no static content",
			wantTokens: 0,
		},
		{
			name:       "empty",
			input:      "",
			wantTokens: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Protect(tt.input)

			if len(res.Tokens) != tt.wantTokens {
				t.Fatalf("got %d tokens %+v, want %d", len(res.Tokens), res.Tokens, tt.wantTokens)
			}

			kinds := make(map[Kind]int)
			for _, tk := range res.Tokens {
				kinds[tk.Kind]++
			}
			for k, want := range tt.wantKinds {
				if kinds[k] != want {
					t.Errorf("kind %s count = %d, want %d (tokens %+v)", k, kinds[k], want, res.Tokens)
				}
			}

			restored, err := Restore(res.ProtectedText, res.Tokens)
			if err != nil {
				t.Fatalf("Restore: %v", err)
			}
			if restored != tt.input {
				t.Errorf("round trip = %q, want %q", restored, tt.input)
			}
		})
	}
}

func TestProtect_EmailNotSplitByMention(t *testing.T) {
	res := Protect("write to a@b.com today")
	if len(res.Tokens) != 1 || res.Tokens[0].Kind != KindEmail {
		t.Fatalf("tokens = %+v, want one email token", res.Tokens)
	}
	if res.Tokens[0].Original != "a@b.com" {
		t.Errorf("original = %q, want a@b.com", res.Tokens[0].Original)
	}
}

func TestProtect_NoOverlap(t *testing.T) {
	// The URL must be consumed as one span; the email-shaped tail inside
	// it must not be protected a second time.
	res := Protect("fetch https://example.com/u/a@b.com for details")
	if len(res.Tokens) != 1 || res.Tokens[0].Kind != KindURL {
		t.Fatalf("tokens = %+v, want one url token", res.Tokens)
	}

	restored, err := Restore(res.ProtectedText, res.Tokens)
	if err != nil || restored != "fetch https://example.com/u/a@b.com for details" {
		t.Errorf("round trip failed: %q, %v", restored, err)
	}
}

func TestProtect_PlaceholderUniqueness(t *testing.T) {
	// A document that already contains placeholder-shaped strings must
	// still get placeholders absent from the original text.
	input := "__QTK_deadbeef__ mail a@b.com __QTK_cafebabe__"
	res := Protect(input)

	for _, tk := range res.Tokens {
		if strings.Contains(input, tk.Placeholder) {
			t.Errorf("placeholder %q already occurs in source text", tk.Placeholder)
		}
	}

	restored, err := Restore(res.ProtectedText, res.Tokens)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored != input {
		t.Errorf("round trip = %q, want %q", restored, input)
	}
}

func TestProtect_Idempotent(t *testing.T) {
	// Placeholder identifiers are random, so compare by restored output.
	input := "ping @bob at bob@corp.io :wave:"
	first := Protect(input)
	second := Protect(input)

	if len(first.Tokens) != len(second.Tokens) {
		t.Fatalf("token counts differ: %d vs %d", len(first.Tokens), len(second.Tokens))
	}
	for i := range first.Tokens {
		if first.Tokens[i].Original != second.Tokens[i].Original ||
			first.Tokens[i].Kind != second.Tokens[i].Kind {
			t.Errorf("token %d differs: %+v vs %+v", i, first.Tokens[i], second.Tokens[i])
		}
	}

	r1, err1 := Restore(first.ProtectedText, first.Tokens)
	r2, err2 := Restore(second.ProtectedText, second.Tokens)
	if err1 != nil || err2 != nil {
		t.Fatalf("Restore: %v, %v", err1, err2)
	}
	if r1 != input || r2 != input {
		t.Errorf("restored %q / %q, want %q", r1, r2, input)
	}
}

func TestRestore_Corrupted(t *testing.T) {
	res := Protect("mail a@b.com and ping @carol")
	if len(res.Tokens) != 2 {
		t.Fatalf("tokens = %+v, want 2", res.Tokens)
	}

	// Simulate the model eating one placeholder.
	mangled := strings.Replace(res.ProtectedText, res.Tokens[0].Placeholder, "", 1)

	_, err := Restore(mangled, res.Tokens)
	if !errors.Is(err, ErrTokensCorrupted) {
		t.Fatalf("err = %v, want ErrTokensCorrupted", err)
	}

	var corrupted *CorruptedError
	if !errors.As(err, &corrupted) {
		t.Fatal("err is not a *CorruptedError")
	}
	if len(corrupted.Missing) != 1 || corrupted.Missing[0] != res.Tokens[0].Placeholder {
		t.Errorf("Missing = %v, want [%s]", corrupted.Missing, res.Tokens[0].Placeholder)
	}

	if PlaceholdersIntact(mangled, res.Tokens) {
		t.Error("PlaceholdersIntact = true for mangled text")
	}
	if !PlaceholdersIntact(res.ProtectedText, res.Tokens) {
		t.Error("PlaceholdersIntact = false for untouched text")
	}
}

func TestBestEffortRestore(t *testing.T) {
	res := Protect("mail a@b.com and ping @carol")
	mangled := strings.Replace(res.ProtectedText, res.Tokens[0].Placeholder, "", 1)

	restored, lost := BestEffortRestore(mangled, res.Tokens)
	if len(lost) != 1 || lost[0].Placeholder != res.Tokens[0].Placeholder {
		t.Fatalf("lost = %+v, want the first token", lost)
	}
	if !strings.Contains(restored, res.Tokens[1].Original) {
		t.Errorf("restored %q does not contain surviving original %q", restored, res.Tokens[1].Original)
	}
	if strings.Contains(restored, res.Tokens[1].Placeholder) {
		t.Errorf("restored %q still contains placeholder", restored)
	}

	// Untouched text loses nothing.
	full, lost := BestEffortRestore(res.ProtectedText, res.Tokens)
	if len(lost) != 0 {
		t.Errorf("lost = %+v, want none", lost)
	}
	if full != "mail a@b.com and ping @carol" {
		t.Errorf("full restore = %q", full)
	}
}

func TestProtect_TokensInSourceOrder(t *testing.T) {
	res := Protect("a@b.com then @carol then :smile:")
	if len(res.Tokens) != 3 {
		t.Fatalf("tokens = %+v, want 3", res.Tokens)
	}
	wantOrder := []Kind{KindEmail, KindMention, KindEmoji}
	for i, k := range wantOrder {
		if res.Tokens[i].Kind != k {
			t.Errorf("token %d kind = %s, want %s", i, res.Tokens[i].Kind, k)
		}
	}
}

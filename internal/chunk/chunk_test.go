package chunk_test

import (
	"strings"
	"testing"
	"unicode"

	"pgregory.net/rapid"

	"github.com/dkempner/codereel/internal/chunk"
)

func TestSplitPassthrough(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		target  int
		overlap int
	}{
		{"zero target", "hello world", 0, 10},
		{"negative target", "hello world", -1, 10},
		{"fits exactly", "abcd", 4, 1},
		{"shorter than target", "ab", 100, 10},
		{"empty text", "", 100, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := chunk.Split(tt.text, tt.target, tt.overlap)
			if len(got) != 1 || got[0] != tt.text {
				t.Errorf("Split(%q, %d, %d) = %v, want single passthrough element",
					tt.text, tt.target, tt.overlap, got)
			}
		})
	}
}

func TestSplitBasic(t *testing.T) {
	// 10 chars, target 4, overlap 1: windows [0:4) [3:7) [6:10)
	got := chunk.Split("abcdefghij", 4, 1)
	want := []string{"abcd", "defg", "ghij"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplitTrimsChunks(t *testing.T) {
	got := chunk.Split("ab  cd  ef", 4, 0)
	for i, c := range got {
		if c != strings.TrimSpace(c) {
			t.Errorf("chunk %d not trimmed: %q", i, c)
		}
	}
}

func TestSplitRuneBoundaries(t *testing.T) {
	// Multibyte text must never be cut mid-rune.
	text := strings.Repeat("日本語テキスト", 10)
	for _, c := range chunk.Split(text, 7, 2) {
		for _, r := range c {
			if r == unicode.ReplacementChar {
				t.Fatalf("chunk contains replacement char: %q", c)
			}
		}
	}
}

func TestSplitProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringN(0, 500, -1).Draw(t, "text")
		target := rapid.IntRange(1, 64).Draw(t, "target")
		overlap := rapid.IntRange(-5, 128).Draw(t, "overlap")

		chunks := chunk.Split(text, target, overlap)

		if len(chunks) == 0 {
			t.Fatal("Split returned no chunks")
		}

		// Every chunk fits the target (trimming can only shrink).
		for i, c := range chunks {
			if len([]rune(c)) > target && !(len(chunks) == 1 && c == text) {
				t.Fatalf("chunk %d has %d runes, target %d", i, len([]rune(c)), target)
			}
		}

		// Concatenated un-trimmed coverage is hard to assert post-trim, but
		// every non-space rune of the input must appear in some chunk.
		joined := strings.Join(chunks, "")
		for _, r := range text {
			if unicode.IsSpace(r) {
				continue
			}
			if !strings.ContainsRune(joined, r) {
				t.Fatalf("rune %q lost by chunking", r)
			}
		}
	})
}

func TestSplitOverlapClampTerminates(t *testing.T) {
	// Overlap larger than the target would stall the window without the
	// clamp; this must return, and quickly.
	chunks := chunk.Split(strings.Repeat("x", 1000), 10, 10_000)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
}

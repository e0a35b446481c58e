package replay_test

import (
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/dkempner/codereel/internal/replay"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name   string
		base   string
		offset int
		length int
		text   string
		want   string
	}{
		{"insert empty", "", 0, 0, "X", "X"},
		{"insert middle", "AB", 1, 0, "X", "AXB"},
		{"delete", "ABC", 1, 1, "", "AC"},
		{"replace", "AB", 1, 1, "Z", "AZ"},
		{"append", "AB", 2, 0, "C", "ABC"},
		{"pad past end", "AB", 4, 0, "X", "AB  X"},
		{"pad empty base", "", 3, 0, "X", "   X"},
		{"length past end truncates", "ABC", 1, 99, "Z", "AZ"},
		{"negative offset clamps", "AB", -2, 0, "X", "XAB"},
		{"negative length ignored", "AB", 1, -5, "X", "AXB"},
		{"multibyte runes", "héllo", 1, 1, "a", "hallo"},
		{"cjk offset", "日本語", 3, 0, "!", "日本語!"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := replay.Apply(tt.base, tt.offset, tt.length, tt.text); got != tt.want {
				t.Errorf("Apply(%q, %d, %d, %q) = %q, want %q",
					tt.base, tt.offset, tt.length, tt.text, got, tt.want)
			}
		})
	}
}

func TestApplyProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := rapid.StringN(0, 50, -1).Draw(t, "base")
		offset := rapid.IntRange(0, 80).Draw(t, "offset")
		length := rapid.IntRange(0, 80).Draw(t, "length")
		text := rapid.StringN(0, 50, -1).Draw(t, "text")

		got := replay.Apply(base, offset, length, text)

		// The inserted text is always present at the requested offset.
		runes := []rune(got)
		if string(runes[offset:offset+len([]rune(text))]) != text {
			t.Fatalf("text not found at offset %d in %q", offset, got)
		}

		// The prefix before the offset is either base's own prefix or base
		// padded with spaces.
		prefix := string(runes[:offset])
		baseRunes := []rune(base)
		if offset <= len(baseRunes) {
			if prefix != string(baseRunes[:offset]) {
				t.Fatalf("prefix changed: %q vs %q", prefix, string(baseRunes[:offset]))
			}
		} else {
			want := base + strings.Repeat(" ", offset-len(baseRunes))
			if prefix != want {
				t.Fatalf("padding wrong: %q vs %q", prefix, want)
			}
		}
	})
}

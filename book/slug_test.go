package book

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSlug(t *testing.T) {
	testCases := []struct {
		name     string
		query    string
		expected string
	}{
		{"PlainQuery", "Foundation Asimov", "Foundation Asimov"},
		{"InvalidChars", `Dune: Messiah <Herbert>`, "Dune_ Messiah _Herbert_"},
		{"PathSeparators", `a/b\c`, "a_b_c"},
		{"CollapsedWhitespace", "  Foundation   Asimov  ", "Foundation Asimov"},
		{"Empty", "", "untitled"},
		{"OnlyWhitespace", "   ", "untitled"},
		{"OnlyInvalid", "???", "___"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Slug(tc.query); got != tc.expected {
				t.Errorf("Slug(%q) = %q, want %q", tc.query, got, tc.expected)
			}
		})
	}
}

func TestSlugLengthCap(t *testing.T) {
	long := strings.Repeat("x", 500)
	if got := Slug(long); len(got) != maxSlugLength {
		t.Errorf("expected slug capped at %d, got %d", maxSlugLength, len(got))
	}
}

func TestSlugLengthCapRuneBoundary(t *testing.T) {
	// 4 bytes per rune; the byte cap lands mid-rune.
	long := strings.Repeat("📚", 60)
	got := Slug(long)
	if len(got) > maxSlugLength {
		t.Errorf("slug length %d exceeds cap", len(got))
	}
	if !utf8.ValidString(got) {
		t.Errorf("truncated slug is not valid UTF-8: %q", got)
	}
	if strings.Contains(got, string(utf8.RuneError)) {
		t.Errorf("truncation split a rune: %q", got)
	}
}

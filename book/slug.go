package book

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxSlugLength = 150

var invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// Slug derives the destination filename stem for a query. Concurrent
// queries with distinct text therefore never collide on disk.
func Slug(query string) string {
	s := invalidFilenameChars.ReplaceAllString(query, "_")
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxSlugLength {
		// Cut on a rune boundary; a split multi-byte rune would make
		// the filename invalid UTF-8.
		cut := maxSlugLength
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "untitled"
	}
	return s
}

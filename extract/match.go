package extract

import (
	"strings"

	"github.com/kljensen/snowball"

	"bookfetch/book"
)

// MatchSlack is how many significant query terms may be missing from a
// title before the hit is rejected. One absent term tolerates
// author-vs-no-author queries; it is a policy constant, not a
// correctness requirement.
const MatchSlack = 1

const minTermLength = 3

func stemWord(word string) string {
	stem, err := snowball.Stem(word, "english", true)
	if err != nil {
		return strings.ToLower(word)
	}
	return stem
}

func significantTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(query) {
		w = strings.Trim(w, `.,!?"'():;[]{}-`)
		if len(w) >= minTermLength {
			terms = append(terms, w)
		}
	}
	return terms
}

// MatchesQuery reports whether a result title plausibly answers the
// query: all but MatchSlack significant terms must appear in the
// title, case-insensitive, with stemmed word matching as a fallback so
// inflected forms still count.
func MatchesQuery(title, query string) bool {
	terms := significantTerms(query)
	if len(terms) == 0 {
		return true
	}

	required := len(terms) - MatchSlack
	if required < 1 {
		required = 1
	}

	titleLower := strings.ToLower(title)
	titleStems := make(map[string]bool)
	for _, w := range strings.FieldsFunc(titleLower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	}) {
		titleStems[stemWord(w)] = true
	}

	score := 0
	for _, term := range terms {
		if strings.Contains(titleLower, strings.ToLower(term)) || titleStems[stemWord(term)] {
			score++
		}
	}
	return score >= required
}

// PickBest selects the search result to pursue: query-validated hits
// only, preferred formats first, otherwise the first validated hit.
func PickBest(results []book.SearchResult, query string) (book.SearchResult, bool) {
	var valid []book.SearchResult
	for _, r := range results {
		if MatchesQuery(r.Title, query) {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return book.SearchResult{}, false
	}

	for _, pref := range book.PreferredFormats {
		for _, r := range valid {
			if strings.EqualFold(strings.Trim(r.Extension, "."), pref) {
				return r, true
			}
		}
	}
	return valid[0], true
}

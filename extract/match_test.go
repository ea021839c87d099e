package extract

import (
	"testing"

	"bookfetch/book"
)

func TestMatchesQuery(t *testing.T) {
	testCases := []struct {
		name     string
		title    string
		query    string
		expected bool
	}{
		{"ExactMatch", "Dune - Frank Herbert (1965)", "Dune Herbert", true},
		{"Unrelated", "House of the Spirits", "Dune Herbert", false},
		{"OneTermMissing", "Foundation (Galactic Empire)", "Foundation Asimov", true},
		{"SingleTerm", "Dune - Frank Herbert (1965)", "Dune", true},
		{"SingleTermMiss", "House of the Spirits", "Dune", false},
		{"CaseInsensitive", "FOUNDATION by ISAAC ASIMOV", "foundation asimov", true},
		{"StemmedForm", "Computing Machinery and Intelligence", "computation machinery", true},
		{"ShortTermsIgnored", "The Art of War", "the art of war", true},
		{"EmptyQuery", "anything at all", "", true},
		{"TwoOfThree", "Foundation and Empire - Asimov", "Foundation Empire Trilogy", true},
		{"OneOfThree", "Foundation", "Foundation Empire Trilogy", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := MatchesQuery(tc.title, tc.query); got != tc.expected {
				t.Errorf("MatchesQuery(%q, %q) = %v, want %v",
					tc.title, tc.query, got, tc.expected)
			}
		})
	}
}

func TestPickBest(t *testing.T) {
	results := []book.SearchResult{
		{Title: "House of the Spirits", Extension: "epub"},
		{Title: "Dune - Frank Herbert", Extension: "mobi"},
		{Title: "Dune (Herbert)", Extension: "pdf"},
		{Title: "Dune by Frank Herbert", Extension: "epub"},
	}

	best, ok := PickBest(results, "Dune Herbert")
	if !ok {
		t.Fatal("expected a pick")
	}
	// epub outranks pdf and mobi; the unrelated epub is filtered out first.
	if best.Title != "Dune by Frank Herbert" {
		t.Errorf("picked %q, want the epub hit", best.Title)
	}
}

func TestPickBestNoValidated(t *testing.T) {
	results := []book.SearchResult{
		{Title: "Completely unrelated", Extension: "epub"},
	}
	if _, ok := PickBest(results, "Dune Herbert"); ok {
		t.Error("expected no pick for unrelated results")
	}
}

func TestPickBestFallsBackToFirstValidated(t *testing.T) {
	results := []book.SearchResult{
		{Title: "Dune - Frank Herbert", Extension: "djvu"},
		{Title: "Dune (Herbert)", Extension: "cbz"},
	}
	best, ok := PickBest(results, "Dune Herbert")
	if !ok {
		t.Fatal("expected a pick")
	}
	if best.Extension != "djvu" {
		t.Errorf("picked %q, want first validated hit", best.Extension)
	}
}

package search

import (
	"github.com/sahilm/fuzzy"

	"github.com/nikbrunner/gmark/internal/model"
)

// SearchResult represents a fuzzy search match.
type SearchResult struct {
	Bookmark       model.Bookmark `json:"bookmark"`
	MatchedIndexes []int          `json:"matchedIndexes"`
	Score          int            `json:"score"`
}

// Filter narrows the bookmarks considered by a search. Empty fields match
// everything.
type Filter struct {
	Category string
	Tag      string
	Limit    int
}

func (f Filter) keep(b model.Bookmark) bool {
	if f.Category != "" && b.Category != f.Category {
		return false
	}
	if f.Tag != "" && !b.HasTag(f.Tag) {
		return false
	}
	return true
}

// bookmarkTitles implements fuzzy.Source for a bookmark slice.
type bookmarkTitles []model.Bookmark

func (bt bookmarkTitles) String(i int) string {
	return bt[i].Title
}

func (bt bookmarkTitles) Len() int {
	return len(bt)
}

// FuzzySearchBookmarks searches bookmarks by title using fuzzy matching.
// Returns results sorted by match score (best first).
func FuzzySearchBookmarks(bookmarks []model.Bookmark, query string, filter Filter) []SearchResult {
	if query == "" {
		return nil
	}

	candidates := make(bookmarkTitles, 0, len(bookmarks))
	for _, b := range bookmarks {
		if filter.keep(b) {
			candidates = append(candidates, b)
		}
	}

	matches := fuzzy.FindFrom(query, candidates)
	if filter.Limit > 0 && len(matches) > filter.Limit {
		matches = matches[:filter.Limit]
	}

	results := make([]SearchResult, len(matches))
	for i, m := range matches {
		results[i] = SearchResult{
			Bookmark:       candidates[m.Index],
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}

	return results
}

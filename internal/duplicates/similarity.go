package duplicates

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/nikbrunner/gmark/internal/model"
)

const (
	domainWeight      = 0.4
	domainFuzzyWeight = 0.2
	titleWeight       = 0.4
	descriptionWeight = 0.1

	similarTitleThreshold = 0.85
)

// EditSimilarity is 1 - levenshtein(a,b)/max(len(a),len(b)) over runes,
// and 1 when both strings are empty.
func EditSimilarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(maxLen)
}

// Similarity scores how likely b duplicates a. Equal normalized URLs score 1.
func Similarity(a, b model.Bookmark) float64 {
	urlA, urlB := normalized(a), normalized(b)
	if urlA == urlB {
		return 1
	}

	domainA, domainB := model.ExtractDomain(a.URL), model.ExtractDomain(b.URL)
	var domain float64
	if domainA == domainB {
		domain = domainWeight
	} else {
		domain = EditSimilarity(domainA, domainB) * domainFuzzyWeight
	}

	var title float64
	if urlA != "" && urlB != "" {
		title = EditSimilarity(strings.ToLower(a.Title), strings.ToLower(b.Title)) * titleWeight
	}

	description := EditSimilarity(strings.ToLower(a.Description), strings.ToLower(b.Description)) * descriptionWeight

	return math.Min(domain+title+description, 1)
}

// Reason explains a similarity score.
func Reason(a, b model.Bookmark, similarity float64) string {
	if normalized(a) == normalized(b) {
		return "identical URL"
	}

	domainA, domainB := model.ExtractDomain(a.URL), model.ExtractDomain(b.URL)
	if domainA == domainB {
		return fmt.Sprintf("same domain (%s)", domainA)
	}

	titleSim := EditSimilarity(strings.ToLower(a.Title), strings.ToLower(b.Title))
	if titleSim > similarTitleThreshold {
		return fmt.Sprintf("similar titles (%d%% match)", percent(titleSim))
	}
	return fmt.Sprintf("similar (%d%% match)", percent(similarity))
}

func percent(v float64) int {
	return int(math.Round(v * 100))
}

func normalized(b model.Bookmark) string {
	if b.URLNormalized != "" {
		return b.URLNormalized
	}
	return model.NormalizeURL(b.URL)
}

// Match is an existing bookmark similar to a candidate.
type Match struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
	Reason     string  `json:"reason"`
}

// FindDuplicates returns the existing bookmarks scoring at or above threshold
// against candidate, most similar first. The candidate itself is skipped.
func FindDuplicates(candidate model.Bookmark, existing []model.Bookmark, threshold float64) []Match {
	matches := []Match{}
	for _, e := range existing {
		if candidate.ID != "" && e.ID == candidate.ID {
			continue
		}
		sim := Similarity(candidate, e)
		if sim >= threshold {
			matches = append(matches, Match{ID: e.ID, Similarity: sim, Reason: Reason(candidate, e, sim)})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches
}

// Pair is two stored bookmarks judged to be duplicates. Primary is the one
// seen first.
type Pair struct {
	Primary    model.Bookmark `json:"primary"`
	Duplicate  model.Bookmark `json:"duplicate"`
	Similarity float64        `json:"similarity"`
	Reason     string         `json:"reason"`
}

// FindAll compares every pair of bookmarks and returns those at or above
// threshold, most similar first.
func FindAll(bookmarks []model.Bookmark, threshold float64) []Pair {
	pairs := []Pair{}
	for i := 0; i < len(bookmarks); i++ {
		for j := i + 1; j < len(bookmarks); j++ {
			sim := Similarity(bookmarks[i], bookmarks[j])
			if sim >= threshold {
				pairs = append(pairs, Pair{
					Primary:    bookmarks[i],
					Duplicate:  bookmarks[j],
					Similarity: sim,
					Reason:     Reason(bookmarks[i], bookmarks[j], sim),
				})
			}
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Similarity > pairs[j].Similarity
	})
	return pairs
}

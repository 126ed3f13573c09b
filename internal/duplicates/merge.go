package duplicates

import (
	"time"

	"github.com/nikbrunner/gmark/internal/model"
)

// DefaultAutoMergeThreshold is the similarity an automatic merge requires.
const DefaultAutoMergeThreshold = 0.95

// MergeChoices are explicit field picks overriding the primary's values.
// Empty fields mean no choice.
type MergeChoices struct {
	URL         string   `json:"url,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Content     string   `json:"content,omitempty"`
	Category    string   `json:"category,omitempty"`
	Summary     string   `json:"summary,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// ResolveMerge combines duplicate into primary. Choices win over the
// primary's fields, tags are unioned, the higher confidence and the earlier
// creation time are kept, and the modification time is refreshed.
func ResolveMerge(primary, duplicate model.Bookmark, choices MergeChoices) model.Bookmark {
	merged := primary

	merged.URL = pick(choices.URL, primary.URL)
	merged.URLNormalized = model.NormalizeURL(merged.URL)
	merged.Title = pick(choices.Title, primary.Title)
	merged.Description = pick(choices.Description, primary.Description)
	merged.Content = pick(choices.Content, primary.Content)
	merged.Category = pick(choices.Category, primary.Category)
	merged.Summary = pick(choices.Summary, primary.Summary)

	baseTags := primary.Tags
	if choices.Tags != nil {
		baseTags = choices.Tags
	}
	merged.Tags = unionTags(baseTags, duplicate.Tags)

	merged.Confidence = max(primary.Confidence, duplicate.Confidence)
	if duplicate.CreatedAt.Before(primary.CreatedAt) && !duplicate.CreatedAt.IsZero() {
		merged.CreatedAt = duplicate.CreatedAt
	}
	merged.LastModified = time.Now()

	return merged
}

func pick(choice, fallback string) string {
	if choice != "" {
		return choice
	}
	return fallback
}

func unionTags(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, t := range list {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

// AutoMergeResult lists the merged primaries to write and the ids to delete.
type AutoMergeResult struct {
	Merged   []model.Bookmark `json:"merged"`
	ToDelete []string         `json:"toDelete"`

	// absorbedBy maps each deleted id to the bookmark it was merged into.
	absorbedBy map[string]string
}

// SurvivorOf returns the bookmark that finally holds id's merged data.
func (r AutoMergeResult) SurvivorOf(id string) string {
	for {
		next, ok := r.absorbedBy[id]
		if !ok {
			return id
		}
		id = next
	}
}

// AutoMerge merges every pair at or above threshold, most similar first.
// A bookmark scheduled for deletion is never merged again in the same pass,
// neither as primary nor as duplicate, so no id is deleted twice.
func AutoMerge(bookmarks []model.Bookmark, threshold float64) AutoMergeResult {
	pairs := FindAll(bookmarks, threshold)

	merged := make(map[string]model.Bookmark)
	var order []string
	toDelete := make(map[string]bool)
	var deleteOrder []string
	absorbedBy := make(map[string]string)

	for _, p := range pairs {
		if toDelete[p.Duplicate.ID] || toDelete[p.Primary.ID] {
			continue
		}

		primary := p.Primary
		if m, ok := merged[primary.ID]; ok {
			primary = m
		} else {
			order = append(order, primary.ID)
		}
		duplicate := p.Duplicate
		if m, ok := merged[duplicate.ID]; ok {
			// the duplicate absorbed others earlier; carry its merged state
			duplicate = m
			delete(merged, duplicate.ID)
		}

		merged[primary.ID] = ResolveMerge(primary, duplicate, MergeChoices{})
		toDelete[duplicate.ID] = true
		deleteOrder = append(deleteOrder, duplicate.ID)
		absorbedBy[duplicate.ID] = primary.ID
	}

	result := AutoMergeResult{Merged: []model.Bookmark{}, ToDelete: deleteOrder, absorbedBy: absorbedBy}
	for _, id := range order {
		if m, ok := merged[id]; ok {
			result.Merged = append(result.Merged, m)
		}
	}
	if result.ToDelete == nil {
		result.ToDelete = []string{}
	}
	return result
}

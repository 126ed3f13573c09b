package duplicates_test

import (
	"math"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/nikbrunner/gmark/internal/duplicates"
	"github.com/nikbrunner/gmark/internal/model"
)

func bookmark(url, title string, tags ...string) model.Bookmark {
	return model.NewBookmark(model.NewBookmarkParams{URL: url, Title: title, Tags: tags})
}

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEditSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1},
		{"abc", "abc", 1},
		{"abc", "", 0},
		{"kitten", "sitting", 1 - 3.0/7.0},
		{"héllo", "hello", 0.8},
	}

	for _, tt := range tests {
		got := duplicates.EditSimilarity(tt.a, tt.b)
		assert.Assert(t, near(got, tt.want), "EditSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
	}
}

func TestSimilarity_IdenticalURL(t *testing.T) {
	a := bookmark("https://www.example.com/a/", "One")
	b := bookmark("http://example.com/a", "Something else")

	assert.Equal(t, duplicates.Similarity(a, b), 1.0)
	assert.Equal(t, duplicates.Reason(a, b, 1), "identical URL")
}

func TestSimilarity_SameDomain(t *testing.T) {
	a := bookmark("https://go.dev/doc/tutorial", "Go Tutorial")
	b := bookmark("https://go.dev/doc/tutorial/getting-started", "go tutorial")

	sim := duplicates.Similarity(a, b)
	assert.Assert(t, near(sim, 0.9), "similarity = %v", sim)
	assert.Equal(t, duplicates.Reason(a, b, sim), "same domain (go.dev)")
}

func TestSimilarity_Properties(t *testing.T) {
	items := []model.Bookmark{
		bookmark("https://github.com/golang/go", "The Go Programming Language"),
		bookmark("https://gitlab.com/golang/go", "Go programming language"),
		bookmark("https://news.ycombinator.com", "Hacker News"),
		bookmark("not a url", ""),
	}

	for _, a := range items {
		assert.Equal(t, duplicates.Similarity(a, a), 1.0)
		for _, b := range items {
			ab, ba := duplicates.Similarity(a, b), duplicates.Similarity(b, a)
			assert.Assert(t, near(ab, ba), "asymmetric similarity for %s / %s", a.URL, b.URL)
			assert.Assert(t, ab >= 0 && ab <= 1)
		}
	}
}

func TestReason_SimilarTitles(t *testing.T) {
	a := bookmark("https://example.com/post", "Understanding Go Generics")
	b := bookmark("https://blog.example.org/post", "Understanding Go Generic")

	sim := duplicates.Similarity(a, b)
	assert.Check(t, is.Contains(duplicates.Reason(a, b, sim), "similar titles"))
}

func TestFindDuplicates(t *testing.T) {
	candidate := bookmark("https://go.dev/doc/tutorial", "Go Tutorial")
	exact := bookmark("https://www.go.dev/doc/tutorial/", "Other title")
	close := bookmark("https://go.dev/doc/tutorial/getting-started", "Go Tutorial")
	unrelated := bookmark("https://news.ycombinator.com", "Hacker News")

	matches := duplicates.FindDuplicates(candidate, []model.Bookmark{unrelated, close, exact, candidate}, 0.8)

	assert.Assert(t, is.Len(matches, 2))
	assert.Equal(t, matches[0].ID, exact.ID)
	assert.Equal(t, matches[0].Similarity, 1.0)
	assert.Equal(t, matches[1].ID, close.ID)
}

func TestFindDuplicates_EmptyResultIsNotNil(t *testing.T) {
	matches := duplicates.FindDuplicates(bookmark("https://a.com", "A"), nil, 0.8)
	assert.Assert(t, matches != nil)
	assert.Assert(t, is.Len(matches, 0))
}

func TestFindAll(t *testing.T) {
	a := bookmark("https://go.dev/doc/tutorial", "Go Tutorial")
	b := bookmark("https://go.dev/doc/tutorial/getting-started", "Go Tutorial")
	c := bookmark("https://news.ycombinator.com", "Hacker News")

	pairs := duplicates.FindAll([]model.Bookmark{a, b, c}, 0.8)
	assert.Assert(t, is.Len(pairs, 1))
	assert.Equal(t, pairs[0].Primary.ID, a.ID)
	assert.Equal(t, pairs[0].Duplicate.ID, b.ID)
}

func TestResolveMerge(t *testing.T) {
	primary := bookmark("https://go.dev", "Go", "go", "lang")
	primary.Confidence = 0.5
	primary.Summary = "primary summary"
	duplicate := bookmark("https://www.go.dev", "The Go site", "lang", "docs")
	duplicate.Confidence = 0.9
	duplicate.CreatedAt = primary.CreatedAt.Add(-time.Hour)

	merged := duplicates.ResolveMerge(primary, duplicate, duplicates.MergeChoices{Title: "Chosen"})

	assert.Equal(t, merged.ID, primary.ID)
	assert.Equal(t, merged.Title, "Chosen")
	assert.Equal(t, merged.URL, primary.URL)
	assert.Equal(t, merged.Summary, "primary summary")
	assert.DeepEqual(t, merged.Tags, []string{"go", "lang", "docs"})
	assert.Equal(t, merged.Confidence, 0.9)
	assert.Equal(t, merged.CreatedAt, duplicate.CreatedAt)
	assert.Assert(t, !merged.LastModified.Before(primary.LastModified))
}

func TestResolveMerge_TagChoiceReplacesPrimaryTags(t *testing.T) {
	primary := bookmark("https://go.dev", "Go", "go")
	duplicate := bookmark("https://www.go.dev", "Go", "docs")

	merged := duplicates.ResolveMerge(primary, duplicate, duplicates.MergeChoices{
		Tags: []string{"golang"},
		URL:  "https://go.dev/learn",
	})

	assert.DeepEqual(t, merged.Tags, []string{"golang", "docs"})
	assert.Equal(t, merged.URL, "https://go.dev/learn")
	assert.Equal(t, merged.URLNormalized, "go.dev/learn")
}

func TestAutoMerge_NeverDeletesTwice(t *testing.T) {
	a := bookmark("https://example.com/x", "X", "a")
	b := bookmark("https://www.example.com/x/", "X", "b")
	c := bookmark("http://example.com/x", "X", "c")
	d := bookmark("https://news.ycombinator.com", "Hacker News")

	result := duplicates.AutoMerge([]model.Bookmark{a, b, c, d}, duplicates.DefaultAutoMergeThreshold)

	assert.DeepEqual(t, result.ToDelete, []string{b.ID, c.ID})
	assert.Assert(t, is.Len(result.Merged, 1))
	assert.Equal(t, result.Merged[0].ID, a.ID)
	assert.DeepEqual(t, result.Merged[0].Tags, []string{"a", "b", "c"})
	assert.Equal(t, result.SurvivorOf(b.ID), a.ID)
	assert.Equal(t, result.SurvivorOf(c.ID), a.ID)
	assert.Equal(t, result.SurvivorOf(d.ID), d.ID)

	seen := map[string]bool{}
	for _, id := range result.ToDelete {
		assert.Assert(t, !seen[id], "deleted twice: %s", id)
		seen[id] = true
		for _, m := range result.Merged {
			assert.Assert(t, m.ID != id, "merged record %s is also deleted", id)
		}
	}
}

func TestAutoMerge_BelowThreshold(t *testing.T) {
	a := bookmark("https://go.dev/doc/tutorial", "Go Tutorial")
	b := bookmark("https://go.dev/doc/tutorial/getting-started", "Go Tutorial")

	result := duplicates.AutoMerge([]model.Bookmark{a, b}, duplicates.DefaultAutoMergeThreshold)
	assert.Assert(t, is.Len(result.Merged, 0))
	assert.Assert(t, is.Len(result.ToDelete, 0))
}

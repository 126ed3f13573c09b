package classify

import (
	"regexp"
	"strings"

	"github.com/nikbrunner/gmark/internal/model"
)

const (
	hitWeight = 2
	maxScore  = 10
	maxTags   = 5
)

// PatternMatcher scores categories by whole-word, case-insensitive pattern hits.
type PatternMatcher struct {
	categories Categories
	patterns   [][]*regexp.Regexp // per category, same order
}

// NewPatternMatcher compiles the patterns of every category.
func NewPatternMatcher(categories Categories) *PatternMatcher {
	m := &PatternMatcher{
		categories: categories,
		patterns:   make([][]*regexp.Regexp, len(categories)),
	}
	for i, c := range categories {
		for _, p := range c.Patterns {
			re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(p) + `\b`)
			m.patterns[i] = append(m.patterns[i], re)
		}
	}
	return m
}

// Scores returns the weighted hit count of each category.
func (m *PatternMatcher) Scores(text string) map[string]int {
	scores := make(map[string]int, len(m.categories))
	for i, c := range m.categories {
		score := 0
		for _, re := range m.patterns[i] {
			score += len(re.FindAllStringIndex(text, -1)) * hitWeight
		}
		scores[c.Name] = score
	}
	return scores
}

// Classify picks the highest scoring category; ties go to the earlier
// category and a zero score yields Other with confidence 0.
func (m *PatternMatcher) Classify(item model.Item) model.Classification {
	text := combinedText(item)
	scores := m.Scores(text)

	best, bestScore := model.CategoryOther, 0
	for _, c := range m.categories {
		if s := scores[c.Name]; s > bestScore {
			best, bestScore = c.Name, s
		}
	}

	confidence := float64(bestScore) / maxScore
	if confidence > 1 {
		confidence = 1
	}

	return model.Classification{
		Category:   best,
		Confidence: confidence,
		Tags:       GenerateTags(m.categories, item.URL, text, best),
		Method:     model.MethodPatterns,
	}
}

func combinedText(item model.Item) string {
	return item.Title + " " + item.Description + " " + item.URL
}

// GenerateTags derives up to five tags: the first host label of the URL when
// the domain is longer than three characters, then the category's keyword
// tags found in text.
func GenerateTags(categories Categories, url, text, category string) []string {
	tags := []string{}
	add := func(tag string) {
		if len(tags) >= maxTags {
			return
		}
		for _, t := range tags {
			if t == tag {
				return
			}
		}
		tags = append(tags, tag)
	}

	if domain := model.ExtractDomain(url); len(domain) > 3 {
		add(strings.SplitN(domain, ".", 2)[0])
	}

	lower := strings.ToLower(text)
	if c, ok := categories.Find(category); ok {
		for _, keyword := range c.Tags {
			if strings.Contains(lower, strings.ToLower(keyword)) {
				add(keyword)
			}
		}
	}
	return tags
}

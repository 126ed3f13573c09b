package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/nikbrunner/gmark/internal/model"
)

var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// BuildPrompt renders the fixed classification prompt for item, constrained
// to the given category names.
func BuildPrompt(item model.Item, categories []string) string {
	description := item.Description
	if description == "" {
		description = "none"
	}

	return fmt.Sprintf(`You are a bookmark classifier. Classify the bookmark below into exactly ONE of these categories:
%s

Bookmark:
Title: %s
Description: %s
URL: %s

Respond with this JSON object only:
{
  "category": "one of: %s",
  "confidence": 0.0-1.0,
  "tags": ["tag1", "tag2", "tag3"],
  "summary": "one or two sentence summary"
}

Answer (JSON only, no other words):`,
		"- "+strings.Join(categories, "\n- "),
		item.Title, description, item.URL,
		strings.Join(categories, "|"))
}

// rawResult keeps pointer fields so missing keys can be told apart from zero values.
type rawResult struct {
	Category   *string  `json:"category"`
	Confidence *float64 `json:"confidence"`
	Tags       []string `json:"tags"`
	Summary    string   `json:"summary"`
}

// ParseResult extracts the first JSON object from a model answer and
// validates it. The category must be one of categories (matched
// case-insensitively) and confidence must be numeric; it is clamped to [0,1].
func ParseResult(text string, categories []string) (*Result, error) {
	match := jsonObject.FindString(text)
	if match == "" {
		return nil, fmt.Errorf("%w: no JSON object in answer", ErrInvalidResponse)
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(match), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if raw.Category == nil || *raw.Category == "" {
		return nil, fmt.Errorf("%w: missing category", ErrInvalidResponse)
	}
	if raw.Confidence == nil {
		return nil, fmt.Errorf("%w: missing numeric confidence", ErrInvalidResponse)
	}

	category := ""
	for _, c := range categories {
		if strings.EqualFold(c, strings.TrimSpace(*raw.Category)) {
			category = c
			break
		}
	}
	if category == "" {
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidResponse, *raw.Category)
	}

	tags := raw.Tags
	if tags == nil {
		tags = []string{}
	}

	return &Result{
		Category:   category,
		Confidence: clamp(*raw.Confidence),
		Tags:       tags,
		Summary:    raw.Summary,
	}, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

package model

// Classification methods recorded on results and bookmarks.
const (
	MethodPatterns      = "patterns"
	MethodLocalModel    = "prompt-api"
	MethodCache         = "cache"
	MethodErrorFallback = "error-fallback"
)

// CategoryOther is the catch-all category.
const CategoryOther = "Other"

// Item is the input to classification and duplicate checks.
type Item struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
}

// Classification is the outcome of classifying an Item.
type Classification struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
	Summary    string   `json:"summary"`
	Method     string   `json:"method"`
}

// FallbackClassification is the result returned when every method failed.
func FallbackClassification() Classification {
	return Classification{
		Category:   CategoryOther,
		Confidence: 0,
		Tags:       []string{},
		Method:     MethodErrorFallback,
	}
}

// ItemFromBookmark builds the classification input for a stored bookmark.
func ItemFromBookmark(b Bookmark) Item {
	return Item{Title: b.Title, Description: b.Description, URL: b.URL}
}

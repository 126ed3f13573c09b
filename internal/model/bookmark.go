package model

import (
	"slices"
	"time"
)

// Provenance values for Bookmark.Source.
const (
	SourceMigration = "migration"
	SourceManual    = "manual"
	SourceImport    = "import"
)

// Bookmark represents a saved URL with classification metadata.
type Bookmark struct {
	ID            string     `json:"id"`
	URL           string     `json:"url"`
	URLNormalized string     `json:"urlNormalized"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	Content       string     `json:"content,omitempty"`
	Summary       string     `json:"summary,omitempty"`
	Screenshot    string     `json:"screenshot,omitempty"`
	Category      string     `json:"category"`
	Confidence    float64    `json:"confidence"`
	Tags          []string   `json:"tags"`
	Method        string     `json:"method,omitempty"`
	Source        string     `json:"source,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastModified  time.Time  `json:"lastModified"`
	ExternalID    string     `json:"externalId,omitempty"` // node id in the host bookmark tree
	MigratedAt    *time.Time `json:"migratedAt,omitempty"`
}

// NewBookmarkParams holds parameters for creating a new Bookmark.
type NewBookmarkParams struct {
	URL         string
	Title       string
	Description string
	Content     string
	Screenshot  string
	Category    string
	Confidence  float64
	Tags        []string
	Summary     string
	Method      string
	Source      string
	ExternalID  string
}

// NewBookmark creates a Bookmark with generated UUID, normalized URL and timestamps.
func NewBookmark(params NewBookmarkParams) Bookmark {
	tags := params.Tags
	if tags == nil {
		tags = []string{}
	}
	category := params.Category
	if category == "" {
		category = "Uncategorized"
	}
	title := params.Title
	if title == "" {
		title = "Untitled"
	}

	now := time.Now()
	return Bookmark{
		ID:            GenerateUUID(),
		URL:           params.URL,
		URLNormalized: NormalizeURL(params.URL),
		Title:         title,
		Description:   params.Description,
		Content:       params.Content,
		Screenshot:    params.Screenshot,
		Summary:       params.Summary,
		Category:      category,
		Confidence:    params.Confidence,
		Tags:          tags,
		Method:        params.Method,
		Source:        params.Source,
		CreatedAt:     now,
		LastModified:  now,
		ExternalID:    params.ExternalID,
	}
}

// HasTag reports whether the bookmark carries the given tag.
func (b Bookmark) HasTag(tag string) bool {
	return slices.Contains(b.Tags, tag)
}

package model_test

import (
	"testing"
	"time"

	"github.com/nikbrunner/gmark/internal/model"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"strips scheme and www", "https://www.Example.com/Path", "example.com/path"},
		{"strips trailing slash", "https://example.com/docs/", "example.com/docs"},
		{"root path", "http://example.com/", "example.com"},
		{"drops query and fragment", "https://example.com/a?b=1#top", "example.com/a"},
		{"drops port", "http://localhost:8080/x", "localhost/x"},
		{"not a url", "  Not A URL ", "not a url"},
		{"scheme relative", "//example.com/a", "example.com/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := model.NormalizeURL(tt.url)
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestNormalizeURL_Idempotent(t *testing.T) {
	inputs := []string{
		"https://www.github.com/user/repo/",
		"http://a.com/redirect/http://b.com",
		"mailto:someone@example.com",
		"HTTPS://WWW.WWW.EXAMPLE.COM//",
		"plain text",
	}

	for _, in := range inputs {
		once := model.NormalizeURL(in)
		twice := model.NormalizeURL(once)
		if once != twice {
			t.Errorf("NormalizeURL not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.GitHub.com/x", "github.com"},
		{"https://docs.python.org/3/", "docs.python.org"},
		{"not a url", ""},
	}

	for _, tt := range tests {
		if got := model.ExtractDomain(tt.url); got != tt.want {
			t.Errorf("ExtractDomain(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestNewBookmark(t *testing.T) {
	before := time.Now()
	b := model.NewBookmark(model.NewBookmarkParams{
		URL: "https://www.example.com/page/",
	})

	if b.ID == "" {
		t.Error("expected generated ID")
	}
	if b.URLNormalized != "example.com/page" {
		t.Errorf("URLNormalized = %q", b.URLNormalized)
	}
	if b.Title != "Untitled" {
		t.Errorf("Title = %q, want Untitled", b.Title)
	}
	if b.Category != "Uncategorized" {
		t.Errorf("Category = %q, want Uncategorized", b.Category)
	}
	if b.Tags == nil {
		t.Error("Tags should be non-nil")
	}
	if b.CreatedAt.Before(before) || !b.CreatedAt.Equal(b.LastModified) {
		t.Errorf("unexpected timestamps: created %v modified %v", b.CreatedAt, b.LastModified)
	}

	other := model.NewBookmark(model.NewBookmarkParams{URL: "https://example.com/page"})
	if other.ID == b.ID {
		t.Error("expected distinct IDs")
	}
	if other.URLNormalized != b.URLNormalized {
		t.Error("expected equal normalized URLs")
	}
}

func TestBookmark_HasTag(t *testing.T) {
	b := model.NewBookmark(model.NewBookmarkParams{URL: "https://x.dev", Tags: []string{"go", "cli"}})
	if !b.HasTag("go") {
		t.Error("expected tag go")
	}
	if b.HasTag("rust") {
		t.Error("unexpected tag rust")
	}
}

func TestCacheEntry_Expired(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e := model.CacheEntry{ExpiresAt: now.Add(-time.Minute)}
	if !e.Expired(now) {
		t.Error("expected expired entry")
	}
	e.ExpiresAt = now.Add(time.Hour)
	if e.Expired(now) {
		t.Error("expected live entry")
	}
}

func TestNewDuplicateRecord(t *testing.T) {
	r := model.NewDuplicateRecord("a", "b", 0.9)
	if r.Status != model.DuplicatePending {
		t.Errorf("Status = %q, want pending", r.Status)
	}
	if r.ID == "" || r.PrimaryID != "a" || r.DuplicateID != "b" {
		t.Errorf("unexpected record %+v", r)
	}
}

func TestFallbackClassification(t *testing.T) {
	c := model.FallbackClassification()
	if c.Category != model.CategoryOther || c.Confidence != 0 || c.Method != model.MethodErrorFallback {
		t.Errorf("unexpected fallback %+v", c)
	}
}

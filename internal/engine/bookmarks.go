package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikbrunner/gmark/internal/logger"
	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/search"
	"github.com/nikbrunner/gmark/internal/storage"
	"github.com/nikbrunner/gmark/internal/tree"
)

// SaveRequest describes a bookmark saved by hand. An empty Category lets the
// classifier decide when auto-classification is on.
type SaveRequest struct {
	URL         string   `json:"url"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Content     string   `json:"content,omitempty"`
	Category    string   `json:"category,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Summary     string   `json:"summary,omitempty"`
}

// SaveResult is a stored bookmark and the fuzzy duplicates recorded for it.
type SaveResult struct {
	Bookmark   model.Bookmark   `json:"bookmark"`
	Duplicates []model.Bookmark `json:"duplicates"`
}

// SaveBookmark classifies and stores a new bookmark. Saving a URL that is
// already stored fails with a *DuplicateError.
func (e *Engine) SaveBookmark(ctx context.Context, req SaveRequest) (SaveResult, error) {
	return e.save(ctx, req, model.SourceManual)
}

func (e *Engine) save(ctx context.Context, req SaveRequest, source string) (SaveResult, error) {
	if req.URL == "" {
		return SaveResult{}, errors.New("save bookmark: url is required")
	}

	if existing, err := e.store.BookmarkByURL(ctx, model.NormalizeURL(req.URL)); err == nil {
		return SaveResult{}, &DuplicateError{Existing: existing}
	} else if !errors.Is(err, storage.ErrNotFound) {
		return SaveResult{}, fmt.Errorf("save bookmark: %w", err)
	}

	params := model.NewBookmarkParams{
		URL:         req.URL,
		Title:       req.Title,
		Description: req.Description,
		Content:     req.Content,
		Category:    req.Category,
		Tags:        req.Tags,
		Summary:     req.Summary,
		Source:      source,
	}
	if req.Category == "" && e.enabled(ctx, model.SettingAutoClassify) {
		c := e.classifier.Classify(ctx, model.Item{Title: req.Title, Description: req.Description, URL: req.URL})
		params.Category = c.Category
		params.Confidence = c.Confidence
		params.Method = c.Method
		if len(params.Tags) == 0 {
			params.Tags = c.Tags
		}
		if params.Summary == "" {
			params.Summary = c.Summary
		}
	}

	b := model.NewBookmark(params)
	if err := e.store.PutBookmark(ctx, b); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			if existing, lookupErr := e.store.BookmarkByURL(ctx, b.URLNormalized); lookupErr == nil {
				return SaveResult{}, &DuplicateError{Existing: existing}
			}
			return SaveResult{}, ErrDuplicate
		}
		return SaveResult{}, fmt.Errorf("save bookmark: %w", err)
	}
	e.log.Info("bookmark saved",
		logger.String("id", b.ID),
		logger.String("url", b.URL),
		logger.String("category", b.Category))

	result := SaveResult{Bookmark: b, Duplicates: []model.Bookmark{}}
	if e.enabled(ctx, model.SettingAutoDetectDuplicates) {
		matches, err := e.duplicates.Detect(ctx, b)
		if err != nil {
			e.log.Warn("duplicate detection failed", logger.String("id", b.ID), logger.Error(err))
		}
		for _, m := range matches {
			if other, err := e.store.GetBookmark(ctx, m.ID); err == nil {
				result.Duplicates = append(result.Duplicates, other)
			}
		}
	}

	e.written()
	return result, nil
}

// LinkImportResult counts the outcome of importing links from a bookmark file.
type LinkImportResult struct {
	Saved      int `json:"saved"`
	Duplicates int `json:"duplicates"`
	Failed     int `json:"failed"`
}

// ImportLinks saves every link of a bookmark tree. Links already stored are
// counted, not overwritten; the folder a link sits in becomes its category
// unless auto-classification decides otherwise.
func (e *Engine) ImportLinks(ctx context.Context, roots []*tree.Node) (LinkImportResult, error) {
	var result LinkImportResult
	for _, folder := range linkFolders(roots) {
		for _, link := range folder.links {
			if err := ctx.Err(); err != nil {
				return result, err
			}
			req := SaveRequest{URL: link.URL, Title: link.Title}
			if !e.enabled(ctx, model.SettingAutoClassify) {
				req.Category = folder.title
			}
			_, err := e.save(ctx, req, model.SourceImport)
			switch {
			case err == nil:
				result.Saved++
			case errors.Is(err, ErrDuplicate):
				result.Duplicates++
			default:
				result.Failed++
				e.log.Warn("import link failed", logger.String("url", link.URL), logger.Error(err))
			}
		}
	}
	return result, nil
}

type folderLinks struct {
	title string
	links []*tree.Node
}

// linkFolders groups links by their nearest folder, depth first.
func linkFolders(nodes []*tree.Node) []folderLinks {
	var out []folderLinks
	var walk func(title string, nodes []*tree.Node)
	walk = func(title string, nodes []*tree.Node) {
		group := folderLinks{title: title}
		for _, n := range nodes {
			if !n.IsFolder() {
				group.links = append(group.links, n)
			}
		}
		if len(group.links) > 0 {
			out = append(out, group)
		}
		for _, n := range nodes {
			if n.IsFolder() {
				walk(n.Title, n.Children)
			}
		}
	}
	walk("", nodes)
	return out
}

// DeleteBookmark removes a bookmark together with the duplicate records still
// pending for it.
func (e *Engine) DeleteBookmark(ctx context.Context, id string) error {
	if err := e.store.DeleteBookmark(ctx, id); err != nil {
		return err
	}

	records, err := e.store.DuplicatesInvolving(ctx, id)
	if err != nil {
		return fmt.Errorf("loading duplicate records: %w", err)
	}
	for _, r := range records {
		if r.Status != model.DuplicatePending {
			continue
		}
		if err := e.store.DeleteDuplicate(ctx, r.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("deleting duplicate record %s: %w", r.ID, err)
		}
	}
	return nil
}

// ListBookmarks returns every stored bookmark, or those of one category.
func (e *Engine) ListBookmarks(ctx context.Context, category string) ([]model.Bookmark, error) {
	if category != "" {
		return e.store.BookmarksByCategory(ctx, category)
	}
	return e.store.ListBookmarks(ctx)
}

// Search fuzzy-matches stored bookmark titles.
func (e *Engine) Search(ctx context.Context, query string, filter search.Filter) ([]search.SearchResult, error) {
	bookmarks, err := e.store.ListBookmarks(ctx)
	if err != nil {
		return nil, err
	}
	return search.FuzzySearchBookmarks(bookmarks, query, filter), nil
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nikbrunner/gmark/internal/model"
)

// ExportVersion is the document version written by Export and required by Import.
const ExportVersion = 1

// ExportDocument holds the contents of all four collections.
type ExportDocument struct {
	Version    int                     `json:"version"`
	Exported   time.Time               `json:"exported"`
	Bookmarks  []model.Bookmark        `json:"bookmarks"`
	Duplicates []model.DuplicateRecord `json:"duplicates"`
	Cache      []model.CacheEntry      `json:"cache"`
	Settings   []model.Setting         `json:"settings"`
}

// ImportResult counts the records written by Import.
type ImportResult struct {
	Bookmarks  int `json:"bookmarks"`
	Duplicates int `json:"duplicates"`
	Cache      int `json:"cache"`
	Settings   int `json:"settings"`
}

// Export snapshots every collection.
func (s *Store) Export(ctx context.Context) (*ExportDocument, error) {
	bookmarks, err := s.ListBookmarks(ctx)
	if err != nil {
		return nil, fmt.Errorf("export bookmarks: %w", err)
	}
	duplicates, err := s.ListDuplicates(ctx)
	if err != nil {
		return nil, fmt.Errorf("export duplicates: %w", err)
	}
	cache, err := s.ListCache(ctx)
	if err != nil {
		return nil, fmt.Errorf("export cache: %w", err)
	}
	settings, err := s.ListSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("export settings: %w", err)
	}

	return &ExportDocument{
		Version:    ExportVersion,
		Exported:   time.Now(),
		Bookmarks:  bookmarks,
		Duplicates: duplicates,
		Cache:      cache,
		Settings:   settings,
	}, nil
}

// Import upserts every record of doc in a single transaction. A version
// mismatch or any failed write leaves the store unchanged.
func (s *Store) Import(ctx context.Context, doc *ExportDocument) (ImportResult, error) {
	if doc == nil || doc.Version != ExportVersion {
		got := 0
		if doc != nil {
			got = doc.Version
		}
		return ImportResult{}, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, got, ExportVersion)
	}

	unlock := s.lockAll()
	defer unlock()

	var result ImportResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, b := range doc.Bookmarks {
			if b.URLNormalized == "" {
				b.URLNormalized = model.NormalizeURL(b.URL)
			}
			if b.Tags == nil {
				b.Tags = []string{}
			}
			if err := putRecord(ctx, tx, Bookmarks, b.ID, b); err != nil {
				return err
			}
			result.Bookmarks++
		}
		for _, d := range doc.Duplicates {
			if err := putRecord(ctx, tx, Duplicates, d.ID, d); err != nil {
				return err
			}
			result.Duplicates++
		}
		for _, c := range doc.Cache {
			if err := putRecord(ctx, tx, Cache, c.URL, c); err != nil {
				return err
			}
			result.Cache++
		}
		for _, st := range doc.Settings {
			if err := putRecord(ctx, tx, Settings, st.Key, st); err != nil {
				return err
			}
			result.Settings++
		}
		return nil
	})
	if err != nil {
		return ImportResult{}, fmt.Errorf("import: %w", err)
	}
	return result, nil
}

func putRecord(ctx context.Context, tx *sql.Tx, c Collection, key string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return putTx(ctx, tx, c, key, data)
}

// Statistics summarizes the stored bookmarks.
type Statistics struct {
	TotalBookmarks  int            `json:"totalBookmarks"`
	TotalDuplicates int            `json:"totalDuplicates"`
	CategoriesCount int            `json:"categoriesCount"`
	Categories      map[string]int `json:"categories"`
}

// Statistics counts bookmarks per category and pending duplicate records.
func (s *Store) Statistics(ctx context.Context) (Statistics, error) {
	bookmarks, err := s.ListBookmarks(ctx)
	if err != nil {
		return Statistics{}, err
	}
	pending, err := s.DuplicatesByStatus(ctx, model.DuplicatePending)
	if err != nil {
		return Statistics{}, err
	}

	categories := make(map[string]int)
	for _, b := range bookmarks {
		categories[b.Category]++
	}

	return Statistics{
		TotalBookmarks:  len(bookmarks),
		TotalDuplicates: len(pending),
		CategoriesCount: len(categories),
		Categories:      categories,
	}, nil
}

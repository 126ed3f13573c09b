package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nikbrunner/gmark/internal/model"
)

// PutBookmark stores a bookmark. A different bookmark already holding the same
// normalized URL yields ErrConflict.
func (s *Store) PutBookmark(ctx context.Context, b model.Bookmark) error {
	if b.URLNormalized == "" {
		b.URLNormalized = model.NormalizeURL(b.URL)
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	return s.Put(ctx, Bookmarks, b.ID, b)
}

// UpdateBookmark rewrites a bookmark that is still stored. A bookmark deleted
// in the meantime yields ErrNotFound instead of coming back.
func (s *Store) UpdateBookmark(ctx context.Context, b model.Bookmark) error {
	if b.URLNormalized == "" {
		b.URLNormalized = model.NormalizeURL(b.URL)
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	return s.Update(ctx, Bookmarks, b.ID, b)
}

func (s *Store) GetBookmark(ctx context.Context, id string) (model.Bookmark, error) {
	var b model.Bookmark
	err := s.Get(ctx, Bookmarks, id, &b)
	return b, err
}

// ListBookmarks returns all bookmarks in insertion order.
func (s *Store) ListBookmarks(ctx context.Context) ([]model.Bookmark, error) {
	raw, err := s.GetAll(ctx, Bookmarks)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.Bookmark](raw)
}

// BookmarkByURL looks a bookmark up by its normalized URL.
func (s *Store) BookmarkByURL(ctx context.Context, normalized string) (model.Bookmark, error) {
	raw, err := s.QueryByIndex(ctx, Bookmarks, IndexURLNormalized, normalized)
	if err != nil {
		return model.Bookmark{}, err
	}
	if len(raw) == 0 {
		return model.Bookmark{}, fmt.Errorf("%w: bookmark with url %s", ErrNotFound, normalized)
	}
	var b model.Bookmark
	err = json.Unmarshal(raw[0], &b)
	return b, err
}

func (s *Store) BookmarksByCategory(ctx context.Context, category string) ([]model.Bookmark, error) {
	raw, err := s.QueryByIndex(ctx, Bookmarks, IndexCategory, category)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.Bookmark](raw)
}

func (s *Store) DeleteBookmark(ctx context.Context, id string) error {
	return s.Delete(ctx, Bookmarks, id)
}

func (s *Store) PutDuplicate(ctx context.Context, r model.DuplicateRecord) error {
	return s.Put(ctx, Duplicates, r.ID, r)
}

func (s *Store) GetDuplicate(ctx context.Context, id string) (model.DuplicateRecord, error) {
	var r model.DuplicateRecord
	err := s.Get(ctx, Duplicates, id, &r)
	return r, err
}

func (s *Store) ListDuplicates(ctx context.Context) ([]model.DuplicateRecord, error) {
	raw, err := s.GetAll(ctx, Duplicates)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.DuplicateRecord](raw)
}

func (s *Store) DuplicatesByStatus(ctx context.Context, status model.DuplicateStatus) ([]model.DuplicateRecord, error) {
	raw, err := s.QueryByIndex(ctx, Duplicates, IndexStatus, string(status))
	if err != nil {
		return nil, err
	}
	return decodeAll[model.DuplicateRecord](raw)
}

// DuplicatesInvolving returns records naming the bookmark on either side.
func (s *Store) DuplicatesInvolving(ctx context.Context, bookmarkID string) ([]model.DuplicateRecord, error) {
	var out []model.DuplicateRecord
	seen := make(map[string]bool)
	for _, index := range []string{IndexPrimaryID, IndexDuplicateID} {
		raw, err := s.QueryByIndex(ctx, Duplicates, index, bookmarkID)
		if err != nil {
			return nil, err
		}
		records, err := decodeAll[model.DuplicateRecord](raw)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			if !seen[r.ID] {
				seen[r.ID] = true
				out = append(out, r)
			}
		}
	}
	return out, nil
}

func (s *Store) DeleteDuplicate(ctx context.Context, id string) error {
	return s.Delete(ctx, Duplicates, id)
}

// PutCache stores a payload for url, replacing any entry of either kind.
func (s *Store) PutCache(ctx context.Context, url string, kind model.CacheKind, payload any, ttl time.Duration) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	now := time.Now()
	entry := model.CacheEntry{
		URL:       url,
		Kind:      kind,
		Data:      data,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return s.Put(ctx, Cache, url, entry)
}

// GetCache returns the live entry for url. Expired and kind-mismatched entries
// are reported as ErrNotFound.
func (s *Store) GetCache(ctx context.Context, url string, kind model.CacheKind) (model.CacheEntry, error) {
	var entry model.CacheEntry
	if err := s.Get(ctx, Cache, url, &entry); err != nil {
		return model.CacheEntry{}, err
	}
	if entry.Kind != kind || entry.Expired(time.Now()) {
		return model.CacheEntry{}, fmt.Errorf("%w: cache %s (%s)", ErrNotFound, url, kind)
	}
	return entry, nil
}

func (s *Store) ListCache(ctx context.Context) ([]model.CacheEntry, error) {
	raw, err := s.GetAll(ctx, Cache)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.CacheEntry](raw)
}

// GetSetting decodes the value of a setting into dest.
func (s *Store) GetSetting(ctx context.Context, key string, dest any) error {
	setting, err := s.GetSettingRaw(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(setting.Value, dest)
}

func (s *Store) GetSettingRaw(ctx context.Context, key string) (model.Setting, error) {
	var setting model.Setting
	err := s.Get(ctx, Settings, key, &setting)
	return setting, err
}

// SetSetting stores value under key.
func (s *Store) SetSetting(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}
	return s.Put(ctx, Settings, key, model.Setting{
		Key:          key,
		Value:        data,
		LastModified: time.Now(),
	})
}

func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	return s.Delete(ctx, Settings, key)
}

func (s *Store) ListSettings(ctx context.Context) ([]model.Setting, error) {
	raw, err := s.GetAll(ctx, Settings)
	if err != nil {
		return nil, err
	}
	return decodeAll[model.Setting](raw)
}

// SettingOr decodes a setting into dest, leaving dest untouched when the
// setting is absent.
func (s *Store) SettingOr(ctx context.Context, key string, dest any) error {
	err := s.GetSetting(ctx, key, dest)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

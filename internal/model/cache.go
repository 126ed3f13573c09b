package model

import (
	"encoding/json"
	"time"
)

// CacheKind distinguishes what a cache entry holds.
type CacheKind string

const (
	CacheClassification CacheKind = "classification"
	CacheSummary        CacheKind = "summary"
)

// CacheEntry is a cached classification or summary payload for a URL.
type CacheEntry struct {
	URL       string          `json:"url"`
	Kind      CacheKind       `json:"kind"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt time.Time       `json:"expires"`
}

// Expired reports whether the entry is past its expiry at the given time.
func (e CacheEntry) Expired(now time.Time) bool {
	return e.ExpiresAt.Before(now)
}

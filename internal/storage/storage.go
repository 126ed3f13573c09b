package storage

import (
	"errors"
	"slices"
)

// Collection names one of the four keyed record sets.
type Collection string

const (
	Bookmarks  Collection = "bookmarks"
	Duplicates Collection = "duplicates"
	Cache      Collection = "cache"
	Settings   Collection = "settings"
)

// Collections lists every collection in export order.
var Collections = []Collection{Bookmarks, Duplicates, Cache, Settings}

// Index names usable with QueryByIndex.
const (
	IndexURLNormalized = "url_normalized"
	IndexCategory      = "category"
	IndexPrimaryID     = "primary_id"
	IndexDuplicateID   = "duplicate_id"
	IndexStatus        = "status"
	IndexExpires       = "expires"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrConflict          = errors.New("unique index conflict")
	ErrVersionMismatch   = errors.New("export version mismatch")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownIndex      = errors.New("unknown index")
	ErrSchemaTooNew      = errors.New("database schema is newer than supported")
)

// indexes maps each collection to the generated columns it exposes.
var indexes = map[Collection][]string{
	Bookmarks:  {IndexURLNormalized, IndexCategory},
	Duplicates: {IndexPrimaryID, IndexDuplicateID, IndexStatus},
	Cache:      {IndexExpires},
	Settings:   nil,
}

func validCollection(c Collection) bool {
	_, ok := indexes[c]
	return ok
}

func validIndex(c Collection, index string) bool {
	return slices.Contains(indexes[c], index)
}

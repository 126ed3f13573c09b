package duplicates

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/nikbrunner/gmark/internal/logger"
	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/storage"
)

// DefaultThreshold is the similarity at which a bookmark is reported as a
// possible duplicate.
const DefaultThreshold = 0.8

var (
	// ErrNotPending is returned when merging a pair whose records were all
	// already resolved.
	ErrNotPending = errors.New("duplicate pair already resolved")
	// ErrSamePair is returned when a bookmark is merged into itself.
	ErrSamePair = errors.New("primary and duplicate are the same bookmark")
)

// Store is the persistence the Service needs.
type Store interface {
	ListBookmarks(ctx context.Context) ([]model.Bookmark, error)
	GetBookmark(ctx context.Context, id string) (model.Bookmark, error)
	PutBookmark(ctx context.Context, b model.Bookmark) error
	DeleteBookmark(ctx context.Context, id string) error
	PutDuplicate(ctx context.Context, r model.DuplicateRecord) error
	GetDuplicate(ctx context.Context, id string) (model.DuplicateRecord, error)
	DuplicatesByStatus(ctx context.Context, status model.DuplicateStatus) ([]model.DuplicateRecord, error)
	DuplicatesInvolving(ctx context.Context, bookmarkID string) ([]model.DuplicateRecord, error)
	DeleteDuplicate(ctx context.Context, id string) error
}

// Service detects, records and resolves duplicates against stored bookmarks.
type Service struct {
	store Store
	log   logger.Logger

	mu        sync.RWMutex
	threshold float64
}

func NewService(store Store, threshold float64, log logger.Logger) *Service {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, threshold: threshold, log: log}
}

func (s *Service) Threshold() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// SetThreshold changes the similarity bar used by Check and Detect.
// Non-positive values restore the default.
func (s *Service) SetThreshold(threshold float64) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	s.mu.Lock()
	s.threshold = threshold
	s.mu.Unlock()
}

// Check returns stored bookmarks similar to candidate without recording anything.
func (s *Service) Check(ctx context.Context, candidate model.Bookmark) ([]Match, error) {
	existing, err := s.store.ListBookmarks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing bookmarks: %w", err)
	}
	if candidate.URLNormalized == "" {
		candidate.URLNormalized = model.NormalizeURL(candidate.URL)
	}
	return FindDuplicates(candidate, existing, s.Threshold()), nil
}

// Detect finds duplicates of a stored bookmark and records a pending record
// for each pair not seen before. The existing bookmark becomes the primary.
func (s *Service) Detect(ctx context.Context, b model.Bookmark) ([]Match, error) {
	matches, err := s.Check(ctx, b)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return matches, nil
	}

	known, err := s.store.DuplicatesInvolving(ctx, b.ID)
	if err != nil {
		return nil, fmt.Errorf("loading duplicate records: %w", err)
	}

	for _, m := range matches {
		if hasPair(known, m.ID, b.ID) {
			continue
		}
		record := model.NewDuplicateRecord(m.ID, b.ID, m.Similarity)
		if err := s.store.PutDuplicate(ctx, record); err != nil {
			return nil, fmt.Errorf("recording duplicate: %w", err)
		}
		s.log.Debug("duplicate recorded",
			logger.String("primary", m.ID),
			logger.String("duplicate", b.ID),
			logger.Float64("similarity", m.Similarity))
	}
	return matches, nil
}

// Pending returns the unresolved duplicate records.
func (s *Service) Pending(ctx context.Context) ([]model.DuplicateRecord, error) {
	return s.store.DuplicatesByStatus(ctx, model.DuplicatePending)
}

// Ignore marks a duplicate record as ignored.
func (s *Service) Ignore(ctx context.Context, recordID string) error {
	r, err := s.store.GetDuplicate(ctx, recordID)
	if err != nil {
		return err
	}
	r.Status = model.DuplicateIgnored
	return s.store.PutDuplicate(ctx, r)
}

// Merge folds the duplicate bookmark into the primary and deletes the
// duplicate. It refuses when every record for the pair is already resolved.
func (s *Service) Merge(ctx context.Context, primaryID, duplicateID string, choices MergeChoices) (model.Bookmark, error) {
	if primaryID == duplicateID {
		return model.Bookmark{}, ErrSamePair
	}

	primary, err := s.store.GetBookmark(ctx, primaryID)
	if err != nil {
		return model.Bookmark{}, fmt.Errorf("loading primary: %w", err)
	}
	duplicate, err := s.store.GetBookmark(ctx, duplicateID)
	if err != nil {
		return model.Bookmark{}, fmt.Errorf("loading duplicate: %w", err)
	}

	records, err := s.store.DuplicatesInvolving(ctx, duplicateID)
	if err != nil {
		return model.Bookmark{}, fmt.Errorf("loading duplicate records: %w", err)
	}
	if hasPair(records, primaryID, duplicateID) && !pairPending(records, primaryID, duplicateID) {
		return model.Bookmark{}, ErrNotPending
	}

	merged := ResolveMerge(primary, duplicate, choices)
	if err := s.apply(ctx, merged, duplicateID); err != nil {
		return model.Bookmark{}, err
	}

	if err := s.settle(ctx, duplicateID, primaryID); err != nil {
		return model.Bookmark{}, err
	}

	s.log.Info("bookmarks merged",
		logger.String("primary", primaryID),
		logger.String("duplicate", duplicateID))
	return merged, nil
}

// AutoMergeAll merges every stored pair at or above threshold.
func (s *Service) AutoMergeAll(ctx context.Context, threshold float64) (AutoMergeResult, error) {
	if threshold <= 0 {
		threshold = DefaultAutoMergeThreshold
	}

	bookmarks, err := s.store.ListBookmarks(ctx)
	if err != nil {
		return AutoMergeResult{}, fmt.Errorf("listing bookmarks: %w", err)
	}

	result := AutoMerge(bookmarks, threshold)
	for _, b := range result.Merged {
		if err := s.store.PutBookmark(ctx, b); err != nil {
			return result, fmt.Errorf("saving merged %s: %w", b.ID, err)
		}
	}
	for _, id := range result.ToDelete {
		if err := s.store.DeleteBookmark(ctx, id); err != nil {
			return result, fmt.Errorf("deleting %s: %w", id, err)
		}
		if err := s.settle(ctx, id, result.SurvivorOf(id)); err != nil {
			return result, err
		}
	}

	if len(result.ToDelete) > 0 {
		s.log.Info("auto-merge finished",
			logger.Int("merged", len(result.Merged)),
			logger.Int("deleted", len(result.ToDelete)))
	}
	return result, nil
}

// FindAll returns every stored pair at or above the service threshold.
func (s *Service) FindAll(ctx context.Context) ([]Pair, error) {
	bookmarks, err := s.store.ListBookmarks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing bookmarks: %w", err)
	}
	return FindAll(bookmarks, s.Threshold()), nil
}

// apply writes the merged primary and removes the duplicate. When the merged
// URL was taken from the duplicate the duplicate has to go first.
func (s *Service) apply(ctx context.Context, merged model.Bookmark, duplicateID string) error {
	err := s.store.PutBookmark(ctx, merged)
	if errors.Is(err, storage.ErrConflict) {
		if err := s.store.DeleteBookmark(ctx, duplicateID); err != nil {
			return fmt.Errorf("deleting duplicate: %w", err)
		}
		if err := s.store.PutBookmark(ctx, merged); err != nil {
			return fmt.Errorf("saving merged bookmark: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("saving merged bookmark: %w", err)
	}
	if err := s.store.DeleteBookmark(ctx, duplicateID); err != nil {
		return fmt.Errorf("deleting duplicate: %w", err)
	}
	return nil
}

// settle resolves the pending records of deletedID after it was merged into
// survivorID. Records naming it as the duplicate are marked merged. Records
// naming it as the primary move to survivorID, or are dropped when survivorID
// already has a record for that pair.
func (s *Service) settle(ctx context.Context, deletedID, survivorID string) error {
	records, err := s.store.DuplicatesInvolving(ctx, deletedID)
	if err != nil {
		return fmt.Errorf("loading duplicate records: %w", err)
	}
	known, err := s.store.DuplicatesInvolving(ctx, survivorID)
	if err != nil {
		return fmt.Errorf("loading duplicate records: %w", err)
	}

	for _, r := range records {
		if r.Status != model.DuplicatePending {
			continue
		}

		switch {
		case r.DuplicateID == deletedID, r.DuplicateID == survivorID:
			r.Status = model.DuplicateMerged
		case hasPair(known, survivorID, r.DuplicateID):
			if err := s.store.DeleteDuplicate(ctx, r.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("deleting duplicate record: %w", err)
			}
			continue
		default:
			r.PrimaryID = survivorID
			known = append(known, r)
		}

		if err := s.store.PutDuplicate(ctx, r); err != nil {
			return fmt.Errorf("updating duplicate record: %w", err)
		}
	}
	return nil
}

func samePair(r model.DuplicateRecord, a, b string) bool {
	return (r.PrimaryID == a && r.DuplicateID == b) || (r.PrimaryID == b && r.DuplicateID == a)
}

func hasPair(records []model.DuplicateRecord, a, b string) bool {
	for _, r := range records {
		if samePair(r, a, b) {
			return true
		}
	}
	return false
}

func pairPending(records []model.DuplicateRecord, a, b string) bool {
	for _, r := range records {
		if samePair(r, a, b) && r.Status == model.DuplicatePending {
			return true
		}
	}
	return false
}

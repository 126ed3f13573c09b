package duplicates_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/nikbrunner/gmark/internal/duplicates"
	"github.com/nikbrunner/gmark/internal/logger"
	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/storage"
)

func openStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "gmark.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *storage.Store, bookmarks ...model.Bookmark) {
	t.Helper()
	for _, b := range bookmarks {
		assert.NilError(t, s.PutBookmark(context.Background(), b))
	}
}

func TestService_DetectRecordsOnce(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	svc := duplicates.NewService(s, 0.8, logger.Nop())

	primary := bookmark("https://go.dev/doc/tutorial", "Go Tutorial")
	dup := bookmark("https://go.dev/doc/tutorial/getting-started", "Go Tutorial")
	seed(t, s, primary, dup)

	matches, err := svc.Detect(ctx, dup)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(matches, 1))
	assert.Equal(t, matches[0].ID, primary.ID)

	_, err = svc.Detect(ctx, dup)
	assert.NilError(t, err)

	pending, err := svc.Pending(ctx)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(pending, 1))
	assert.Equal(t, pending[0].PrimaryID, primary.ID)
	assert.Equal(t, pending[0].DuplicateID, dup.ID)
}

func TestService_Merge(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	svc := duplicates.NewService(s, 0.8, nil)

	primary := bookmark("https://go.dev/doc/tutorial", "Go Tutorial", "go")
	dup := bookmark("https://go.dev/doc/tutorial/getting-started", "Go Tutorial", "tutorial")
	seed(t, s, primary, dup)
	_, err := svc.Detect(ctx, dup)
	assert.NilError(t, err)

	merged, err := svc.Merge(ctx, primary.ID, dup.ID, duplicates.MergeChoices{})
	assert.NilError(t, err)
	assert.DeepEqual(t, merged.Tags, []string{"go", "tutorial"})

	_, err = s.GetBookmark(ctx, dup.ID)
	assert.Assert(t, errors.Is(err, storage.ErrNotFound))

	stored, err := s.GetBookmark(ctx, primary.ID)
	assert.NilError(t, err)
	assert.DeepEqual(t, stored.Tags, []string{"go", "tutorial"})

	pending, err := svc.Pending(ctx)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(pending, 0))

	merges, err := s.DuplicatesByStatus(ctx, model.DuplicateMerged)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(merges, 1))
}

func TestService_MergeTakesDuplicateURL(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	svc := duplicates.NewService(s, 0.8, nil)

	primary := bookmark("https://go.dev/doc/tutorial", "Go Tutorial")
	dup := bookmark("https://go.dev/doc/tutorial/getting-started", "Go Tutorial")
	seed(t, s, primary, dup)

	merged, err := svc.Merge(ctx, primary.ID, dup.ID, duplicates.MergeChoices{URL: dup.URL})
	assert.NilError(t, err)
	assert.Equal(t, merged.URL, dup.URL)

	byURL, err := s.BookmarkByURL(ctx, dup.URLNormalized)
	assert.NilError(t, err)
	assert.Equal(t, byURL.ID, primary.ID)
}

func TestService_MergeRefusesResolvedPair(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	svc := duplicates.NewService(s, 0.8, nil)

	primary := bookmark("https://go.dev/doc/tutorial", "Go Tutorial")
	dup := bookmark("https://go.dev/doc/tutorial/getting-started", "Go Tutorial")
	seed(t, s, primary, dup)
	_, err := svc.Detect(ctx, dup)
	assert.NilError(t, err)

	pending, err := svc.Pending(ctx)
	assert.NilError(t, err)
	assert.NilError(t, svc.Ignore(ctx, pending[0].ID))

	_, err = svc.Merge(ctx, primary.ID, dup.ID, duplicates.MergeChoices{})
	assert.Assert(t, errors.Is(err, duplicates.ErrNotPending))

	_, err = s.GetBookmark(ctx, dup.ID)
	assert.NilError(t, err)
}

func TestService_MergeSameBookmark(t *testing.T) {
	svc := duplicates.NewService(openStore(t), 0.8, nil)
	_, err := svc.Merge(context.Background(), "a", "a", duplicates.MergeChoices{})
	assert.Assert(t, errors.Is(err, duplicates.ErrSamePair))
}

func TestService_AutoMergeAll(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	svc := duplicates.NewService(s, 0.8, nil)

	a := bookmark("https://go.dev/doc/tutorial", "Go Tutorial", "go")
	b := bookmark("https://go.dev/doc/tutorial/getting-started", "Go Tutorial", "docs")
	c := bookmark("https://news.ycombinator.com", "Hacker News")
	seed(t, s, a, b, c)
	_, err := svc.Detect(ctx, b)
	assert.NilError(t, err)

	result, err := svc.AutoMergeAll(ctx, duplicates.DefaultAutoMergeThreshold)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(result.ToDelete, 0))

	result, err = svc.AutoMergeAll(ctx, 0.85)
	assert.NilError(t, err)
	assert.DeepEqual(t, result.ToDelete, []string{b.ID})

	all, err := s.ListBookmarks(ctx)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(all, 2))

	pending, err := svc.Pending(ctx)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(pending, 0))
}

func TestService_MergeKeepsPairsOfTheSurvivingDuplicate(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	svc := duplicates.NewService(s, 0.8, nil)

	a := bookmark("https://go.dev/doc/tutorial", "Go Tutorial")
	b := bookmark("https://go.dev/doc/tutorial/getting-started", "Go Tutorial")
	c := bookmark("https://go.dev/doc/tutorial/web-service-gin", "Go Tutorial: Gin")
	seed(t, s, a, b, c)

	ab := model.NewDuplicateRecord(a.ID, b.ID, 0.9)
	bc := model.NewDuplicateRecord(b.ID, c.ID, 0.85)
	assert.NilError(t, s.PutDuplicate(ctx, ab))
	assert.NilError(t, s.PutDuplicate(ctx, bc))

	_, err := svc.Merge(ctx, a.ID, b.ID, duplicates.MergeChoices{})
	assert.NilError(t, err)

	got, err := s.GetDuplicate(ctx, ab.ID)
	assert.NilError(t, err)
	assert.Equal(t, got.Status, model.DuplicateMerged)

	// c still exists, so its pair moves to the survivor and stays pending.
	_, err = s.GetBookmark(ctx, c.ID)
	assert.NilError(t, err)
	got, err = s.GetDuplicate(ctx, bc.ID)
	assert.NilError(t, err)
	assert.Equal(t, got.Status, model.DuplicatePending)
	assert.Equal(t, got.PrimaryID, a.ID)
	assert.Equal(t, got.DuplicateID, c.ID)
}

func TestService_MergeDropsRepointedPairAlreadyKnown(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	svc := duplicates.NewService(s, 0.8, nil)

	a := bookmark("https://go.dev/doc/tutorial", "Go Tutorial")
	b := bookmark("https://go.dev/doc/tutorial/getting-started", "Go Tutorial")
	c := bookmark("https://go.dev/doc/tutorial/web-service-gin", "Go Tutorial: Gin")
	seed(t, s, a, b, c)

	for _, r := range []model.DuplicateRecord{
		model.NewDuplicateRecord(a.ID, b.ID, 0.9),
		model.NewDuplicateRecord(b.ID, c.ID, 0.85),
		model.NewDuplicateRecord(a.ID, c.ID, 0.85),
	} {
		assert.NilError(t, s.PutDuplicate(ctx, r))
	}

	_, err := svc.Merge(ctx, a.ID, b.ID, duplicates.MergeChoices{})
	assert.NilError(t, err)

	pending, err := svc.Pending(ctx)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(pending, 1))
	assert.Equal(t, pending[0].PrimaryID, a.ID)
	assert.Equal(t, pending[0].DuplicateID, c.ID)
}

func TestService_AutoMergeAllRepointsPairs(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	svc := duplicates.NewService(s, 0.8, nil)

	a := bookmark("https://go.dev/doc/tutorial", "Go Tutorial")
	b := bookmark("https://go.dev/doc/tutorial/getting-started", "Go Tutorial")
	c := bookmark("https://news.ycombinator.com", "Hacker News")
	seed(t, s, a, b, c)

	bc := model.NewDuplicateRecord(b.ID, c.ID, 0.5)
	assert.NilError(t, s.PutDuplicate(ctx, bc))

	result, err := svc.AutoMergeAll(ctx, 0.85)
	assert.NilError(t, err)
	assert.DeepEqual(t, result.ToDelete, []string{b.ID})

	got, err := s.GetDuplicate(ctx, bc.ID)
	assert.NilError(t, err)
	assert.Equal(t, got.Status, model.DuplicatePending)
	assert.Equal(t, got.PrimaryID, a.ID)
}

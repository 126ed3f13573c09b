package migrate

import (
	"context"
	"errors"
	"slices"
	"time"

	"golang.org/x/time/rate"

	"github.com/nikbrunner/gmark/internal/logger"
	"github.com/nikbrunner/gmark/internal/tree"
)

const (
	removePace = 5 * time.Millisecond
	batchPause = 50 * time.Millisecond
)

// CleanupResult counts what an empty-folder sweep found and removed.
type CleanupResult struct {
	Found   int `json:"found"`
	Removed int `json:"removed"`
}

// CleanupEmptyFolders removes folders that hold no links, deepest first.
// Protected roots are kept. Folders already gone count as handled.
func (o *Orchestrator) CleanupEmptyFolders(ctx context.Context) (CleanupResult, error) {
	roots, err := o.tree.GetTree(ctx)
	if err != nil {
		return CleanupResult{}, err
	}

	ids := emptyFolders(roots, o.opts.ProtectedIDs)
	result := CleanupResult{Found: len(ids)}
	if len(ids) == 0 {
		return result, nil
	}

	limiter := rate.NewLimiter(rate.Every(removePace), 1)
	for batch := range slices.Chunk(ids, o.opts.CleanupBatchSize) {
		for _, id := range batch {
			if err := limiter.Wait(ctx); err != nil {
				return result, err
			}

			node, err := o.tree.Get(ctx, id)
			if errors.Is(err, tree.ErrNotFound) {
				continue
			}
			if err != nil {
				o.log.Warn("could not inspect folder", logger.String("id", id), logger.Error(err))
				continue
			}
			if !node.IsFolder() {
				continue
			}

			err = o.tree.RemoveTree(ctx, id)
			switch {
			case err == nil:
				result.Removed++
			case errors.Is(err, tree.ErrNotFound):
			default:
				o.log.Warn("could not remove folder", logger.String("id", id), logger.Error(err))
			}
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(batchPause):
		}
	}

	if result.Removed > 0 {
		o.log.Info("empty folders removed", logger.Int("removed", result.Removed))
	}
	return result, nil
}

// emptyFolders lists, in post-order, every unprotected folder whose subtree
// holds no links. Ids are unique.
func emptyFolders(roots []*tree.Node, protected []string) []string {
	var ids []string
	seen := make(map[string]bool)

	var walk func(*tree.Node) bool
	walk = func(n *tree.Node) bool {
		if !n.IsFolder() {
			return false
		}
		empty := true
		for _, c := range n.Children {
			if !walk(c) {
				empty = false
			}
		}
		if empty && !slices.Contains(protected, n.ID) && !seen[n.ID] {
			seen[n.ID] = true
			ids = append(ids, n.ID)
		}
		return empty
	}
	for _, r := range roots {
		walk(r)
	}
	return ids
}

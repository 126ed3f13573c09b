package migrate

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/nikbrunner/gmark/internal/logger"
	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/storage"
	"github.com/nikbrunner/gmark/internal/tree"
)

// processItem migrates one link. A panic anywhere in the item is reported as
// a failure so the run can move on.
func (o *Orchestrator) processItem(ctx context.Context, rs *runState, item *tree.Node) (out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = outcomeFailed, fmt.Errorf("panic: %v", r)
		}
	}()

	if !o.prober.Head(ctx, item.URL, o.opts.ProbeTimeout) {
		if err := o.moveToBucket(ctx, rs, item.ID, o.opts.UnreachableFolder); err != nil {
			return outcomeFailed, fmt.Errorf("moving unreachable link: %w", err)
		}
		o.log.Info("link unreachable", logger.String("url", item.URL))
		return outcomeUnreachable, nil
	}

	normalized := model.NormalizeURL(item.URL)
	if _, err := o.store.BookmarkByURL(ctx, normalized); err == nil {
		o.log.Debug("link already stored", logger.String("url", item.URL))
		return outcomeSkipped, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return outcomeFailed, err
	}

	title := item.Title
	if !o.opts.KeepTitles {
		if live, ok := o.prober.LoadTitle(ctx, item.URL); ok && live != title {
			if err := o.tree.UpdateTitle(ctx, item.ID, live); err != nil && !errors.Is(err, tree.ErrNotFound) {
				o.log.Warn("could not update title", logger.String("url", item.URL), logger.Error(err))
			}
			title = live
		}
	}

	text := o.prober.LoadText(ctx, item.URL, o.opts.MaxTextLength)
	c := o.classifier.Classify(ctx, model.Item{Title: title, Description: text, URL: item.URL})

	now := time.Now()
	b := model.NewBookmark(model.NewBookmarkParams{
		URL:        item.URL,
		Title:      title,
		Content:    text,
		Category:   c.Category,
		Confidence: c.Confidence,
		Tags:       c.Tags,
		Summary:    capText(c.Summary, o.opts.SummaryLength),
		Method:     c.Method,
		Source:     model.SourceMigration,
		ExternalID: item.ID,
	})
	b.MigratedAt = &now

	if err := o.store.PutBookmark(ctx, b); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return outcomeSkipped, nil
		}
		return outcomeFailed, fmt.Errorf("saving bookmark: %w", err)
	}

	if o.opts.Detector != nil {
		if matches, err := o.opts.Detector.Detect(ctx, b); err != nil {
			o.log.Warn("duplicate detection failed", logger.String("url", item.URL), logger.Error(err))
		} else if len(matches) > 0 {
			o.log.Info("possible duplicates recorded",
				logger.String("url", item.URL),
				logger.Int("matches", len(matches)))
		}
	}

	if err := o.moveToBucket(ctx, rs, item.ID, c.Category); err != nil {
		return outcomeFailed, fmt.Errorf("filing link: %w", err)
	}

	o.log.Info("link migrated",
		logger.String("title", title),
		logger.String("category", c.Category),
		logger.String("method", c.Method),
		logger.Float64("confidence", c.Confidence))
	return outcomeSuccess, nil
}

// moveToBucket files a node into the named folder, creating it on first use.
// A node that has disappeared from the tree is not an error.
func (o *Orchestrator) moveToBucket(ctx context.Context, rs *runState, nodeID, name string) error {
	for attempt := 0; attempt < 2; attempt++ {
		folderID, err := o.bucket(ctx, rs, name)
		if err != nil {
			return err
		}

		err = o.tree.Move(ctx, nodeID, folderID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, tree.ErrNotFound) {
			return err
		}
		if _, gerr := o.tree.Get(ctx, nodeID); errors.Is(gerr, tree.ErrNotFound) {
			return nil
		}
		// the folder went away; resolve it again
		delete(rs.buckets, name)
	}
	return fmt.Errorf("folder %q keeps disappearing", name)
}

// bucket returns the id of the folder called name, creating it under the
// bucket parent when no folder of that name exists.
func (o *Orchestrator) bucket(ctx context.Context, rs *runState, name string) (string, error) {
	if id, ok := rs.buckets[name]; ok {
		return id, nil
	}

	found, err := o.tree.SearchByTitle(ctx, name)
	if err != nil {
		return "", err
	}
	for _, n := range found {
		if n.IsFolder() && n.Title == name {
			rs.buckets[name] = n.ID
			return n.ID, nil
		}
	}

	folder, err := o.tree.CreateFolder(ctx, o.opts.BucketParentID, name)
	if err != nil {
		return "", fmt.Errorf("creating folder %q: %w", name, err)
	}
	o.log.Debug("folder created", logger.String("name", name))
	rs.buckets[name] = folder.ID
	return folder.ID, nil
}

func capText(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

package guardian

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/storage"
)

const (
	// MinUsefulContent is the content length above which a screenshot is
	// considered redundant.
	MinUsefulContent = 500
	MaxContent       = 5000
	ContentCap       = 500
	MaxDescription   = 1000
	DescriptionCap   = 500
)

// Trim applies the content trimming rules to one bookmark in priority order
// and reports whether anything changed. Lengths are counted in runes.
func Trim(b *model.Bookmark) bool {
	changed := false

	if b.Screenshot != "" && utf8.RuneCountInString(b.Content) > MinUsefulContent {
		b.Screenshot = ""
		changed = true
	}
	if utf8.RuneCountInString(b.Content) > MaxContent {
		b.Content = truncate(b.Content, ContentCap)
		changed = true
	}
	if utf8.RuneCountInString(b.Description) > MaxDescription {
		b.Description = truncate(b.Description, DescriptionCap)
		changed = true
	}

	return changed
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// trimContent rewrites every bookmark that Trim shortens. Bookmarks deleted
// since the listing are skipped.
func (g *Guardian) trimContent(ctx context.Context) (Phase, error) {
	bookmarks, err := g.store.ListBookmarks(ctx)
	if err != nil {
		return Phase{}, fmt.Errorf("listing bookmarks: %w", err)
	}

	var phase Phase
	for _, b := range bookmarks {
		before := encodedSize(b)
		if !Trim(&b) {
			continue
		}
		err := g.store.UpdateBookmark(ctx, b)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return phase, fmt.Errorf("saving trimmed bookmark %s: %w", b.ID, err)
		}
		phase.Affected++
		phase.FreedBytes += max(0, before-encodedSize(b))
	}
	return phase, nil
}

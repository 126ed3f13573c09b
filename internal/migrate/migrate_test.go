package migrate_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/nikbrunner/gmark/internal/duplicates"
	"github.com/nikbrunner/gmark/internal/migrate"
	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/storage"
	"github.com/nikbrunner/gmark/internal/tree"
)

type fakeProber struct {
	unreachable map[string]bool
	heads       []string
	onHead      func(url string)
}

func (p *fakeProber) Head(ctx context.Context, url string, timeout time.Duration) bool {
	p.heads = append(p.heads, url)
	if p.onHead != nil {
		p.onHead(url)
	}
	return !p.unreachable[url]
}

func (p *fakeProber) LoadTitle(ctx context.Context, url string) (string, bool) {
	if strings.Contains(url, "retitle") {
		return "Live Title", true
	}
	return "", false
}

func (p *fakeProber) LoadText(ctx context.Context, url string, maxRunes int) string {
	return ""
}

type fakeClassifier struct {
	panicOn string
}

func (f fakeClassifier) Classify(ctx context.Context, item model.Item) model.Classification {
	if item.URL == f.panicOn {
		panic("boom")
	}
	return model.Classification{
		Category:   "Development",
		Confidence: 0.9,
		Tags:       []string{"dev"},
		Summary:    strings.Repeat("s", 300),
		Method:     model.MethodPatterns,
	}
}

type env struct {
	store  *storage.Store
	tree   *tree.MemoryTree
	prober *fakeProber
	links  []*tree.Node
}

func newEnv(t *testing.T, urls ...string) *env {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "gmark.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { s.Close() })

	e := &env{store: s, tree: tree.NewMemoryTree(), prober: &fakeProber{unreachable: map[string]bool{}}}
	for _, u := range urls {
		n, err := e.tree.AddLink(tree.OtherID, "Title of "+u, u)
		assert.NilError(t, err)
		e.links = append(e.links, n)
	}
	return e
}

func (e *env) orchestrator(opts migrate.Options, c migrate.Classifier) *migrate.Orchestrator {
	if c == nil {
		c = fakeClassifier{}
	}
	return migrate.New(e.store, e.tree, e.prober, c, opts)
}

func (e *env) checkpoint(t *testing.T) []string {
	t.Helper()
	var urls []string
	err := e.store.GetSetting(context.Background(), model.SettingMigrationProcessedURLs, &urls)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	assert.NilError(t, err)
	return urls
}

func folderNamed(t *testing.T, tr tree.Tree, name string) *tree.Node {
	t.Helper()
	found, err := tr.SearchByTitle(context.Background(), name)
	assert.NilError(t, err)
	for _, n := range found {
		if n.IsFolder() {
			return n
		}
	}
	t.Fatalf("no folder %q", name)
	return nil
}

func TestRun_FullMigration(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t,
		"https://go.dev/doc/tutorial/getting-started",
		"https://dead.example.com",
		"https://poison.example.com",
		"https://www.stored.example.com/",
		"https://retitle.example.com",
	)
	e.prober.unreachable["https://dead.example.com"] = true

	existing := model.NewBookmark(model.NewBookmarkParams{URL: "https://stored.example.com", Title: "Stored"})
	assert.NilError(t, e.store.PutBookmark(ctx, existing))
	similar := model.NewBookmark(model.NewBookmarkParams{URL: "https://go.dev/doc/tutorial", Title: "Title of https://go.dev/doc/tutorial/getting-started"})
	assert.NilError(t, e.store.PutBookmark(ctx, similar))

	_, err := e.tree.CreateFolder(ctx, tree.ToolbarID, "Empty")
	assert.NilError(t, err)

	var snapshots []migrate.Progress
	o := e.orchestrator(migrate.Options{
		Detector: duplicates.NewService(e.store, 0.8, nil),
	}, fakeClassifier{panicOn: "https://poison.example.com"})

	res := o.Run(ctx, func(p migrate.Progress) { snapshots = append(snapshots, p) })

	assert.Equal(t, res.State, migrate.StateComplete, res.Message)
	assert.Equal(t, res.Total, 5)
	assert.Equal(t, res.Success, 2)
	assert.Equal(t, res.Unreachable, 1)
	assert.Equal(t, res.Failed, 1)
	assert.Equal(t, res.Skipped, 1)

	assert.Assert(t, is.Len(snapshots, 5))
	last := snapshots[4]
	assert.Equal(t, last.Processed, 5)
	assert.Equal(t, last.Percentage, 100)
	assert.Equal(t, last.SkippedCount, 1)

	assert.Assert(t, is.Len(e.checkpoint(t), 0))
	status, err := o.Status(ctx)
	assert.NilError(t, err)
	assert.Assert(t, status.Complete)
	assert.Assert(t, status.CompletedAt != nil)

	dev := folderNamed(t, e.tree, "Development")
	moved, err := e.tree.Get(ctx, e.links[0].ID)
	assert.NilError(t, err)
	assert.Equal(t, moved.ParentID, dev.ID)

	dead := folderNamed(t, e.tree, "Unreachable")
	gone, err := e.tree.Get(ctx, e.links[1].ID)
	assert.NilError(t, err)
	assert.Equal(t, gone.ParentID, dead.ID)

	poison, err := e.tree.Get(ctx, e.links[2].ID)
	assert.NilError(t, err)
	assert.Equal(t, poison.ParentID, tree.OtherID)

	retitled, err := e.tree.Get(ctx, e.links[4].ID)
	assert.NilError(t, err)
	assert.Equal(t, retitled.Title, "Live Title")

	saved, err := e.store.BookmarkByURL(ctx, "go.dev/doc/tutorial/getting-started")
	assert.NilError(t, err)
	assert.Equal(t, saved.Source, model.SourceMigration)
	assert.Equal(t, saved.ExternalID, e.links[0].ID)
	assert.Equal(t, len(saved.Summary), 200)
	assert.Assert(t, saved.MigratedAt != nil)

	pending, err := e.store.DuplicatesByStatus(ctx, model.DuplicatePending)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(pending, 1))
	assert.Equal(t, pending[0].PrimaryID, similar.ID)

	found, err := e.tree.SearchByTitle(ctx, "Empty")
	assert.NilError(t, err)
	assert.Assert(t, is.Len(found, 0))

	again := o.Run(ctx, nil)
	assert.Equal(t, again.State, migrate.StateAlreadyComplete)
}

func TestRun_ResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	urls := []string{
		"https://a.example.com",
		"https://b.example.com",
		"https://c.example.com",
		"https://d.example.com",
		"https://e.example.com",
	}
	e := newEnv(t, urls...)
	assert.NilError(t, e.store.SetSetting(ctx, model.SettingMigrationProcessedURLs, urls[:2]))

	var first *migrate.Progress
	res := e.orchestrator(migrate.Options{}, nil).Run(ctx, func(p migrate.Progress) {
		if first == nil {
			first = &p
		}
	})

	assert.Equal(t, res.State, migrate.StateComplete)
	assert.DeepEqual(t, e.prober.heads, urls[2:])
	assert.Equal(t, res.Success, 3)
	assert.Equal(t, first.Processed, 3)
	assert.Equal(t, first.Total, 5)
	assert.Equal(t, first.Percentage, 60)
}

func TestRun_CheckpointPrecedesNextItem(t *testing.T) {
	urls := []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"}
	e := newEnv(t, urls...)

	var seen []int
	e.prober.onHead = func(string) { seen = append(seen, len(e.checkpoint(t))) }

	res := e.orchestrator(migrate.Options{}, nil).Run(context.Background(), nil)
	assert.Equal(t, res.State, migrate.StateComplete)
	assert.DeepEqual(t, seen, []int{0, 1, 2})
}

func TestRun_CapabilityUnavailable(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "https://a.example.com")

	res := e.orchestrator(migrate.Options{
		Capability: func(context.Context) error {
			return &migrate.CapabilityError{Reason: "model missing", Remediation: "install it"}
		},
	}, nil).Run(ctx, nil)

	assert.Equal(t, res.State, migrate.StateUnavailable)
	assert.Equal(t, res.Remediation, "install it")
	assert.Assert(t, is.Len(e.prober.heads, 0))
	assert.Assert(t, is.Len(e.checkpoint(t), 0))

	all, err := e.store.ListBookmarks(ctx)
	assert.NilError(t, err)
	assert.Assert(t, is.Len(all, 0))
}

func TestRun_PausesWhenCapabilityLost(t *testing.T) {
	ctx := context.Background()
	urls := []string{"https://a.example.com", "https://b.example.com", "https://c.example.com"}
	e := newEnv(t, urls...)

	calls := 0
	flaky := func(context.Context) error {
		calls++
		// start check plus two items succeed
		if calls > 3 {
			return &migrate.CapabilityError{Reason: "model went away", Remediation: "restart it"}
		}
		return nil
	}

	res := e.orchestrator(migrate.Options{Capability: flaky}, nil).Run(ctx, nil)
	assert.Equal(t, res.State, migrate.StatePaused)
	assert.Equal(t, res.Remediation, "restart it")
	assert.DeepEqual(t, e.checkpoint(t), urls[:2])

	e.prober.heads = nil
	res = e.orchestrator(migrate.Options{}, nil).Run(ctx, nil)
	assert.Equal(t, res.State, migrate.StateComplete)
	assert.DeepEqual(t, e.prober.heads, urls[2:])
}

func TestRun_CancelledContextPauses(t *testing.T) {
	e := newEnv(t, "https://a.example.com", "https://b.example.com")
	ctx, cancel := context.WithCancel(context.Background())

	res := e.orchestrator(migrate.Options{}, nil).Run(ctx, func(migrate.Progress) { cancel() })
	assert.Equal(t, res.State, migrate.StatePaused)
	assert.DeepEqual(t, e.checkpoint(t), []string{"https://a.example.com"})
}

func TestRun_EmptyTree(t *testing.T) {
	e := newEnv(t)
	res := e.orchestrator(migrate.Options{}, nil).Run(context.Background(), nil)
	assert.Equal(t, res.State, migrate.StateComplete)
	assert.Equal(t, res.Message, "No bookmarks to migrate")
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, "https://a.example.com")
	o := e.orchestrator(migrate.Options{}, nil)

	assert.Equal(t, o.Run(ctx, nil).State, migrate.StateComplete)
	assert.NilError(t, o.Reset(ctx))

	status, err := o.Status(ctx)
	assert.NilError(t, err)
	assert.Assert(t, !status.Complete)
	assert.Assert(t, status.CompletedAt == nil)
	assert.Equal(t, status.ProcessedCount, 0)

	// the stored bookmark makes the rerun skip the link
	res := o.Run(ctx, nil)
	assert.Equal(t, res.State, migrate.StateComplete)
	assert.Equal(t, res.Skipped, 1)
}

func TestStart_StreamsProgress(t *testing.T) {
	e := newEnv(t, "https://a.example.com", "https://b.example.com", "https://c.example.com")
	run := e.orchestrator(migrate.Options{PaceInterval: time.Millisecond}, nil).Start(context.Background())

	var last migrate.Progress
	for p := range run.Progress() {
		last = p
	}
	res := run.Wait()

	assert.Equal(t, res.State, migrate.StateComplete)
	assert.Equal(t, last.Processed, 3)
}

func TestStart_DetachedReader(t *testing.T) {
	e := newEnv(t, "https://a.example.com", "https://b.example.com")
	run := e.orchestrator(migrate.Options{}, nil).Start(context.Background())

	res := run.Wait()
	assert.Equal(t, res.State, migrate.StateComplete)
	assert.Equal(t, res.Success, 2)
}

func TestCleanupEmptyFolders(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	outer, err := e.tree.CreateFolder(ctx, tree.OtherID, "outer")
	assert.NilError(t, err)
	_, err = e.tree.CreateFolder(ctx, outer.ID, "inner")
	assert.NilError(t, err)
	keep, err := e.tree.CreateFolder(ctx, tree.ToolbarID, "keep")
	assert.NilError(t, err)
	_, err = e.tree.AddLink(keep.ID, "Go", "https://go.dev")
	assert.NilError(t, err)

	res, err := e.orchestrator(migrate.Options{CleanupBatchSize: 1}, nil).CleanupEmptyFolders(ctx)
	assert.NilError(t, err)
	assert.Equal(t, res.Found, 2)
	assert.Equal(t, res.Removed, 2)

	_, err = e.tree.Get(ctx, outer.ID)
	assert.Assert(t, errors.Is(err, tree.ErrNotFound))
	_, err = e.tree.Get(ctx, keep.ID)
	assert.NilError(t, err)
	for _, id := range tree.ProtectedIDs {
		_, err := e.tree.Get(ctx, id)
		assert.NilError(t, err)
	}
}

func TestCapabilityError(t *testing.T) {
	var err error = &migrate.CapabilityError{Reason: "x", Remediation: "y"}
	assert.Assert(t, errors.Is(err, migrate.ErrCapabilityUnavailable))
	assert.Assert(t, migrate.Always(context.Background()) == nil)
}

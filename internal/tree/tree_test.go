package tree_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/tree"
)

const browserExport = `<!DOCTYPE NETSCAPE-Bookmark-file-1>
<META HTTP-EQUIV="Content-Type" CONTENT="text/html; charset=UTF-8">
<TITLE>Bookmarks</TITLE>
<H1>Bookmarks</H1>
<DL><p>
    <DT><H3 ADD_DATE="1234567890" PERSONAL_TOOLBAR_FOLDER="true">Bookmarks bar</H3>
    <DL><p>
        <DT><H3 ADD_DATE="1234567890">Development</H3>
        <DL><p>
            <DT><A HREF="https://react.dev" ADD_DATE="1234567890">React Docs</A>
        </DL><p>
        <DT><A HREF="https://github.com" ADD_DATE="1234567890">GitHub</A>
    </DL><p>
    <DT><A HREF="https://google.com" ADD_DATE="1234567890">Google</A>
    <DT><A HREF="https://untitled.example.com"></A>
</DL><p>`

func titles(nodes []*tree.Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.Title)
	}
	return out
}

func TestReadHTML(t *testing.T) {
	mt, err := tree.ReadHTML(strings.NewReader(browserExport))
	assert.NilError(t, err)

	roots, err := mt.GetTree(context.Background())
	assert.NilError(t, err)
	assert.Assert(t, is.Len(roots, 1))

	root := roots[0]
	assert.Equal(t, root.ID, tree.RootID)

	toolbar := root.Children[0]
	assert.Equal(t, toolbar.ID, tree.ToolbarID)
	assert.DeepEqual(t, titles(toolbar.Children), []string{"Development", "GitHub"})
	assert.DeepEqual(t, titles(toolbar.Children[0].Children), []string{"React Docs"})

	other := root.Children[1]
	assert.Equal(t, other.ID, tree.OtherID)
	assert.DeepEqual(t, titles(other.Children), []string{"Google", "https://untitled.example.com"})

	links := tree.Flatten(roots)
	var urls []string
	for _, l := range links {
		urls = append(urls, l.URL)
	}
	assert.DeepEqual(t, urls, []string{
		"https://react.dev",
		"https://github.com",
		"https://google.com",
		"https://untitled.example.com",
	})
	assert.Equal(t, links[0].DateAdded.Unix(), int64(1234567890))
}

func TestWriteHTML_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mt, err := tree.ReadHTML(strings.NewReader(browserExport))
	assert.NilError(t, err)

	var buf bytes.Buffer
	assert.NilError(t, mt.WriteHTML(&buf))
	assert.Check(t, is.Contains(buf.String(), `PERSONAL_TOOLBAR_FOLDER="true"`))

	again, err := tree.ReadHTML(&buf)
	assert.NilError(t, err)

	before, _ := mt.GetTree(ctx)
	after, _ := again.GetTree(ctx)
	assert.DeepEqual(t, idsOf(tree.Flatten(after)), idsOf(tree.Flatten(before)))
	assert.DeepEqual(t, titles(after[0].Children[0].Children), []string{"Development", "GitHub"})
}

func idsOf(nodes []*tree.Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestMemoryTree_Operations(t *testing.T) {
	ctx := context.Background()
	mt := tree.NewMemoryTree()

	folder, err := mt.CreateFolder(ctx, tree.OtherID, "Development")
	assert.NilError(t, err)
	assert.Assert(t, folder.IsFolder())

	link, err := mt.AddLink(tree.ToolbarID, "Go", "https://go.dev")
	assert.NilError(t, err)

	assert.NilError(t, mt.Move(ctx, link.ID, folder.ID))
	got, err := mt.Get(ctx, link.ID)
	assert.NilError(t, err)
	assert.Equal(t, got.ParentID, folder.ID)
	assert.Equal(t, got.Index, 0)

	assert.NilError(t, mt.UpdateTitle(ctx, link.ID, "The Go Site"))
	found, err := mt.SearchByTitle(ctx, "The Go Site")
	assert.NilError(t, err)
	assert.Assert(t, is.Len(found, 1))

	found, err = mt.SearchByTitle(ctx, "Development")
	assert.NilError(t, err)
	assert.Assert(t, is.Len(found, 1))
	assert.Equal(t, found[0].ID, folder.ID)

	assert.NilError(t, mt.RemoveTree(ctx, folder.ID))
	_, err = mt.Get(ctx, link.ID)
	assert.Assert(t, errors.Is(err, tree.ErrNotFound))
	err = mt.RemoveTree(ctx, folder.ID)
	assert.Assert(t, errors.Is(err, tree.ErrNotFound))
}

func TestMemoryTree_Guards(t *testing.T) {
	ctx := context.Background()
	mt := tree.NewMemoryTree()

	outer, err := mt.CreateFolder(ctx, tree.OtherID, "outer")
	assert.NilError(t, err)
	inner, err := mt.CreateFolder(ctx, outer.ID, "inner")
	assert.NilError(t, err)
	link, err := mt.AddLink(outer.ID, "x", "https://x.dev")
	assert.NilError(t, err)

	assert.Assert(t, errors.Is(mt.Move(ctx, outer.ID, inner.ID), tree.ErrCycle))
	assert.Assert(t, errors.Is(mt.Move(ctx, outer.ID, link.ID), tree.ErrNotFolder))
	assert.Assert(t, errors.Is(mt.Move(ctx, "missing", outer.ID), tree.ErrNotFound))
	assert.Assert(t, errors.Is(mt.RemoveTree(ctx, tree.ToolbarID), tree.ErrProtected))
	_, err = mt.CreateFolder(ctx, "missing", "x")
	assert.Assert(t, errors.Is(err, tree.ErrNotFound))
}

func TestGetTree_IsSnapshot(t *testing.T) {
	ctx := context.Background()
	mt := tree.NewMemoryTree()
	_, err := mt.AddLink(tree.OtherID, "Go", "https://go.dev")
	assert.NilError(t, err)

	roots, err := mt.GetTree(ctx)
	assert.NilError(t, err)
	roots[0].Children[1].Children[0].Title = "changed"

	again, err := mt.GetTree(ctx)
	assert.NilError(t, err)
	assert.Equal(t, again[0].Children[1].Children[0].Title, "Go")
}

func TestFileTree_PersistsMutations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bookmarks.html")
	assert.NilError(t, os.WriteFile(path, []byte(browserExport), 0o644))

	ft, err := tree.OpenFile(path)
	assert.NilError(t, err)

	folder, err := ft.CreateFolder(ctx, tree.ToolbarID, "Reading")
	assert.NilError(t, err)
	found, err := ft.SearchByTitle(ctx, "Google")
	assert.NilError(t, err)
	assert.NilError(t, ft.Move(ctx, found[0].ID, folder.ID))

	reopened, err := tree.OpenFile(path)
	assert.NilError(t, err)
	moved, err := reopened.Get(ctx, found[0].ID)
	assert.NilError(t, err)
	assert.Equal(t, moved.ParentID, folder.ID)

	parent, err := reopened.Get(ctx, folder.ID)
	assert.NilError(t, err)
	assert.Equal(t, parent.Title, "Reading")
}

func TestOpenFile_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bookmarks.html")
	ft, err := tree.OpenFile(path)
	assert.NilError(t, err)

	_, err = os.Stat(path)
	assert.Assert(t, errors.Is(err, os.ErrNotExist))

	_, err = ft.CreateFolder(context.Background(), tree.OtherID, "New")
	assert.NilError(t, err)
	_, err = os.Stat(path)
	assert.NilError(t, err)
}

func TestFromBookmarks(t *testing.T) {
	a := model.NewBookmark(model.NewBookmarkParams{URL: "https://go.dev", Title: "Go", Category: "Development"})
	b := model.NewBookmark(model.NewBookmarkParams{URL: "https://bbc.com", Title: "BBC", Category: "News"})
	c := model.NewBookmark(model.NewBookmarkParams{URL: "https://rust-lang.org", Title: "Rust", Category: "Development"})

	folders := tree.FromBookmarks([]model.Bookmark{a, b, c})
	assert.DeepEqual(t, titles(folders), []string{"Development", "News"})
	assert.DeepEqual(t, titles(folders[0].Children), []string{"Go", "Rust"})

	var buf bytes.Buffer
	assert.NilError(t, tree.WriteHTML(&buf, folders))
	assert.Check(t, is.Contains(buf.String(), `HREF="https://rust-lang.org"`))
}

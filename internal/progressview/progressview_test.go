package progressview

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/nikbrunner/gmark/internal/migrate"
	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/storage"
	"github.com/nikbrunner/gmark/internal/tree"
)

type reachable struct{}

func (reachable) Head(context.Context, string, time.Duration) bool { return true }
func (reachable) LoadTitle(context.Context, string) (string, bool) { return "", false }
func (reachable) LoadText(context.Context, string, int) string     { return "" }

type constant struct{}

func (constant) Classify(context.Context, model.Item) model.Classification {
	return model.Classification{Category: "Tools", Confidence: 1, Tags: []string{}, Method: model.MethodPatterns}
}

func startRun(t *testing.T, links ...string) *migrate.Run {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "gmark.db"))
	assert.NilError(t, err)
	t.Cleanup(func() { store.Close() })

	mt := tree.NewMemoryTree()
	for _, url := range links {
		_, err := mt.AddLink(tree.OtherID, url, url)
		assert.NilError(t, err)
	}

	o := migrate.New(store, mt, reachable{}, constant{}, migrate.Options{})
	return o.Start(context.Background())
}

func TestModel_Progress(t *testing.T) {
	m := New(nil)

	next, cmd := m.Update(progressMsg{Processed: 3, Total: 5, SuccessCount: 2, FailedCount: 1, Percentage: 60})
	m = next.(Model)
	assert.Check(t, cmd != nil)
	assert.Check(t, is.Contains(m.View(), "3/5"))
	assert.Check(t, m.Result() == nil)
}

func TestModel_Done(t *testing.T) {
	m := New(nil)

	next, cmd := m.Update(doneMsg{State: migrate.StatePaused, Message: "Paused", Remediation: "Start the model server"})
	m = next.(Model)
	assert.Check(t, cmd != nil)
	assert.Assert(t, m.Result() != nil)
	assert.Check(t, is.Equal(m.Result().State, migrate.StatePaused))

	view := m.View()
	assert.Check(t, is.Contains(view, "paused"))
	assert.Check(t, is.Contains(view, "Start the model server"))
}

func TestModel_Detach(t *testing.T) {
	m := New(nil)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	m = next.(Model)
	assert.Check(t, cmd != nil)
	assert.Check(t, m.Detached())
	assert.Check(t, m.Result() == nil)
}

func TestModel_FollowsRun(t *testing.T) {
	run := startRun(t, "https://go.dev", "https://pkg.go.dev")
	m := New(run)

	// Drive the command loop by hand until the result arrives.
	cmd := m.Init()
	for i := 0; i < 10 && m.Result() == nil; i++ {
		msg := cmd()
		var next tea.Model
		next, _ = m.Update(msg)
		m = next.(Model)
		cmd = waitFor(run)
	}

	assert.Assert(t, m.Result() != nil)
	assert.Check(t, is.Equal(m.Result().State, migrate.StateComplete))
	assert.Check(t, is.Equal(m.Result().Success, 2))
}

func TestPlain(t *testing.T) {
	var buf bytes.Buffer

	result := Plain(&buf, startRun(t, "https://go.dev"))

	assert.Check(t, is.Equal(result.State, migrate.StateComplete))
	out := buf.String()
	assert.Check(t, is.Contains(out, "state complete"))
	assert.Check(t, strings.Contains(out, "ok=1") || strings.Contains(out, "ok 1"), out)
}

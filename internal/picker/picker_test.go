package picker

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/search"
)

func gitResults() []search.SearchResult {
	return []search.SearchResult{
		{Bookmark: model.Bookmark{ID: "b1", Title: "GitHub", URL: "https://github.com", Category: "Development"}, MatchedIndexes: []int{0, 1, 2}},
		{Bookmark: model.Bookmark{ID: "b2", Title: "GitLab", URL: "https://gitlab.com", Category: "Development"}, MatchedIndexes: []int{0, 1, 2}},
	}
}

func press(p Picker, msg tea.KeyMsg) (Picker, tea.Cmd) {
	m, cmd := p.Update(msg)
	return m.(Picker), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestPicker_InitialState(t *testing.T) {
	p := New(gitResults(), "git", nil)

	if p.cursor != 0 {
		t.Errorf("expected cursor at 0, got %d", p.cursor)
	}
	if !p.Cancelled() {
		t.Error("expected no action before any key")
	}
}

func TestPicker_Navigate(t *testing.T) {
	p := New(gitResults(), "git", nil)

	p, _ = press(p, runes("j"))
	if p.cursor != 1 {
		t.Errorf("expected cursor at 1 after j, got %d", p.cursor)
	}

	// Stays at the last result.
	p, _ = press(p, tea.KeyMsg{Type: tea.KeyDown})
	if p.cursor != 1 {
		t.Errorf("expected cursor to stay at 1, got %d", p.cursor)
	}

	p, _ = press(p, runes("k"))
	p, _ = press(p, tea.KeyMsg{Type: tea.KeyUp})
	if p.cursor != 0 {
		t.Errorf("expected cursor at 0, got %d", p.cursor)
	}
}

func TestPicker_Open(t *testing.T) {
	p := New(gitResults(), "git", nil)
	p.cursor = 1

	p, cmd := press(p, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Error("expected quit command after selection")
	}

	b, action, ok := p.Selected()
	if !ok || action != ActionOpen {
		t.Fatalf("expected open action, got %v ok=%v", action, ok)
	}
	if b.ID != "b2" {
		t.Errorf("expected GitLab selected, got %s", b.ID)
	}
}

func TestPicker_Copy(t *testing.T) {
	p := New(gitResults(), "git", nil)

	p, _ = press(p, runes("y"))

	b, action, ok := p.Selected()
	if !ok || action != ActionCopy || b.ID != "b1" {
		t.Errorf("expected copy of b1, got %s %v ok=%v", b.ID, action, ok)
	}
}

func TestPicker_Cancel(t *testing.T) {
	for _, msg := range []tea.KeyMsg{{Type: tea.KeyEsc}, runes("q")} {
		p := New(gitResults(), "git", nil)

		p, cmd := press(p, msg)
		if cmd == nil {
			t.Error("expected quit command after cancel")
		}
		if _, _, ok := p.Selected(); ok {
			t.Error("expected no selection when cancelled")
		}
	}
}

func TestPicker_ScrollsWithCursor(t *testing.T) {
	var results []search.SearchResult
	for i := 0; i < 20; i++ {
		results = append(results, search.SearchResult{Bookmark: model.Bookmark{ID: string(rune('a' + i)), Title: "Item"}})
	}

	p := New(results, "item", nil)
	m, _ := p.Update(tea.WindowSizeMsg{Width: 80, Height: 11})
	p = m.(Picker)

	for i := 0; i < 10; i++ {
		p, _ = press(p, runes("j"))
	}
	if p.offset == 0 {
		t.Error("expected the window to scroll")
	}
	if p.cursor < p.offset || p.cursor >= p.offset+p.visible() {
		t.Errorf("cursor %d outside window starting at %d", p.cursor, p.offset)
	}
}

func TestPicker_View(t *testing.T) {
	p := New(gitResults(), "git", func(string) string { return "#00ff00" })

	view := p.View()
	for _, want := range []string{"Search: git (2 results)", "https://gitlab.com", "[Development]"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

package picker

import (
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/search"
)

var (
	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	matchStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Underline(true)

	urlStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")).
			Italic(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("99")).
			Bold(true).
			MarginBottom(1)

	footerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

// Action is what the user asked to do with the selected bookmark.
type Action int

const (
	ActionNone Action = iota
	ActionOpen
	ActionCopy
)

// ColorFunc maps a category name to a terminal color.
type ColorFunc func(category string) string

// Picker is a simple TUI for selecting from search results.
type Picker struct {
	results []search.SearchResult
	query   string
	color   ColorFunc
	cursor  int
	offset  int
	action  Action
	width   int
	height  int
}

// New creates a Picker over results. color may be nil.
func New(results []search.SearchResult, query string, color ColorFunc) Picker {
	return Picker{
		results: results,
		query:   query,
		color:   color,
		width:   80,
		height:  24,
	}
}

// Init implements tea.Model.
func (p Picker) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (p Picker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		p.scroll()
		return p, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEsc, tea.KeyCtrlC:
			p.action = ActionNone
			return p, tea.Quit
		case tea.KeyEnter:
			p.action = ActionOpen
			return p, tea.Quit
		case tea.KeyDown:
			p.move(1)
			return p, nil
		case tea.KeyUp:
			p.move(-1)
			return p, nil
		}

		if msg.Type == tea.KeyRunes {
			switch string(msg.Runes) {
			case "j":
				p.move(1)
			case "k":
				p.move(-1)
			case "y":
				p.action = ActionCopy
				return p, tea.Quit
			case "q":
				p.action = ActionNone
				return p, tea.Quit
			}
		}
	}

	return p, nil
}

func (p *Picker) move(delta int) {
	next := p.cursor + delta
	if next < 0 || next >= len(p.results) {
		return
	}
	p.cursor = next
	p.scroll()
}

// scroll keeps the cursor inside the visible window.
func (p *Picker) scroll() {
	visible := p.visible()
	if p.cursor < p.offset {
		p.offset = p.cursor
	}
	if p.cursor >= p.offset+visible {
		p.offset = p.cursor - visible + 1
	}
}

// visible is the number of results that fit; each takes two lines plus the
// header and footer.
func (p Picker) visible() int {
	return max((p.height-5)/2, 1)
}

// View implements tea.Model.
func (p Picker) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("Search: %s (%d results)", p.query, len(p.results))))
	b.WriteString("\n\n")

	end := min(p.offset+p.visible(), len(p.results))
	for i := p.offset; i < end; i++ {
		result := p.results[i]
		cursor := "  "
		style := normalStyle
		if i == p.cursor {
			cursor = "> "
			style = selectedStyle
		}

		title := highlight(result.Bookmark.Title, result.MatchedIndexes, style)
		b.WriteString(fmt.Sprintf("%s%s %s\n", cursor, title, p.badge(result.Bookmark.Category)))
		b.WriteString(fmt.Sprintf("   %s\n", urlStyle.Render(result.Bookmark.URL)))
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render("j/k: move  Enter: open  y: copy url  q/Esc: cancel"))

	return b.String()
}

func (p Picker) badge(category string) string {
	style := footerStyle
	if p.color != nil {
		style = lipgloss.NewStyle().Foreground(lipgloss.Color(p.color(category)))
	}
	return style.Render("[" + category + "]")
}

// highlight renders the fuzzy-matched runes of title with matchStyle.
// MatchedIndexes are byte offsets into title.
func highlight(title string, matched []int, base lipgloss.Style) string {
	if len(matched) == 0 {
		return base.Render(title)
	}

	var b strings.Builder
	for i, r := range title {
		if slices.Contains(matched, i) {
			b.WriteString(matchStyle.Render(string(r)))
		} else {
			b.WriteString(base.Render(string(r)))
		}
	}
	return b.String()
}

// Selected returns the chosen bookmark and what to do with it. ok is false
// when the picker was cancelled.
func (p Picker) Selected() (b model.Bookmark, action Action, ok bool) {
	if p.action == ActionNone || p.cursor >= len(p.results) {
		return model.Bookmark{}, ActionNone, false
	}
	return p.results[p.cursor].Bookmark, p.action, true
}

// Cancelled returns true if the user left without choosing.
func (p Picker) Cancelled() bool {
	return p.action == ActionNone
}

// Package progressview renders a running migration in the terminal.
package progressview

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nikbrunner/gmark/internal/migrate"
)

const maxBarWidth = 60

type progressMsg migrate.Progress

type doneMsg migrate.Result

// Model is the bubbletea model following one migrate.Run.
type Model struct {
	run      *migrate.Run
	bar      progress.Model
	styles   Styles
	last     migrate.Progress
	result   *migrate.Result
	detached bool
}

func New(run *migrate.Run) Model {
	return Model{
		run:    run,
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(maxBarWidth)),
		styles: DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return waitFor(m.run)
}

// waitFor blocks on the next progress snapshot, or the result once the
// stream is closed.
func waitFor(run *migrate.Run) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-run.Progress()
		if !ok {
			return doneMsg(run.Wait())
		}
		return progressMsg(p)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = min(msg.Width-8, maxBarWidth)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.detached = true
			return m, tea.Quit
		}
		return m, nil

	case progressMsg:
		m.last = migrate.Progress(msg)
		return m, tea.Batch(m.bar.SetPercent(float64(msg.Percentage)/100), waitFor(m.run))

	case doneMsg:
		r := migrate.Result(msg)
		m.result = &r
		return m, tea.Quit

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	s := m.styles

	b.WriteString(s.Title.Render("Migrating bookmarks"))
	b.WriteString("\n\n")

	if m.result != nil {
		b.WriteString(Summary(*m.result, s))
		return s.App.Render(b.String()) + "\n"
	}

	b.WriteString(m.bar.View())
	b.WriteString("\n\n")
	b.WriteString(counts(m.last, s))
	b.WriteString(s.Help.Render("q: detach (the run pauses and resumes next time)"))

	return s.App.Render(b.String())
}

// Result returns the final result, or nil when the view quit before the run
// ended.
func (m Model) Result() *migrate.Result {
	return m.result
}

// Detached reports whether the user left before the run ended.
func (m Model) Detached() bool {
	return m.detached
}

func counts(p migrate.Progress, s Styles) string {
	return fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s\n",
		s.Label.Render("processed"), s.Count.Render(fmt.Sprintf("%d/%d", p.Processed, p.Total)),
		s.Label.Render("ok"), s.Success.Render(fmt.Sprint(p.SuccessCount)),
		s.Label.Render("failed"), s.Failed.Render(fmt.Sprint(p.FailedCount)),
		s.Label.Render("unreachable"), s.Unreachable.Render(fmt.Sprint(p.UnreachableCount)),
		s.Label.Render("skipped"), s.Skipped.Render(fmt.Sprint(p.SkippedCount)))
}

// Summary renders a finished run.
func Summary(r migrate.Result, s Styles) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s %s\n", s.Label.Render("state"), s.Count.Render(string(r.State))))
	if r.Message != "" {
		b.WriteString(r.Message + "\n")
	}
	if r.Total > 0 {
		b.WriteString(counts(migrate.Progress{
			Processed:        r.Success + r.Failed + r.Unreachable + r.Skipped,
			Total:            r.Total,
			SuccessCount:     r.Success,
			FailedCount:      r.Failed,
			UnreachableCount: r.Unreachable,
			SkippedCount:     r.Skipped,
		}, s))
	}
	if r.Remediation != "" {
		b.WriteString(s.Remediation.Render(r.Remediation))
		b.WriteString("\n")
	}
	return b.String()
}

// Plain follows run without a terminal UI, writing one line per snapshot,
// and returns the result.
func Plain(w io.Writer, run *migrate.Run) migrate.Result {
	for p := range run.Progress() {
		fmt.Fprintf(w, "[%3d%%] %d/%d ok=%d failed=%d unreachable=%d skipped=%d\n",
			p.Percentage, p.Processed, p.Total,
			p.SuccessCount, p.FailedCount, p.UnreachableCount, p.SkippedCount)
	}

	result := run.Wait()
	fmt.Fprint(w, Summary(result, PlainStyles()))
	return result
}

package progressview

import "github.com/charmbracelet/lipgloss"

// Styles holds the lipgloss styles of the progress view.
type Styles struct {
	App         lipgloss.Style
	Title       lipgloss.Style
	Count       lipgloss.Style
	Label       lipgloss.Style
	Success     lipgloss.Style
	Failed      lipgloss.Style
	Unreachable lipgloss.Style
	Skipped     lipgloss.Style
	Remediation lipgloss.Style
	Help        lipgloss.Style
}

// DefaultStyles returns the default style configuration: grayscale with a
// desaturated teal accent and muted state colors.
func DefaultStyles() Styles {
	primary := lipgloss.AdaptiveColor{Light: "#505050", Dark: "#A0A0A0"}
	subtle := lipgloss.AdaptiveColor{Light: "#888888", Dark: "#606060"}
	accent := lipgloss.AdaptiveColor{Light: "#4A7070", Dark: "#5F8787"}
	warn := lipgloss.AdaptiveColor{Light: "#8A6D3B", Dark: "#AF875F"}
	bad := lipgloss.AdaptiveColor{Light: "#8B3A3A", Dark: "#AF5F5F"}

	return Styles{
		App: lipgloss.NewStyle().
			PaddingTop(1).
			PaddingLeft(2).
			PaddingRight(2),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(accent),

		Count: lipgloss.NewStyle().
			Foreground(primary),

		Label: lipgloss.NewStyle().
			Foreground(subtle),

		Success: lipgloss.NewStyle().
			Foreground(accent),

		Failed: lipgloss.NewStyle().
			Foreground(bad),

		Unreachable: lipgloss.NewStyle().
			Foreground(warn),

		Skipped: lipgloss.NewStyle().
			Foreground(subtle),

		Remediation: lipgloss.NewStyle().
			Foreground(warn).
			PaddingTop(1),

		Help: lipgloss.NewStyle().
			Foreground(subtle).
			Padding(1, 0),
	}
}

// PlainStyles renders text without colors or padding.
func PlainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{
		App:         plain,
		Title:       plain,
		Count:       plain,
		Label:       plain,
		Success:     plain,
		Failed:      plain,
		Unreachable: plain,
		Skipped:     plain,
		Remediation: plain,
		Help:        plain,
	}
}

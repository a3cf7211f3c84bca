package ui

import (
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
)

// TermProfile is the color profile of stdout, detected once at init.
var TermProfile colorprofile.Profile

func init() {
	TermProfile = colorprofile.Detect(os.Stdout, os.Environ())
}

// Theme holds the colors and pre-built styles of the tree screen.
type Theme struct {
	Renderer *lipgloss.Renderer

	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Subtext   lipgloss.AdaptiveColor

	Layer    lipgloss.AdaptiveColor
	Table    lipgloss.AdaptiveColor
	Relation lipgloss.AdaptiveColor
	Pending  lipgloss.AdaptiveColor
	Error    lipgloss.AdaptiveColor

	Border    lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor
	Muted     lipgloss.AdaptiveColor

	Base     lipgloss.Style
	Selected lipgloss.Style
	Header   lipgloss.Style

	// Pre-computed row styles, created once instead of per frame.
	MutedText    lipgloss.Style
	TreeBranch   lipgloss.Style
	LayerText    lipgloss.Style
	RelationText lipgloss.Style
	PendingText  lipgloss.Style
	ErrorText    lipgloss.Style
	CountText    lipgloss.Style
	StatusText   lipgloss.Style
	StatusError  lipgloss.Style
}

// DefaultTheme returns the standard Dracula-inspired theme (adaptive).
func DefaultTheme(r *lipgloss.Renderer) Theme {
	t := Theme{
		Renderer: r,

		Primary:   ColorPrimary,
		Secondary: ColorSecondary,
		Subtext:   ColorSubtext,

		Layer:    lipgloss.AdaptiveColor{Light: "#2684FF", Dark: "#4C9AFF"},
		Table:    lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#FFB86C"},
		Relation: lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"},
		Pending:  ColorInfo,
		Error:    ColorDanger,

		Border:    lipgloss.AdaptiveColor{Light: "#AAAAAA", Dark: "#44475A"},
		Highlight: lipgloss.AdaptiveColor{Light: "#E0E0E0", Dark: "#44475A"},
		Muted:     ColorMuted,
	}

	t.Base = r.NewStyle().Foreground(ColorText)

	t.Selected = r.NewStyle().
		Background(t.Highlight).
		Bold(true)
	if TermProfile < colorprofile.ANSI256 {
		// The highlight gray is unreadable on 16-color terminals.
		t.Selected = r.NewStyle().Reverse(true).Bold(true)
	}

	t.Header = r.NewStyle().
		Background(t.Primary).
		Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#282A36"}).
		Bold(true).
		Padding(0, 1)

	t.MutedText = r.NewStyle().Foreground(t.Muted)
	t.TreeBranch = r.NewStyle().Foreground(t.Muted)
	t.LayerText = r.NewStyle().Foreground(t.Layer).Bold(true)
	t.RelationText = r.NewStyle().Foreground(t.Relation)
	t.PendingText = r.NewStyle().Foreground(t.Pending).Italic(true)
	t.ErrorText = r.NewStyle().Foreground(t.Error)
	t.CountText = r.NewStyle().Foreground(t.Subtext)
	t.StatusText = r.NewStyle().Foreground(ColorSuccess)
	t.StatusError = r.NewStyle().Foreground(ColorDanger).Bold(true)

	return t
}

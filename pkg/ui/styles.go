package ui

import "github.com/charmbracelet/lipgloss"

// Palette for light and dark terminals. Light values keep a 4.5:1 contrast.

var (
	ColorBgHighlight = lipgloss.AdaptiveColor{Light: "#D0D0D0", Dark: "#44475A"}
	ColorText        = lipgloss.AdaptiveColor{Light: "#1A1A1A", Dark: "#F8F8F2"}
	ColorSubtext     = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#BFBFBF"}
	ColorMuted       = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#6272A4"}

	ColorPrimary   = lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#BD93F9"}
	ColorSecondary = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"}
	ColorInfo      = lipgloss.AdaptiveColor{Light: "#006080", Dark: "#8BE9FD"}
	ColorSuccess   = lipgloss.AdaptiveColor{Light: "#007700", Dark: "#50FA7B"}
	ColorDanger    = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}

	// Row kind badge backgrounds
	ColorBadgeText     = lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#FFFFFF"}
	ColorLayerBg       = lipgloss.AdaptiveColor{Light: "#2684FF", Dark: "#4C9AFF"}
	ColorTableBg       = lipgloss.AdaptiveColor{Light: "#6B778C", Dark: "#6B778C"}
	ColorRelationBg    = lipgloss.AdaptiveColor{Light: "#6B47D9", Dark: "#904EE2"}
	ColorFeatureBg     = lipgloss.AdaptiveColor{Light: "#36B37E", Dark: "#36B37E"}
	ColorTableRecordBg = lipgloss.AdaptiveColor{Light: "#B06800", Dark: "#C27A1A"}
)

// PanelStyle frames the details pane.
var PanelStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBgHighlight)

// RenderKindBadge returns a one-cell colored badge for a row.
func RenderKindBadge(row Row) string {
	var bg lipgloss.AdaptiveColor
	var label string

	switch row.Kind {
	case RowLayer:
		if row.Layer.IsTable() {
			bg, label = ColorTableBg, "T"
		} else {
			bg, label = ColorLayerBg, "L"
		}
	case RowFeature, RowRelated:
		if row.Layer.IsTable() {
			bg, label = ColorTableRecordBg, "r"
		} else {
			bg, label = ColorFeatureBg, "f"
		}
	case RowRelationship:
		bg, label = ColorRelationBg, "R"
	default:
		return " "
	}

	return lipgloss.NewStyle().
		Foreground(ColorBadgeText).
		Background(bg).
		Bold(true).
		Render(label)
}

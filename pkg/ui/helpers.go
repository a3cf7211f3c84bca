package ui

import (
	"fmt"

	"github.com/mattn/go-runewidth"
)

// truncateRunesHelper truncates a string to max visual width (cells), adding
// suffix if needed. Uses go-runewidth to handle wide characters correctly.
func truncateRunesHelper(s string, maxWidth int, suffix string) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}

	suffixWidth := runewidth.StringWidth(suffix)
	if suffixWidth > maxWidth {
		return runewidth.Truncate(suffix, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth-suffixWidth, "") + suffix
}

// truncate truncates s to maxWidth cells with an ellipsis.
func truncate(s string, maxWidth int) string {
	return truncateRunesHelper(s, maxWidth, "…")
}

// formatCount returns "(n)" or "(n records)" for tables.
func formatCount(n int, unit string) string {
	if unit == "" {
		return fmt.Sprintf("(%d)", n)
	}
	if n == 1 {
		return fmt.Sprintf("(1 %s)", unit)
	}
	return fmt.Sprintf("(%d %ss)", n, unit)
}

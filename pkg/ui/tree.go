package ui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
)

// TreeView renders the flat row list of the selection tree with a cursor
// and a scroll window. It holds no tree state of its own: rows are rebuilt
// from the state after every change and SetRows keeps the cursor on the
// same node.
type TreeView struct {
	theme    Theme
	rows     []Row
	prefixes []string
	cursor   int
	offset   int
	width    int
	height   int
	spinner  string
}

// NewTreeView returns an empty view.
func NewTreeView(theme Theme) TreeView {
	return TreeView{theme: theme, width: 80, height: 20}
}

// SetSize sets the rendering area. Height includes the header line.
func (t *TreeView) SetSize(width, height int) {
	t.width = width
	t.height = height
	t.ensureCursorVisible()
}

// SetSpinner sets the frame shown on pending rows.
func (t *TreeView) SetSpinner(frame string) {
	t.spinner = frame
}

// SetRows replaces the rows, keeping the cursor on the node it was on when
// that node is still visible.
func (t *TreeView) SetRows(rows []Row) {
	var current string
	if r, ok := t.SelectedRow(); ok {
		current = r.Node.ID
	}
	t.rows = rows
	t.prefixes = treePrefixes(rows)
	if current != "" {
		for i, r := range rows {
			if r.Node.ID == current {
				t.cursor = i
				t.ensureCursorVisible()
				return
			}
		}
	}
	if t.cursor >= len(rows) {
		t.cursor = len(rows) - 1
	}
	if t.cursor < 0 {
		t.cursor = 0
	}
	t.ensureCursorVisible()
}

// Rows returns the rows currently shown.
func (t *TreeView) Rows() []Row {
	return t.rows
}

// Cursor returns the index of the selected row.
func (t *TreeView) Cursor() int {
	return t.cursor
}

// SelectedRow returns the row under the cursor.
func (t *TreeView) SelectedRow() (Row, bool) {
	if t.cursor < 0 || t.cursor >= len(t.rows) {
		return Row{}, false
	}
	return t.rows[t.cursor], true
}

// visibleCount returns how many rows fit below the header, keeping one line
// for the position indicator when the rows overflow.
func (t *TreeView) visibleCount() int {
	n := t.height - 1
	if len(t.rows) > n {
		n--
	}
	if n < 1 {
		n = 1
	}
	return n
}

func (t *TreeView) ensureCursorVisible() {
	n := t.visibleCount()
	if t.cursor < t.offset {
		t.offset = t.cursor
	}
	if t.cursor >= t.offset+n {
		t.offset = t.cursor - n + 1
	}
	if maxOffset := len(t.rows) - n; t.offset > maxOffset {
		t.offset = maxOffset
	}
	if t.offset < 0 {
		t.offset = 0
	}
}

// MoveDown moves the cursor one row down.
func (t *TreeView) MoveDown() {
	if t.cursor < len(t.rows)-1 {
		t.cursor++
		t.ensureCursorVisible()
	}
}

// MoveUp moves the cursor one row up.
func (t *TreeView) MoveUp() {
	if t.cursor > 0 {
		t.cursor--
		t.ensureCursorVisible()
	}
}

// PageDown moves the cursor one window down.
func (t *TreeView) PageDown() {
	t.cursor += t.visibleCount()
	if t.cursor >= len(t.rows) {
		t.cursor = len(t.rows) - 1
	}
	if t.cursor < 0 {
		t.cursor = 0
	}
	t.ensureCursorVisible()
}

// PageUp moves the cursor one window up.
func (t *TreeView) PageUp() {
	t.cursor -= t.visibleCount()
	if t.cursor < 0 {
		t.cursor = 0
	}
	t.ensureCursorVisible()
}

// JumpToTop moves the cursor to the first row.
func (t *TreeView) JumpToTop() {
	t.cursor = 0
	t.ensureCursorVisible()
}

// JumpToBottom moves the cursor to the last row.
func (t *TreeView) JumpToBottom() {
	if len(t.rows) > 0 {
		t.cursor = len(t.rows) - 1
	}
	t.ensureCursorVisible()
}

// JumpToParent moves the cursor to the closest row above at a lower depth.
// It reports false at the root level.
func (t *TreeView) JumpToParent() bool {
	r, ok := t.SelectedRow()
	if !ok || r.Depth == 0 {
		return false
	}
	for i := t.cursor - 1; i >= 0; i-- {
		if t.rows[i].Depth < r.Depth {
			t.cursor = i
			t.ensureCursorVisible()
			return true
		}
	}
	return false
}

// Roots returns the node ids of the top-level rows.
func (t *TreeView) Roots() []string {
	var ids []string
	for _, r := range t.rows {
		if r.Depth == 0 && r.Expandable() {
			ids = append(ids, r.Node.ID)
		}
	}
	return ids
}

// View renders the header, the visible window of rows and, when the rows
// overflow, a position indicator.
func (t *TreeView) View() string {
	var sb strings.Builder
	sb.WriteString(t.renderHeader())
	sb.WriteString("\n")

	if len(t.rows) == 0 {
		sb.WriteString(t.theme.MutedText.Render("  Nothing selected."))
		sb.WriteString("\n")
		sb.WriteString(t.theme.MutedText.Render("  Select features to list them here."))
		return sb.String()
	}

	n := t.visibleCount()
	end := t.offset + n
	if end > len(t.rows) {
		end = len(t.rows)
	}
	for i := t.offset; i < end; i++ {
		line := t.renderRow(i)
		if i == t.cursor {
			line = t.theme.Selected.Width(t.width).Render(line)
		}
		sb.WriteString(line)
		if i < end-1 {
			sb.WriteString("\n")
		}
	}
	if len(t.rows) > n {
		sb.WriteString("\n")
		sb.WriteString(t.theme.MutedText.Render(fmt.Sprintf(" %d-%d of %d", t.offset+1, end, len(t.rows))))
	}
	return sb.String()
}

func (t *TreeView) renderHeader() string {
	width := t.width
	if width <= 0 {
		width = 80
	}
	return t.theme.Header.Width(width).Render("Selection")
}

func (t *TreeView) renderRow(i int) string {
	r := t.rows[i]
	prefix := t.theme.TreeBranch.Render(t.prefixes[i])
	used := runewidth.StringWidth(t.prefixes[i])

	switch r.Kind {
	case RowPending:
		frame := t.spinner
		if frame == "" {
			frame = "…"
		}
		return prefix + t.theme.PendingText.Render(truncate(frame+" "+r.Label, t.width-used))
	case RowError:
		return prefix + t.theme.ErrorText.Render(truncate("✗ "+r.Label, t.width-used))
	case RowEmpty:
		return prefix + t.theme.MutedText.Render(truncate(r.Label, t.width-used))
	}

	indicator := expandIndicator(r) + " "
	badge := RenderKindBadge(r) + " "
	used += runewidth.StringWidth(indicator) + 2

	count := ""
	if r.Count >= 0 {
		count = " " + formatCount(r.Count, "")
	}
	label := truncate(r.Label, t.width-used-runewidth.StringWidth(count))

	var styled string
	switch r.Kind {
	case RowLayer:
		styled = t.theme.LayerText.Render(label)
	case RowRelationship:
		styled = t.theme.RelationText.Render(label)
	default:
		styled = t.theme.Base.Render(label)
	}
	return prefix + indicator + badge + styled + t.theme.CountText.Render(count)
}

// expandIndicator returns ▾ for expanded rows, ▸ for collapsed rows that may
// have children and • for known leaves.
func expandIndicator(r Row) string {
	if r.Expanded {
		return "▾"
	}
	if r.Count == 0 {
		return "•"
	}
	return "▸"
}

// treePrefixes computes the branch drawing of every row from the depths
// alone. Top-level rows get no prefix.
func treePrefixes(rows []Row) []string {
	prefixes := make([]string, len(rows))
	// more[d] is set when a later row at depth d follows before any
	// shallower row, i.e. the current node at depth d has a sibling below.
	var more []bool
	for i := len(rows) - 1; i >= 0; i-- {
		d := rows[i].Depth
		for len(more) <= d {
			more = append(more, false)
		}
		if d > 0 {
			var sb strings.Builder
			for k := 1; k < d; k++ {
				if more[k] {
					sb.WriteString("│   ")
				} else {
					sb.WriteString("    ")
				}
			}
			if more[d] {
				sb.WriteString("├── ")
			} else {
				sb.WriteString("└── ")
			}
			prefixes[i] = sb.String()
		}
		more[d] = true
		for k := d + 1; k < len(more); k++ {
			more[k] = false
		}
	}
	return prefixes
}

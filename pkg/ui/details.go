package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"

	"github.com/vanderheijden86/seltree/pkg/selection"
	"github.com/vanderheijden86/seltree/pkg/state"
)

// DetailPane shows the attributes of the focused row as rendered markdown.
type DetailPane struct {
	viewport viewport.Model
	renderer *glamour.TermRenderer
	width    int
	content  string
}

// NewDetailPane returns a pane of the given size.
func NewDetailPane(width, height int) DetailPane {
	d := DetailPane{viewport: viewport.New(width, height)}
	d.SetSize(width, height)
	return d
}

// SetSize resizes the pane and rebuilds the renderer for the new wrap width.
func (d *DetailPane) SetSize(width, height int) {
	d.viewport.Width = width
	d.viewport.Height = height
	if width == d.width && d.renderer != nil {
		return
	}
	d.width = width
	wrap := width - 2
	if wrap < 20 {
		wrap = 20
	}
	d.renderer, _ = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	if d.content != "" {
		d.render(d.content)
	}
}

// SetMarkdown replaces the content, keeping the scroll position only when
// the markdown is unchanged.
func (d *DetailPane) SetMarkdown(md string) {
	if md == d.content {
		return
	}
	d.content = md
	d.render(md)
	d.viewport.GotoTop()
}

func (d *DetailPane) render(md string) {
	if d.renderer == nil {
		d.viewport.SetContent(md)
		return
	}
	rendered, err := d.renderer.Render(md)
	if err != nil {
		d.viewport.SetContent(fmt.Sprintf("Error rendering markdown: %v", err))
		return
	}
	d.viewport.SetContent(rendered)
}

// ScrollDown scrolls half a page down.
func (d *DetailPane) ScrollDown() { d.viewport.HalfViewDown() }

// ScrollUp scrolls half a page up.
func (d *DetailPane) ScrollUp() { d.viewport.HalfViewUp() }

// View renders the pane.
func (d *DetailPane) View() string {
	return d.viewport.View()
}

// detailMarkdown describes row as markdown.
func detailMarkdown(row Row, snap selection.Snapshot, st state.State) string {
	var sb strings.Builder

	switch row.Kind {
	case RowLayer:
		kind := "Layer"
		if row.Layer.IsTable() {
			kind = "Table"
		}
		fmt.Fprintf(&sb, "# %s\n\n", layerTitle(row.Layer))
		sb.WriteString("| Kind | Id | Geometry | Selected |\n|---|---|---|---|\n")
		geom := string(row.Layer.GeometryType)
		if geom == "" {
			geom = "none"
		}
		fmt.Fprintf(&sb, "| %s | `%s` | %s | %d |\n\n", kind, row.Layer.ID, geom, row.Count)
		if g, ok := snap.Group(row.Layer.ID); ok && g.Pending {
			sb.WriteString("_Selection is still loading._\n")
		}

	case RowFeature, RowRelated:
		fmt.Fprintf(&sb, "# %s\n\n", row.Label)
		fmt.Fprintf(&sb, "**%s** · `%s`\n\n", layerTitle(row.Layer), row.Feature.GisID())
		writeAttributes(&sb, row.Feature.Attributes)
		writeGeometry(&sb, row, st)
		if e, ok := st.RelationClasses().Get(row.Feature.GisID()); ok {
			switch e.Status {
			case state.StatusLoaded:
				fmt.Fprintf(&sb, "**Relationships:** %d\n", len(e.Result))
			case state.StatusError:
				fmt.Fprintf(&sb, "**Relationships failed:** %s\n", e.ErrorMessage)
			}
		}

	case RowRelationship:
		d := row.Relationship
		fmt.Fprintf(&sb, "# %s\n\n", row.Label)
		sb.WriteString("| Class | Role | Cardinality | Related layer |\n|---|---|---|---|\n")
		fmt.Fprintf(&sb, "| %d | %s | %s | %s |\n\n", d.ID, d.Role, d.Cardinality, layerTitle(row.Layer))
		if d.KeyField != "" {
			fmt.Fprintf(&sb, "**Keys:** `%s` → `%s`\n\n", d.KeyField, d.RelatedKey)
		}
		fmt.Fprintf(&sb, "From `%s`\n", row.Feature.GisID())

	case RowError:
		sb.WriteString("# Failed to load\n\n")
		sb.WriteString(row.Message + "\n\nPress **r** on the row above to retry.\n")

	default:
		sb.WriteString(row.Label + "\n")
	}
	return sb.String()
}

func writeAttributes(sb *strings.Builder, attrs map[string]any) {
	if len(attrs) == 0 {
		return
	}
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	sb.WriteString("| Attribute | Value |\n|---|---|\n")
	for _, name := range names {
		v := attrs[name]
		value := "_null_"
		if v != nil {
			value = strings.ReplaceAll(fmt.Sprint(v), "|", "\\|")
		}
		fmt.Fprintf(sb, "| %s | %s |\n", name, value)
	}
	sb.WriteString("\n")
}

func writeGeometry(sb *strings.Builder, row Row, st state.State) {
	if row.Feature.HasGeometry() {
		fmt.Fprintf(sb, "**Geometry:** %s, %d vertices\n\n", row.Feature.Geometry.Type, len(row.Feature.Geometry.Coordinates))
		return
	}
	if !row.Layer.IsTable() {
		return
	}
	support, ok := st.SupportFeatures(row.Feature.GisID())
	switch {
	case !ok:
		sb.WriteString("**Located by:** _looking up…_\n\n")
	case support.IsEmpty():
		sb.WriteString("**Located by:** _no related features with geometry_\n\n")
	default:
		ids := make([]string, 0, support.Len())
		for _, f := range support.Features {
			ids = append(ids, "`"+f.GisID()+"`")
		}
		fmt.Fprintf(sb, "**Located by:** %s\n\n", strings.Join(ids, ", "))
	}
}

// supportRow reports whether row is a table record whose geometry comes from
// related features.
func supportRow(row Row) bool {
	return row.IsFeature() && row.Layer.IsTable() && !row.Feature.HasGeometry()
}

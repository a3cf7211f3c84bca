package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vanderheijden86/seltree/pkg/model"
	"github.com/vanderheijden86/seltree/pkg/relations"
	"github.com/vanderheijden86/seltree/pkg/selection"
	"github.com/vanderheijden86/seltree/pkg/state"
)

// fetchDoneMsg carries a fetch completion back to Update, which dispatches
// it on the UI goroutine.
type fetchDoneMsg struct {
	key    string
	action state.Action
}

// planFetches plans the fetches the visible rows need: relationship classes
// under expanded features and related records under expanded relationship
// classes. Entries in the Error state are left alone until refreshed.
func planFetches(l *relations.Loader, st state.State, rows []Row) []relations.Task {
	var tasks []relations.Task
	for _, r := range rows {
		if !r.Expanded {
			continue
		}
		switch r.Kind {
		case RowFeature, RowRelated:
			if st.RelationClasses().Status(r.Feature.GisID()) == state.StatusError {
				continue
			}
			if t, ok := l.PlanRelationClasses(st, r.Root, r.Layer, r.Feature); ok {
				tasks = append(tasks, t)
			}
		case RowRelationship:
			key := model.RelationObjectKey(r.Feature.GisID(), r.Relationship.ID)
			if st.RelationObjects().Status(key) == state.StatusError {
				continue
			}
			if t, ok := l.PlanRelationObjects(st, r.Root, r.Feature, r.Relationship.ID, r.FeatureLayer); ok {
				tasks = append(tasks, t)
			}
		}
	}
	return tasks
}

// fetchCmd begins t and returns the command running it, or nil when the
// start was rejected.
func fetchCmd(d relations.Dispatcher, t relations.Task) tea.Cmd {
	if !t.Begin(d) {
		return nil
	}
	return func() tea.Msg {
		return fetchDoneMsg{key: t.Key, action: t.Run()}
	}
}

// ExpandOptions configures ExpandAll.
type ExpandOptions struct {
	// MaxDepth bounds the expanded depth; relationships may cycle.
	MaxDepth int
}

// DefaultExpandDepth is the depth ExpandAll uses when none is given.
const DefaultExpandDepth = 4

// ExpandAll expands every row above the depth limit, loading relations
// synchronously, and returns the final rows. It is the non-interactive
// counterpart of walking the tree by hand.
func ExpandAll(store *state.Store, src selection.Source, loader *relations.Loader, layers LayerLookup, opts ExpandOptions) ([]Row, error) {
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultExpandDepth
	}
	ran := make(map[string]bool)
	for {
		changed := false
		for _, r := range BuildRows(store.State(), src.Snapshot(), layers) {
			if r.Expandable() && !r.Expanded && r.Depth < opts.MaxDepth {
				if _, err := store.Dispatch(state.ToggleExpand{Node: r.Node}); err != nil {
					return nil, fmt.Errorf("expanding %s: %w", r.Node.ID, err)
				}
				changed = true
			}
		}

		rows := BuildRows(store.State(), src.Snapshot(), layers)
		for _, t := range planFetches(loader, store.State(), rows) {
			if ran[t.Key] {
				t.Discard()
				continue
			}
			ran[t.Key] = true
			if err := relations.RunSync(store, t); err != nil {
				return nil, fmt.Errorf("loading %s: %w", t.Key, err)
			}
			changed = true
		}
		if !changed {
			return rows, nil
		}
	}
}

// RenderPlain renders rows as an indented plain-text tree.
func RenderPlain(rows []Row) string {
	prefixes := treePrefixes(rows)
	var sb strings.Builder
	for i, r := range rows {
		sb.WriteString(prefixes[i])
		switch r.Kind {
		case RowPending:
			sb.WriteString("… " + r.Label)
		case RowError:
			sb.WriteString("✗ " + r.Label)
		case RowEmpty:
			sb.WriteString(r.Label)
		default:
			sb.WriteString(expandIndicator(r) + " " + r.Label)
			if r.Count >= 0 {
				sb.WriteString(" " + formatCount(r.Count, ""))
			}
			if r.IsFeature() {
				sb.WriteString("  [" + r.Feature.GisID() + "]")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

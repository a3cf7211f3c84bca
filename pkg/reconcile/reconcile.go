// Package reconcile keeps the selection tree state consistent with the live
// selection set, which other components mutate outside the reducer.
//
// Corrections are derived by pure selectors (ReconcileSelection,
// StaleTreeNodes) and memoized on the versions of their inputs, so a pass
// whose inputs did not change costs nothing and returns no actions.
package reconcile

import (
	"strings"
	"sync"

	"github.com/vanderheijden86/seltree/pkg/debug"
	"github.com/vanderheijden86/seltree/pkg/metrics"
	"github.com/vanderheijden86/seltree/pkg/model"
	"github.com/vanderheijden86/seltree/pkg/selection"
	"github.com/vanderheijden86/seltree/pkg/state"
)

// MaxReconcilePasses bounds Sync. Each pass applies the corrections derived
// from the previous one; a consistent state needs no more than two.
const MaxReconcilePasses = 4

// Options configures a Reconciler.
type Options struct {
	// KeepTreeState disables closing nodes for data that left the selection
	// and resetting the state when the selection is cleared.
	KeepTreeState bool
}

// Store is the part of state.Store used by Sync.
type Store interface {
	State() state.State
	Dispatch(state.Action) (state.State, error)
}

type memoKey struct {
	snapshot uint64
	part     uint64
}

// Reconciler derives corrective actions. It is safe for concurrent use.
type Reconciler struct {
	opts Options

	mu       sync.Mutex
	selMemo  memoKey
	treeMemo memoKey
	hasSel   bool
	hasTree  bool
}

// New returns a Reconciler.
func New(opts Options) *Reconciler {
	return &Reconciler{opts: opts}
}

// Options returns the reconciler's options.
func (r *Reconciler) Options() Options {
	return r.opts
}

// Reconcile returns the actions that bring st in line with snap. Each pass
// is skipped when its inputs have the same versions as in the previous call.
func (r *Reconciler) Reconcile(st state.State, snap selection.Snapshot) []state.Action {
	defer metrics.Timer(metrics.Reconcile)()

	if snap.IsEmpty() && !r.opts.KeepTreeState {
		if isPopulated(st) {
			return []state.Action{state.ResetState{}}
		}
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var actions []state.Action

	selKey := memoKey{snapshot: snap.Version, part: st.SelectedVersion()}
	if !r.hasSel || selKey != r.selMemo {
		if next, ok := ReconcileSelection(st.Selected(), snap); ok {
			actions = append(actions, state.SelectFeatures{Selection: next})
		}
		r.selMemo, r.hasSel = selKey, true
	}

	if !r.opts.KeepTreeState {
		treeKey := memoKey{snapshot: snap.Version, part: st.Tree().Version()}
		if !r.hasTree || treeKey != r.treeMemo {
			if ids := StaleTreeNodes(st.Tree(), snap); len(ids) > 0 {
				actions = append(actions, state.CloseMultipleObjects{IDs: ids})
			}
			r.treeMemo, r.hasTree = treeKey, true
		}
	}
	return actions
}

// Invalidate forgets the memoized inputs so the next Reconcile runs both
// passes.
func (r *Reconciler) Invalidate() {
	r.mu.Lock()
	r.hasSel, r.hasTree = false, false
	r.mu.Unlock()
}

// Sync applies corrective actions to store until none remain or
// MaxReconcilePasses is reached. It returns the actions that changed the
// state, and whether the state converged.
func (r *Reconciler) Sync(store Store, src selection.Source) ([]state.Action, bool) {
	var applied []state.Action
	for pass := 0; pass < MaxReconcilePasses; pass++ {
		actions := r.Reconcile(store.State(), src.Snapshot())
		if len(actions) == 0 {
			return applied, true
		}
		for _, a := range actions {
			if _, err := store.Dispatch(a); err == nil {
				applied = append(applied, a)
			}
		}
	}
	if actions := r.Reconcile(store.State(), src.Snapshot()); len(actions) > 0 {
		debug.Log("reconcile: stopped after %d passes with %d pending corrections", MaxReconcilePasses, len(actions))
		return applied, false
	}
	return applied, true
}

// ReconcileSelection validates sel against snap. It returns the corrected
// model and true when sel must be replaced. Groups that are still pending
// are never judged.
func ReconcileSelection(sel state.SelectedFeatures, snap selection.Snapshot) (state.SelectedFeatures, bool) {
	switch sel.Kind {
	case state.SelectionEmpty:
		return sel, false

	case state.SelectionLayer, state.SelectionTable:
		g, ok := snap.Group(sel.ID)
		if ok && g.Pending {
			return sel, false
		}
		if !ok || g.Features.IsEmpty() {
			return state.EmptySelection(), true
		}
		if model.SameFeatures(sel.Features, g.Features.Features) {
			return sel, false
		}
		geom := g.Features.GeometryType
		if geom == model.GeometryNone {
			geom = sel.GeometryType
		}
		return state.NewSelection(sel.Kind, sel.ID, g.Features.Features, geom), true

	case state.SelectionFeature, state.SelectionTableFeature:
		if len(sel.Features) == 0 {
			return state.EmptySelection(), true
		}
		f := sel.Features[0]
		if g, ok := snap.Group(f.LayerID); ok && g.Pending {
			return sel, false
		}
		if !snap.Contains(f.GisID()) {
			return state.EmptySelection(), true
		}
		return sel, false

	case state.SelectionRelationFeature, state.SelectionRelationTableFeature, state.SelectionRelationClass:
		g, rest, ok := snap.MatchLayer(sel.ID)
		if !ok {
			return state.EmptySelection(), true
		}
		if g.Pending {
			return sel, false
		}
		if _, found := rootFeature(g, rest); !found {
			return state.EmptySelection(), true
		}
		return sel, false

	default:
		panic("reconcile: unhandled selection kind " + sel.Kind.String())
	}
}

// rootFeature finds the feature of g that the composite remainder rest
// descends from.
func rootFeature(g selection.Group, rest string) (model.Feature, bool) {
	for _, f := range g.Features.Features {
		gis := f.GisID()
		if rest == gis || strings.HasPrefix(rest, gis+"_") {
			return f, true
		}
	}
	return model.Feature{}, false
}

// StaleTreeNodes returns the expanded nodes whose data left the selection:
// root layer nodes without a group and feature nodes directly under a root
// whose feature is no longer in that group. Pending groups are skipped.
func StaleTreeNodes(tree state.Tree, snap selection.Snapshot) []string {
	var stale []string
	for _, rootID := range tree.Roots() {
		root, ok := tree.Node(rootID)
		if !ok {
			continue
		}
		g, ok := snap.Group(root.GisID)
		if !ok {
			if root.Expanded {
				stale = append(stale, root.ID)
			}
			continue
		}
		if g.Pending {
			continue
		}
		for _, childID := range root.Children() {
			child, ok := tree.Node(childID)
			if !ok || !child.Expanded {
				continue
			}
			if !g.Features.Contains(child.GisID) {
				stale = append(stale, child.ID)
			}
		}
	}
	return stale
}

func isPopulated(st state.State) bool {
	return st.Tree().Len() > 0 ||
		!st.Selected().IsEmpty() ||
		st.RelationClasses().Len() > 0 ||
		st.RelationObjects().Len() > 0 ||
		st.SupportCount() > 0
}

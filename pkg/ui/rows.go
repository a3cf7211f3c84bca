package ui

import (
	"github.com/vanderheijden86/seltree/pkg/model"
	"github.com/vanderheijden86/seltree/pkg/selection"
	"github.com/vanderheijden86/seltree/pkg/state"
)

// RowKind is the kind of a rendered tree row.
type RowKind int

const (
	// RowLayer is a selected layer or table at the top level.
	RowLayer RowKind = iota
	// RowFeature is a selected feature directly under its layer.
	RowFeature
	// RowRelationship is a relationship class of the feature above it.
	RowRelationship
	// RowRelated is a record reached through a relationship class.
	RowRelated
	// RowPending, RowError and RowEmpty are message rows standing in for
	// children that are loading, failed or absent.
	RowPending
	RowError
	RowEmpty
)

// Row is one line of the selection tree, derived from the state, the
// caches and the live selection. Rows are never stored in the state.
type Row struct {
	Kind     RowKind
	Node     state.NodeDef
	Depth    int
	Label    string
	Expanded bool

	// Layer is the row's own layer; for relationship rows, the related one.
	Layer   model.Layer
	Feature model.Feature
	// Relationship and FeatureLayer are set on relationship rows; Feature
	// is then the feature the class belongs to.
	Relationship model.RelationshipDescriptor
	FeatureLayer model.Layer
	// Root is the gisId of the selected feature whose branch holds the row.
	Root string
	// Count is the number of children once known, -1 otherwise.
	Count   int
	Message string
}

// Expandable reports whether the row stands for a tree node.
func (r Row) Expandable() bool {
	switch r.Kind {
	case RowLayer, RowFeature, RowRelationship, RowRelated:
		return true
	}
	return false
}

// IsFeature reports whether the row shows a single feature or record.
func (r Row) IsFeature() bool {
	return r.Kind == RowFeature || r.Kind == RowRelated
}

// LayerLookup resolves layer ids of related records.
type LayerLookup func(id string) (model.Layer, bool)

type rowBuilder struct {
	st     state.State
	layers LayerLookup
	rows   []Row
}

// BuildRows returns the visible rows in render order. Collapsed nodes hide
// their subtree; expanded nodes whose data is not loaded yet get a pending
// row.
func BuildRows(st state.State, snap selection.Snapshot, layers LayerLookup) []Row {
	if layers == nil {
		layers = func(string) (model.Layer, bool) { return model.Layer{}, false }
	}
	b := &rowBuilder{st: st, layers: layers}
	for _, g := range snap.Groups {
		def := state.NodeDef{ID: state.ChildID("", g.Layer.ID), GisID: g.Layer.ID}
		expanded := st.Tree().IsExpanded(def.ID)
		b.add(Row{
			Kind:     RowLayer,
			Node:     def,
			Label:    layerTitle(g.Layer),
			Expanded: expanded,
			Layer:    g.Layer,
			Count:    g.Features.Len(),
		})
		if !expanded {
			continue
		}
		if g.Pending {
			b.message(RowPending, 1, "loading selection…")
			continue
		}
		for _, f := range g.Features.Features {
			b.feature(RowFeature, def.ID, g.Layer, f, f.GisID(), 1)
		}
	}
	return b.rows
}

func (b *rowBuilder) add(r Row) {
	b.rows = append(b.rows, r)
}

func (b *rowBuilder) message(kind RowKind, depth int, text string) {
	b.add(Row{Kind: kind, Depth: depth, Label: text, Message: text, Count: -1})
}

func (b *rowBuilder) feature(kind RowKind, parentID string, layer model.Layer, f model.Feature, root string, depth int) {
	gis := f.GisID()
	def := state.NodeDef{ID: state.ChildID(parentID, gis), GisID: gis, ParentID: parentID}
	expanded := b.st.Tree().IsExpanded(def.ID)

	e, ok := b.st.RelationClasses().Get(gis)
	count := -1
	if ok && e.Status == state.StatusLoaded {
		count = len(e.Result)
	}
	b.add(Row{
		Kind:     kind,
		Node:     def,
		Depth:    depth,
		Label:    f.Label(layer.DisplayField),
		Expanded: expanded,
		Layer:    layer,
		Feature:  f,
		Root:     root,
		Count:    count,
	})
	if !expanded {
		return
	}

	switch {
	case !ok || e.Status == state.StatusPending:
		b.message(RowPending, depth+1, "loading relationships…")
	case e.Status == state.StatusError:
		b.message(RowError, depth+1, e.ErrorMessage)
	case len(e.Result) == 0:
		b.message(RowEmpty, depth+1, "no relationships")
	default:
		for _, desc := range e.Result {
			b.relationship(def.ID, layer, f, desc, root, depth+1)
		}
	}
}

func (b *rowBuilder) relationship(parentID string, layer model.Layer, f model.Feature, desc model.RelationshipDescriptor, root string, depth int) {
	def := state.NodeDef{ID: state.ChildID(parentID, desc.Key()), GisID: desc.Key(), ParentID: parentID}
	expanded := b.st.Tree().IsExpanded(def.ID)

	related, ok := b.layers(desc.RelatedLayerID)
	if !ok {
		related = model.Layer{ID: desc.RelatedLayerID, Title: desc.RelatedLayerID}
	}
	e, found := b.st.RelationObjects().Get(model.RelationObjectKey(f.GisID(), desc.ID))
	count := -1
	if found && e.Status == state.StatusLoaded {
		count = e.Result.Len()
	}
	label := desc.Name
	if label == "" {
		label = layerTitle(related)
	}
	b.add(Row{
		Kind:         RowRelationship,
		Node:         def,
		Depth:        depth,
		Label:        label,
		Expanded:     expanded,
		Layer:        related,
		Feature:      f,
		Relationship: desc,
		FeatureLayer: layer,
		Root:         root,
		Count:        count,
	})
	if !expanded {
		return
	}

	switch {
	case !found || e.Status == state.StatusPending:
		b.message(RowPending, depth+1, "loading related records…")
	case e.Status == state.StatusError:
		b.message(RowError, depth+1, e.ErrorMessage)
	case e.Result.IsEmpty():
		b.message(RowEmpty, depth+1, "no related records")
	default:
		for _, rf := range e.Result.Features {
			rl := related
			if rf.LayerID != related.ID {
				if l, ok := b.layers(rf.LayerID); ok {
					rl = l
				}
			}
			b.feature(RowRelated, def.ID, rl, rf, root, depth+1)
		}
	}
}

func layerTitle(l model.Layer) string {
	if l.Title != "" {
		return l.Title
	}
	return l.ID
}

// SelectionFor returns the selected-features model a row stands for. Message
// rows select nothing.
func SelectionFor(row Row, snap selection.Snapshot, st state.State) (state.SelectedFeatures, bool) {
	switch row.Kind {
	case RowLayer:
		g, ok := snap.Group(row.Layer.ID)
		if !ok {
			return state.SelectedFeatures{}, false
		}
		kind := state.SelectionLayer
		if row.Layer.IsTable() {
			kind = state.SelectionTable
		}
		return state.NewSelection(kind, row.Node.ID, g.Features.Features, g.Features.GeometryType), true

	case RowFeature:
		kind := state.SelectionFeature
		if row.Layer.IsTable() {
			kind = state.SelectionTableFeature
		}
		return state.NewSelection(kind, row.Node.ID, []model.Feature{row.Feature}, row.Layer.GeometryType), true

	case RowRelated:
		kind := state.SelectionRelationFeature
		if row.Layer.IsTable() {
			kind = state.SelectionRelationTableFeature
		}
		return state.NewSelection(kind, row.Node.ID, []model.Feature{row.Feature}, row.Layer.GeometryType), true

	case RowRelationship:
		var features []model.Feature
		geom := row.Layer.GeometryType
		key := model.RelationObjectKey(row.Feature.GisID(), row.Relationship.ID)
		if e, ok := st.RelationObjects().Get(key); ok && e.Status == state.StatusLoaded {
			features = e.Result.Features
			if e.Result.GeometryType != model.GeometryNone {
				geom = e.Result.GeometryType
			}
		}
		return state.NewSelection(state.SelectionRelationClass, row.Node.ID, features, geom), true
	}
	return state.SelectedFeatures{}, false
}

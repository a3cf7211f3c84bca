package ui

import (
	"testing"

	"github.com/vanderheijden86/seltree/pkg/model"
	"github.com/vanderheijden86/seltree/pkg/relations"
	"github.com/vanderheijden86/seltree/pkg/selection"
	"github.com/vanderheijden86/seltree/pkg/state"
	"github.com/vanderheijden86/seltree/pkg/testutil"
)

type fixture struct {
	ds     model.Dataset
	src    *testutil.FakeSource
	set    *selection.Set
	store  *state.Store
	loader *relations.Loader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ds := testutil.LinkedDataset(4)
	src := testutil.NewFakeSource(ds)
	l := relations.NewLoader(src, relations.Options{LogLevel: relations.LogLevelNone})
	t.Cleanup(l.Close)
	return &fixture{ds: ds, src: src, set: selection.NewSet(), store: state.NewStore(), loader: l}
}

func (f *fixture) layers(id string) (model.Layer, bool) {
	return f.ds.Layer(id)
}

func (f *fixture) rows() []Row {
	return BuildRows(f.store.State(), f.set.Snapshot(), f.layers)
}

func (f *fixture) feature(t *testing.T, gis string) model.Feature {
	t.Helper()
	feat, ok := f.ds.Feature(gis)
	if !ok {
		t.Fatalf("no feature %s in dataset", gis)
	}
	return feat
}

// expand toggles the visible row with the given node id.
func (f *fixture) expand(t *testing.T, id string) {
	t.Helper()
	r, ok := findRow(f.rows(), id)
	if !ok {
		t.Fatalf("row %s not visible", id)
	}
	mustDispatch(t, f.store, state.ToggleExpand{Node: r.Node})
}

// loadClasses stores the relationship classes of gis as loaded.
func (f *fixture) loadClasses(t *testing.T, gis string) {
	t.Helper()
	layerID, _, _ := model.ParseFeatureGisID(gis)
	mustDispatch(t, f.store,
		state.LoadedRelationClassesStart{FeatureID: gis},
		state.LoadedRelationClassesSuccess{FeatureID: gis, Relationships: f.ds.RelationshipsOf(layerID)},
	)
}

// loadObjects stores the records related to gis through rel as loaded.
func (f *fixture) loadObjects(t *testing.T, gis string, rel int64) model.FeatureSet {
	t.Helper()
	feat := f.feature(t, gis)
	var fs model.FeatureSet
	for _, d := range f.ds.RelationshipsOf(feat.LayerID) {
		if d.ID == rel {
			fs = f.ds.RelatedFeatures(feat, d)
		}
	}
	mustDispatch(t, f.store,
		state.LoadedRelationObjectsStart{FeatureID: gis, RelationshipID: rel},
		state.LoadedRelationObjectsSuccess{FeatureID: gis, RelationshipID: rel, Result: fs},
	)
	return fs
}

// parcelWithOwners returns the gisId of a parcel with at least one owner
// record. Every owner references some parcel, so one always exists.
func (f *fixture) parcelWithOwners(t *testing.T) string {
	t.Helper()
	var desc model.RelationshipDescriptor
	for _, d := range f.ds.RelationshipsOf(testutil.LayerParcels) {
		if d.ID == testutil.RelParcelOwners {
			desc = d
		}
	}
	for _, p := range f.ds.FeaturesOf(testutil.LayerParcels) {
		if !f.ds.RelatedFeatures(p, desc).IsEmpty() {
			return p.GisID()
		}
	}
	t.Fatal("no parcel has owners")
	return ""
}

func mustDispatch(t *testing.T, s *state.Store, actions ...state.Action) {
	t.Helper()
	for _, a := range actions {
		if _, err := s.Dispatch(a); err != nil {
			t.Fatalf("dispatch %T: %v", a, err)
		}
	}
}

func findRow(rows []Row, id string) (Row, bool) {
	for _, r := range rows {
		if r.Node.ID == id {
			return r, true
		}
	}
	return Row{}, false
}

func rowKinds(rows []Row) []RowKind {
	kinds := make([]RowKind, len(rows))
	for i, r := range rows {
		kinds[i] = r.Kind
	}
	return kinds
}

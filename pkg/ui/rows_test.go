package ui

import (
	"errors"
	"reflect"
	"testing"

	"github.com/vanderheijden86/seltree/pkg/model"
	"github.com/vanderheijden86/seltree/pkg/state"
	"github.com/vanderheijden86/seltree/pkg/testutil"
)

func TestBuildRowsEmptySelection(t *testing.T) {
	f := newFixture(t)
	if rows := f.rows(); len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

func TestBuildRowsCollapsedLayers(t *testing.T) {
	f := newFixture(t)
	testutil.Select(f.set, f.ds, testutil.LayerParcels, 1, 2)
	testutil.Select(f.set, f.ds, testutil.TableOwners, 3)

	rows := f.rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 layer rows, got %d", len(rows))
	}
	if rows[0].Node.ID != "parcels" || rows[0].Label != "Parcels" || rows[0].Count != 2 {
		t.Errorf("unexpected parcels row %+v", rows[0])
	}
	if rows[1].Node.ID != "owners" || !rows[1].Layer.IsTable() || rows[1].Count != 1 {
		t.Errorf("unexpected owners row %+v", rows[1])
	}
	for _, r := range rows {
		if r.Kind != RowLayer || r.Depth != 0 || r.Expanded {
			t.Errorf("layer rows start collapsed at depth 0: %+v", r)
		}
	}
}

func TestBuildRowsExpandedFeatureIsPending(t *testing.T) {
	f := newFixture(t)
	testutil.Select(f.set, f.ds, testutil.LayerParcels, 1, 2)
	f.expand(t, "parcels")
	f.expand(t, "parcels_parcels:1")

	rows := f.rows()
	want := []RowKind{RowLayer, RowFeature, RowPending, RowFeature}
	if got := rowKinds(rows); !reflect.DeepEqual(got, want) {
		t.Fatalf("row kinds = %v, want %v", got, want)
	}
	if rows[1].Label != "102 Main St" || rows[1].Root != "parcels:1" || rows[1].Depth != 1 {
		t.Errorf("unexpected feature row %+v", rows[1])
	}
	if rows[1].Count != -1 {
		t.Errorf("count is unknown until classes load, got %d", rows[1].Count)
	}
	if rows[2].Depth != 2 {
		t.Errorf("pending row sits under the feature, got depth %d", rows[2].Depth)
	}
}

func TestBuildRowsRelationships(t *testing.T) {
	f := newFixture(t)
	testutil.Select(f.set, f.ds, testutil.LayerParcels, 1)
	f.expand(t, "parcels")
	f.expand(t, "parcels_parcels:1")
	f.loadClasses(t, "parcels:1")

	rows := f.rows()
	rel, ok := findRow(rows, "parcels_parcels:1_1")
	if !ok {
		t.Fatal("expected the parcel owners relationship row")
	}
	if rel.Kind != RowRelationship || rel.Label != "Parcel owners" || rel.Depth != 2 {
		t.Errorf("unexpected relationship row %+v", rel)
	}
	if rel.Layer.ID != testutil.TableOwners || rel.FeatureLayer.ID != testutil.LayerParcels {
		t.Errorf("relationship row layers: related %s, owner %s", rel.Layer.ID, rel.FeatureLayer.ID)
	}
	if feat, _ := findRow(rows, "parcels_parcels:1"); feat.Count != 2 {
		t.Errorf("feature count = %d, want 2 classes", feat.Count)
	}

	f.expand(t, "parcels_parcels:1_1")
	fs := f.loadObjects(t, "parcels:1", testutil.RelParcelOwners)

	rows = f.rows()
	var related []Row
	for _, r := range rows {
		if r.Kind == RowRelated {
			related = append(related, r)
		}
	}
	if len(related) != fs.Len() {
		t.Fatalf("expected %d related rows, got %d", fs.Len(), len(related))
	}
	for i, r := range related {
		wantID := "parcels_parcels:1_1_" + fs.Features[i].GisID()
		if r.Node.ID != wantID || r.Node.ParentID != "parcels_parcels:1_1" {
			t.Errorf("related row id %q, want %q", r.Node.ID, wantID)
		}
		if r.Root != "parcels:1" || r.Depth != 3 || !r.Layer.IsTable() {
			t.Errorf("unexpected related row %+v", r)
		}
	}
}

func TestBuildRowsErrorAndEmpty(t *testing.T) {
	f := newFixture(t)
	testutil.Select(f.set, f.ds, testutil.LayerParcels, 1, 2)
	f.expand(t, "parcels")
	f.expand(t, "parcels_parcels:1")
	f.expand(t, "parcels_parcels:2")
	mustDispatch(t, f.store,
		state.LoadedRelationClassesStart{FeatureID: "parcels:1"},
		state.LoadedRelationClassesError{FeatureID: "parcels:1", Err: errors.New("service unavailable")},
		state.LoadedRelationClassesStart{FeatureID: "parcels:2"},
		state.LoadedRelationClassesSuccess{FeatureID: "parcels:2"},
	)

	rows := f.rows()
	want := []RowKind{RowLayer, RowFeature, RowError, RowFeature, RowEmpty}
	if got := rowKinds(rows); !reflect.DeepEqual(got, want) {
		t.Fatalf("row kinds = %v, want %v", got, want)
	}
	if rows[2].Message != "service unavailable" {
		t.Errorf("error row message %q", rows[2].Message)
	}
	if rows[3].Count != 0 || expandIndicator(rows[3]) != "▾" {
		t.Errorf("expanded feature without classes: %+v", rows[3])
	}
}

func TestBuildRowsPendingGroup(t *testing.T) {
	f := newFixture(t)
	l, _ := f.ds.Layer(testutil.LayerHydrants)
	f.set.SetPending(l, true)
	f.expand(t, "hydrants")

	rows := f.rows()
	if got := rowKinds(rows); !reflect.DeepEqual(got, []RowKind{RowLayer, RowPending}) {
		t.Fatalf("row kinds = %v", got)
	}
}

func TestBuildRowsNilLayerLookup(t *testing.T) {
	f := newFixture(t)
	testutil.Select(f.set, f.ds, testutil.LayerParcels, 1)
	f.expand(t, "parcels")
	f.expand(t, "parcels_parcels:1")
	f.loadClasses(t, "parcels:1")

	rows := BuildRows(f.store.State(), f.set.Snapshot(), nil)
	rel, ok := findRow(rows, "parcels_parcels:1_1")
	if !ok {
		t.Fatal("expected relationship row")
	}
	if rel.Layer.ID != testutil.TableOwners {
		t.Errorf("unknown layers fall back to their id, got %+v", rel.Layer)
	}
}

func TestSelectionFor(t *testing.T) {
	f := newFixture(t)
	parcel := f.parcelWithOwners(t)
	_, oid, _ := model.ParseFeatureGisID(parcel)
	testutil.Select(f.set, f.ds, testutil.LayerParcels, oid)
	testutil.Select(f.set, f.ds, testutil.TableOwners, 2)

	featureID := "parcels_" + parcel
	relID := featureID + "_1"
	f.expand(t, "parcels")
	f.expand(t, "owners")
	f.expand(t, featureID)
	f.loadClasses(t, parcel)
	f.expand(t, relID)
	fs := f.loadObjects(t, parcel, testutil.RelParcelOwners)

	rows := f.rows()
	snap := f.set.Snapshot()
	st := f.store.State()

	tests := []struct {
		id       string
		kind     state.SelectionKind
		features int
	}{
		{"parcels", state.SelectionLayer, 1},
		{"owners", state.SelectionTable, 1},
		{featureID, state.SelectionFeature, 1},
		{"owners_owners:2", state.SelectionTableFeature, 1},
		{relID, state.SelectionRelationClass, fs.Len()},
		{relID + "_" + fs.Features[0].GisID(), state.SelectionRelationTableFeature, 1},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			r, ok := findRow(rows, tt.id)
			if !ok {
				t.Fatalf("row %s not visible", tt.id)
			}
			sel, ok := SelectionFor(r, snap, st)
			if !ok {
				t.Fatal("expected a selection")
			}
			if sel.Kind != tt.kind || sel.ID != tt.id || len(sel.Features) != tt.features {
				t.Errorf("got %s, want kind %s with %d features", sel, tt.kind, tt.features)
			}
		})
	}

	if _, ok := SelectionFor(Row{Kind: RowPending}, snap, st); ok {
		t.Error("message rows select nothing")
	}
}

func TestSelectionForRelationClassBeforeLoad(t *testing.T) {
	f := newFixture(t)
	row := Row{
		Kind:         RowRelationship,
		Node:         state.NodeDef{ID: "parcels_parcels:1_2", GisID: "2"},
		Layer:        model.Layer{ID: testutil.LayerBuildings, GeometryType: model.GeometryPolygon},
		Feature:      f.feature(t, "parcels:1"),
		Relationship: model.RelationshipDescriptor{ID: testutil.RelParcelBuildings},
	}
	sel, ok := SelectionFor(row, f.set.Snapshot(), f.store.State())
	if !ok || sel.Kind != state.SelectionRelationClass || len(sel.Features) != 0 {
		t.Fatalf("unexpected selection %s", sel)
	}
	if sel.GeometryType != model.GeometryPolygon {
		t.Errorf("geometry falls back to the related layer, got %q", sel.GeometryType)
	}
}

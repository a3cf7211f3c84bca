package ui

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/vanderheijden86/seltree/pkg/state"
	"github.com/vanderheijden86/seltree/pkg/testutil"
)

func TestTreeStateSaveLoad(t *testing.T) {
	f := newFixture(t)
	testutil.Select(f.set, f.ds, testutil.LayerParcels, 1, 2)
	f.expand(t, "parcels")
	f.expand(t, "parcels_parcels:2")

	path := filepath.Join(t.TempDir(), "nested", "tree-state.json")
	ts := TreeStateFromTree(f.store.State().Tree())
	if err := SaveTreeState(path, ts); err != nil {
		t.Fatalf("SaveTreeState: %v", err)
	}
	loaded, err := LoadTreeState(path)
	if err != nil {
		t.Fatalf("LoadTreeState: %v", err)
	}
	want := []state.NodeDef{
		{ID: "parcels", GisID: "parcels"},
		{ID: "parcels_parcels:2", GisID: "parcels:2", ParentID: "parcels"},
	}
	if loaded.Version != TreeStateVersion || !reflect.DeepEqual(loaded.Expanded, want) {
		t.Errorf("loaded %+v, want %+v", loaded, want)
	}
}

func TestLoadTreeStateMissingFile(t *testing.T) {
	ts, err := LoadTreeState(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("missing file is not an error: %v", err)
	}
	if len(ts.Expanded) != 0 {
		t.Errorf("expected empty state, got %+v", ts)
	}
}

func TestLoadTreeStateErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"corrupted", "{not json", "parsing tree state"},
		{"newer version", `{"version": 99, "expanded": []}`, "unsupported version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tree-state.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			ts, err := LoadTreeState(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
			if len(ts.Expanded) != 0 {
				t.Errorf("failed load must return an empty state, got %+v", ts)
			}
		})
	}
}

func TestRestoreTreeState(t *testing.T) {
	f := newFixture(t)
	testutil.Select(f.set, f.ds, testutil.LayerParcels, 1)

	ts := TreeState{Version: TreeStateVersion, Expanded: []state.NodeDef{
		{ID: "parcels", GisID: "parcels"},
		{ID: "parcels_parcels:1", GisID: "parcels:1", ParentID: "parcels"},
		// Layer no longer selected.
		{ID: "hydrants", GisID: "hydrants"},
		// Parent was not restored.
		{ID: "hydrants_hydrants:1", GisID: "hydrants:1", ParentID: "hydrants"},
		// Incomplete entry.
		{ID: "", GisID: "x"},
	}}

	if n := RestoreTreeState(f.store, f.set.Snapshot(), ts); n != 2 {
		t.Errorf("restored %d nodes, want 2", n)
	}
	tree := f.store.State().Tree()
	testutil.AssertExpanded(t, tree, "parcels", "parcels_parcels:1")
	if tree.Has("hydrants") || tree.Has("hydrants_hydrants:1") {
		t.Error("nodes outside the selection must not be restored")
	}

	// Replaying is idempotent: already expanded nodes are not toggled back.
	if n := RestoreTreeState(f.store, f.set.Snapshot(), ts); n != 0 {
		t.Errorf("second restore expanded %d nodes", n)
	}
	testutil.AssertExpanded(t, f.store.State().Tree(), "parcels", "parcels_parcels:1")
}

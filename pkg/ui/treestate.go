package ui

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/seltree/pkg/selection"
	"github.com/vanderheijden86/seltree/pkg/state"
)

// TreeState is the persisted expansion of the selection tree, saved when
// the tree is kept across selection changes.
//
// File format (JSON):
//
//	{
//	  "version": 1,
//	  "expanded": [
//	    {"id": "parcels", "gis_id": "parcels"},
//	    {"id": "parcels_parcels:1", "gis_id": "parcels:1", "parent_id": "parcels"}
//	  ]
//	}
//
// Nodes are listed parents first so they can be replayed in order.
type TreeState struct {
	Version  int             `json:"version"`
	Expanded []state.NodeDef `json:"expanded"`
}

// TreeStateVersion is the current schema version for tree persistence.
const TreeStateVersion = 1

// TreeStateFromTree captures the expanded nodes of t.
func TreeStateFromTree(t state.Tree) TreeState {
	return TreeState{Version: TreeStateVersion, Expanded: t.ExpandedDefs()}
}

// LoadTreeState reads a persisted tree state. A missing file is an empty
// state; a corrupted or newer file is an error.
func LoadTreeState(path string) (TreeState, error) {
	ts := TreeState{Version: TreeStateVersion}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ts, nil
		}
		return ts, fmt.Errorf("reading tree state: %w", err)
	}
	if err := json.Unmarshal(data, &ts); err != nil {
		return TreeState{Version: TreeStateVersion}, fmt.Errorf("parsing tree state %s: %w", path, err)
	}
	if ts.Version > TreeStateVersion {
		return TreeState{Version: TreeStateVersion}, fmt.Errorf("tree state %s has unsupported version %d", path, ts.Version)
	}
	return ts, nil
}

// SaveTreeState writes ts to path, creating the directory.
func SaveTreeState(path string, ts TreeState) error {
	data, err := json.MarshalIndent(ts, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling tree state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing tree state: %w", err)
	}
	return nil
}

// RestoreTreeState replays the persisted expansion into d. Root nodes are
// only restored for layers in snap, and children only under restored
// parents. It returns the number of nodes expanded.
func RestoreTreeState(d interface {
	State() state.State
	Dispatch(state.Action) (state.State, error)
}, snap selection.Snapshot, ts TreeState) int {
	n := 0
	for _, def := range ts.Expanded {
		if def.ID == "" || def.GisID == "" {
			continue
		}
		if def.ParentID == "" {
			if _, ok := snap.Group(def.GisID); !ok {
				continue
			}
		} else if !d.State().Tree().IsExpanded(def.ParentID) {
			continue
		}
		if d.State().Tree().IsExpanded(def.ID) {
			continue
		}
		if _, err := d.Dispatch(state.ToggleExpand{Node: def}); err == nil {
			n++
		}
	}
	return n
}

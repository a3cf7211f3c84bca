package testutil

import (
	"path/filepath"
	"sort"
	"strings"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/seltree/pkg/model"
	"github.com/vanderheijden86/seltree/pkg/selection"
	"github.com/vanderheijden86/seltree/pkg/state"
)

// AssertStatus checks the status of a cache entry.
func AssertStatus[T any](t *testing.T, c state.Cache[T], id string, want state.Status) {
	t.Helper()
	if got := c.Status(id); got != want {
		t.Errorf("expected %s to be %v, got %v", id, want, got)
	}
}

// AssertExpanded checks that every id is an expanded node of tree.
func AssertExpanded(t *testing.T, tree state.Tree, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if !tree.Has(id) {
			t.Errorf("expected node %s to exist", id)
			continue
		}
		if !tree.IsExpanded(id) {
			t.Errorf("expected node %s to be expanded", id)
		}
	}
}

// AssertCollapsed checks that every id is a collapsed node of tree.
func AssertCollapsed(t *testing.T, tree state.Tree, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if !tree.Has(id) {
			t.Errorf("expected node %s to exist", id)
			continue
		}
		if tree.IsExpanded(id) {
			t.Errorf("expected node %s to be collapsed", id)
		}
	}
}

// AssertFeatureIDs checks the gisIds of fs in order.
func AssertFeatureIDs(t *testing.T, fs model.FeatureSet, want ...string) {
	t.Helper()
	got := fs.GisIDs()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected features %v, got %v", want, got)
	}
}

// AssertJSONEqual compares two values after JSON encoding.
func AssertJSONEqual(t *testing.T, expected, actual any) {
	t.Helper()

	expectedJSON, err := json.Marshal(expected)
	if err != nil {
		t.Fatalf("failed to marshal expected: %v", err)
	}
	actualJSON, err := json.Marshal(actual)
	if err != nil {
		t.Fatalf("failed to marshal actual: %v", err)
	}
	if string(expectedJSON) != string(actualJSON) {
		t.Errorf("JSON mismatch:\nexpected: %s\nactual:   %s", expectedJSON, actualJSON)
	}
}

// WriteSelectionFile writes a selection document into dir and returns its
// path. Layers are written in id order.
func WriteSelectionFile(t *testing.T, dir string, layers map[string][]int64) string {
	t.Helper()
	ids := make([]string, 0, len(layers))
	for id := range layers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var doc selection.Document
	for _, id := range ids {
		doc.Layers = append(doc.Layers, selection.DocumentLayer{LayerID: id, ObjectIDs: layers[id]})
	}
	path := filepath.Join(dir, "selection.json")
	if err := selection.WriteDocument(path, doc); err != nil {
		t.Fatalf("failed to write selection: %v", err)
	}
	return path
}

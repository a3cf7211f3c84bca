// Package state holds the selection-results tree state machine: the
// expansion tree, the relationship-class and relation-object caches, the
// selected-features model and the support feature sets.
//
// State is an immutable value. All transitions go through Reduce; Store
// serializes them for concurrent callers.
package state

import "github.com/vanderheijden86/seltree/pkg/model"

// State is one snapshot of the selection tree. The zero value is usable and
// equivalent to New().
type State struct {
	tree            Tree
	relationClasses Cache[[]model.RelationshipDescriptor]
	relationObjects Cache[model.FeatureSet]
	selected        SelectedFeatures
	selectedVersion uint64
	support         map[string]model.FeatureSet
	supportVersion  uint64
	epoch           uint64
}

// New returns an empty state.
func New() State {
	return State{}
}

// Tree returns the expansion tree.
func (s State) Tree() Tree { return s.tree }

// RelationClasses returns the relationship-class cache keyed by feature gisId.
func (s State) RelationClasses() Cache[[]model.RelationshipDescriptor] { return s.relationClasses }

// RelationObjects returns the relation-object cache keyed by
// model.RelationObjectKey.
func (s State) RelationObjects() Cache[model.FeatureSet] { return s.relationObjects }

// Selected returns the selected-features model.
func (s State) Selected() SelectedFeatures { return s.selected }

// SelectedVersion increases whenever the selected-features model changes.
func (s State) SelectedVersion() uint64 { return s.selectedVersion }

// SupportFeatures returns the memoized geometry lookup for a table row.
func (s State) SupportFeatures(featureID string) (model.FeatureSet, bool) {
	fs, ok := s.support[featureID]
	return fs, ok
}

// SupportCount returns the number of memoized support feature sets.
func (s State) SupportCount() int { return len(s.support) }

// SupportVersion increases whenever a support feature set is stored.
func (s State) SupportVersion() uint64 { return s.supportVersion }

// Epoch increases with every effective transition. Two states with the same
// epoch taken from the same lineage are identical.
func (s State) Epoch() uint64 { return s.epoch }

// RelationObjectKeysFor returns the relation-object keys loaded or pending
// for featureID, derived from its loaded relationship classes.
func (s State) RelationObjectKeysFor(featureID string) []string {
	e, ok := s.relationClasses.Get(featureID)
	if !ok || e.Status != StatusLoaded {
		return nil
	}
	var keys []string
	for _, rel := range e.Result {
		key := model.RelationObjectKey(featureID, rel.ID)
		if s.relationObjects.Status(key) != StatusAbsent {
			keys = append(keys, key)
		}
	}
	return keys
}

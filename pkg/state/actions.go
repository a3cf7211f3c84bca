package state

import "github.com/vanderheijden86/seltree/pkg/model"

// Action is a state transition understood by Reduce. The set is closed.
type Action interface {
	action()
}

// SelectFeatures replaces the selected-features model.
type SelectFeatures struct {
	Selection SelectedFeatures
}

// ToggleExpand flips or lazily creates a tree node.
type ToggleExpand struct {
	Node NodeDef
}

// CloseMultipleObjects cascade-collapses the listed nodes.
type CloseMultipleObjects struct {
	IDs []string
}

// LoadedRelationClassesStart marks a feature's relationship classes pending.
type LoadedRelationClassesStart struct {
	FeatureID string
}

// LoadedRelationClassesSuccess stores a feature's relationship classes.
type LoadedRelationClassesSuccess struct {
	FeatureID     string
	Relationships []model.RelationshipDescriptor
}

// LoadedRelationClassesError records a failed relationship class fetch.
type LoadedRelationClassesError struct {
	FeatureID string
	Err       error
}

// LoadedEvaluatedRelationClassesSuccess stores a feature's relationship
// classes and, for every class with at least one related record, the
// related records themselves.
type LoadedEvaluatedRelationClassesSuccess struct {
	FeatureID     string
	Relationships []model.EvaluatedRelationship
}

// LoadedRelationObjectsStart marks the related records of one relationship
// class pending.
type LoadedRelationObjectsStart struct {
	FeatureID      string
	RelationshipID int64
}

// LoadedRelationObjectsSuccess stores related records.
type LoadedRelationObjectsSuccess struct {
	FeatureID      string
	RelationshipID int64
	Result         model.FeatureSet
}

// LoadedRelationObjectsError records a failed related-record fetch.
type LoadedRelationObjectsError struct {
	FeatureID      string
	RelationshipID int64
	Err            error
}

// DestroyRelationObjects drops relation-object entries so that the next
// expand refetches them. IDs are relation-object keys.
type DestroyRelationObjects struct {
	IDs []string
}

// SupportFeaturesLoaded memoizes the borrowed geometry of a table row.
type SupportFeaturesLoaded struct {
	FeatureID string
	Result    model.FeatureSet
}

// ResetState tears every part of the state down to its empty value.
type ResetState struct{}

func (SelectFeatures) action()                        {}
func (ToggleExpand) action()                          {}
func (CloseMultipleObjects) action()                  {}
func (LoadedRelationClassesStart) action()            {}
func (LoadedRelationClassesSuccess) action()          {}
func (LoadedRelationClassesError) action()            {}
func (LoadedEvaluatedRelationClassesSuccess) action() {}
func (LoadedRelationObjectsStart) action()            {}
func (LoadedRelationObjectsSuccess) action()          {}
func (LoadedRelationObjectsError) action()            {}
func (DestroyRelationObjects) action()                {}
func (SupportFeaturesLoaded) action()                 {}
func (ResetState) action()                            {}

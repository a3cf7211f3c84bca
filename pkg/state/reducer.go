package state

import (
	"fmt"

	"github.com/vanderheijden86/seltree/pkg/model"
)

// Reduce applies a to s and returns the next state.
//
// The returned state is always valid. A non-nil error never means failure:
// it explains why the action left the state unchanged (see the Err*
// sentinels) and callers may log it or ignore it.
func Reduce(s State, a Action) (State, error) {
	next, err := reduce(s, a)
	if changed(s, next) {
		next.epoch = s.epoch + 1
	}
	return next, err
}

func reduce(s State, a Action) (State, error) {
	switch a := a.(type) {
	case SelectFeatures:
		if s.selected.Equal(a.Selection) {
			return s, nil
		}
		s.selected = NewSelection(a.Selection.Kind, a.Selection.ID, a.Selection.Features, a.Selection.GeometryType)
		s.selectedVersion++
		return s, nil

	case ToggleExpand:
		tree, err := s.tree.ToggleExpand(a.Node)
		s.tree = tree
		return s, err

	case CloseMultipleObjects:
		s.tree, _ = s.tree.CloseMultiple(a.IDs)
		return s, nil

	case LoadedRelationClassesStart:
		c, err := s.relationClasses.Start(a.FeatureID)
		s.relationClasses = c
		return s, err

	case LoadedRelationClassesSuccess:
		c, err := s.relationClasses.Success(a.FeatureID, a.Relationships)
		s.relationClasses = c
		return s, err

	case LoadedRelationClassesError:
		c, err := s.relationClasses.Fail(a.FeatureID, a.Err)
		s.relationClasses = c
		return s, err

	case LoadedEvaluatedRelationClassesSuccess:
		return reduceEvaluated(s, a)

	case LoadedRelationObjectsStart:
		if s.relationClasses.Status(a.FeatureID) != StatusLoaded {
			return s, ErrRelationClassesNotLoaded
		}
		c, err := s.relationObjects.Start(model.RelationObjectKey(a.FeatureID, a.RelationshipID))
		s.relationObjects = c
		return s, err

	case LoadedRelationObjectsSuccess:
		c, err := s.relationObjects.Success(model.RelationObjectKey(a.FeatureID, a.RelationshipID), a.Result)
		s.relationObjects = c
		return s, err

	case LoadedRelationObjectsError:
		c, err := s.relationObjects.Fail(model.RelationObjectKey(a.FeatureID, a.RelationshipID), a.Err)
		s.relationObjects = c
		return s, err

	case DestroyRelationObjects:
		s.relationObjects, _ = s.relationObjects.Destroy(a.IDs...)
		return s, nil

	case SupportFeaturesLoaded:
		if _, ok := s.support[a.FeatureID]; ok {
			return s, ErrAlreadyLoaded
		}
		support := make(map[string]model.FeatureSet, len(s.support)+1)
		for k, v := range s.support {
			support[k] = v
		}
		support[a.FeatureID] = a.Result
		s.support = support
		s.supportVersion++
		return s, nil

	case ResetState:
		return reset(s), nil

	default:
		panic(fmt.Sprintf("state: unhandled action %T", a))
	}
}

// reduceEvaluated writes the class list and the non-empty relation-object
// entries in one transition. Each entry keeps its own Loaded guard; the
// action is reported stale only when none of its entries could be written.
func reduceEvaluated(s State, a LoadedEvaluatedRelationClassesSuccess) (State, error) {
	descriptors := make([]model.RelationshipDescriptor, len(a.Relationships))
	for i, rel := range a.Relationships {
		descriptors[i] = rel.Descriptor
	}
	wrote := false
	if c, err := s.relationClasses.Success(a.FeatureID, descriptors); err == nil {
		s.relationClasses = c
		wrote = true
	}
	for _, rel := range a.Relationships {
		if rel.Count < 1 {
			continue
		}
		key := model.RelationObjectKey(a.FeatureID, rel.Descriptor.ID)
		if c, err := s.relationObjects.Success(key, rel.Result); err == nil {
			s.relationObjects = c
			wrote = true
		}
	}
	if !wrote {
		return s, ErrStaleResponse
	}
	return s, nil
}

func reset(s State) State {
	if s.tree.Len() > 0 {
		s.tree = s.tree.Clear()
	}
	if s.relationClasses.Len() > 0 {
		s.relationClasses = s.relationClasses.Clear()
	}
	if s.relationObjects.Len() > 0 {
		s.relationObjects = s.relationObjects.Clear()
	}
	if !s.selected.IsEmpty() {
		s.selected = EmptySelection()
		s.selectedVersion++
	}
	if len(s.support) > 0 {
		s.support = nil
		s.supportVersion++
	}
	return s
}

func changed(a, b State) bool {
	return a.tree.version != b.tree.version ||
		a.relationClasses.version != b.relationClasses.version ||
		a.relationObjects.version != b.relationObjects.version ||
		a.selectedVersion != b.selectedVersion ||
		a.supportVersion != b.supportVersion
}

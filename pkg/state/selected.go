package state

import (
	"fmt"

	"github.com/vanderheijden86/seltree/pkg/model"
)

// SelectionKind tags the variant of a SelectedFeatures value.
type SelectionKind int

const (
	SelectionEmpty SelectionKind = iota
	SelectionFeature
	SelectionLayer
	SelectionTable
	SelectionTableFeature
	SelectionRelationFeature
	SelectionRelationTableFeature
	SelectionRelationClass
)

// AllSelectionKinds lists every variant, Empty first.
var AllSelectionKinds = []SelectionKind{
	SelectionEmpty,
	SelectionFeature,
	SelectionLayer,
	SelectionTable,
	SelectionTableFeature,
	SelectionRelationFeature,
	SelectionRelationTableFeature,
	SelectionRelationClass,
}

func (k SelectionKind) String() string {
	switch k {
	case SelectionEmpty:
		return "empty"
	case SelectionFeature:
		return "feature"
	case SelectionLayer:
		return "layer"
	case SelectionTable:
		return "table"
	case SelectionTableFeature:
		return "table_feature"
	case SelectionRelationFeature:
		return "relation_feature"
	case SelectionRelationTableFeature:
		return "relation_table_feature"
	case SelectionRelationClass:
		return "relation_class"
	default:
		return fmt.Sprintf("SelectionKind(%d)", int(k))
	}
}

// SelectedFeatures describes what is currently selected in the tree.
// The zero value is the Empty variant.
type SelectedFeatures struct {
	Kind         SelectionKind
	ID           string
	Features     []model.Feature
	GeometryType model.GeometryType
}

// EmptySelection returns the Empty variant.
func EmptySelection() SelectedFeatures {
	return SelectedFeatures{}
}

// NewSelection builds a variant. Empty ignores every other argument.
func NewSelection(kind SelectionKind, id string, features []model.Feature, geometry model.GeometryType) SelectedFeatures {
	if kind == SelectionEmpty {
		return EmptySelection()
	}
	return SelectedFeatures{
		Kind:         kind,
		ID:           id,
		Features:     append([]model.Feature(nil), features...),
		GeometryType: geometry,
	}
}

// IsEmpty reports whether s is the Empty variant.
func (s SelectedFeatures) IsEmpty() bool {
	return s.Kind == SelectionEmpty
}

// Equal compares kind, id, geometry type and feature identities.
func (s SelectedFeatures) Equal(o SelectedFeatures) bool {
	return s.Kind == o.Kind &&
		s.ID == o.ID &&
		s.GeometryType == o.GeometryType &&
		model.SameFeatures(s.Features, o.Features)
}

func (s SelectedFeatures) String() string {
	if s.IsEmpty() {
		return "empty"
	}
	return fmt.Sprintf("%s(%s, %d features)", s.Kind, s.ID, len(s.Features))
}

package model

import (
	"fmt"
	"strconv"
)

// RelationshipRole is the side of a relationship class a layer plays.
type RelationshipRole string

const (
	RoleOrigin      RelationshipRole = "origin"
	RoleDestination RelationshipRole = "destination"
)

// Cardinality of a relationship class.
type Cardinality string

const (
	CardinalityOneToOne   Cardinality = "one_to_one"
	CardinalityOneToMany  Cardinality = "one_to_many"
	CardinalityManyToMany Cardinality = "many_to_many"
)

// RelationshipDescriptor describes one relationship class reachable from a
// feature's layer, seen from that layer's side.
type RelationshipDescriptor struct {
	ID             int64            `json:"id"`
	Name           string           `json:"name"`
	Role           RelationshipRole `json:"role"`
	Cardinality    Cardinality      `json:"cardinality"`
	RelatedLayerID string           `json:"related_layer_id"`
	KeyField       string           `json:"key_field,omitempty"`
	RelatedKey     string           `json:"related_key,omitempty"`
}

// Key returns the relationship class id as used in composite ids.
func (r RelationshipDescriptor) Key() string {
	return strconv.FormatInt(r.ID, 10)
}

// EvaluatedRelationship is a relationship descriptor together with the
// related records already queried for it.
type EvaluatedRelationship struct {
	Descriptor RelationshipDescriptor `json:"descriptor"`
	Count      int                    `json:"count"`
	Result     FeatureSet             `json:"result"`
}

// RelationObjectKey returns the relation-object cache key for a feature and
// relationship class: "{featureGisId}_{relationshipClassId}".
func RelationObjectKey(featureGisID string, relationshipID int64) string {
	return featureGisID + "_" + strconv.FormatInt(relationshipID, 10)
}

// RelationshipClass links an origin layer to a destination layer: a
// destination record is related to an origin feature when its
// DestinationKey attribute equals the feature's OriginKey attribute.
type RelationshipClass struct {
	ID                 int64       `json:"id"`
	Name               string      `json:"name"`
	OriginLayerID      string      `json:"origin_layer_id"`
	DestinationLayerID string      `json:"destination_layer_id"`
	OriginKey          string      `json:"origin_key"`
	DestinationKey     string      `json:"destination_key"`
	Cardinality        Cardinality `json:"cardinality"`
}

// DescriptorFor returns the class as seen from layerID, or false when the
// layer takes no part in it.
func (rc RelationshipClass) DescriptorFor(layerID string) (RelationshipDescriptor, bool) {
	d := RelationshipDescriptor{ID: rc.ID, Name: rc.Name, Cardinality: rc.Cardinality}
	switch layerID {
	case rc.OriginLayerID:
		d.Role = RoleOrigin
		d.RelatedLayerID = rc.DestinationLayerID
		d.KeyField, d.RelatedKey = rc.OriginKey, rc.DestinationKey
	case rc.DestinationLayerID:
		d.Role = RoleDestination
		d.RelatedLayerID = rc.OriginLayerID
		d.KeyField, d.RelatedKey = rc.DestinationKey, rc.OriginKey
	default:
		return RelationshipDescriptor{}, false
	}
	return d, true
}

// Related reports whether other is related to f through d, f being a
// feature of the layer d was built for.
func (d RelationshipDescriptor) Related(f, other Feature) bool {
	if other.LayerID != d.RelatedLayerID {
		return false
	}
	a, ok := f.Attributes[d.KeyField]
	if !ok || a == nil {
		return false
	}
	b, ok := other.Attributes[d.RelatedKey]
	if !ok || b == nil {
		return false
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

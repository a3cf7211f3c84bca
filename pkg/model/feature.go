// Package model defines the GIS data types shared by the selection tree:
// layers, features, feature sets and relationship descriptors.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// LayerKind distinguishes spatial layers from non-spatial tables.
type LayerKind string

const (
	LayerKindFeature LayerKind = "layer"
	LayerKindTable   LayerKind = "table"
)

// GeometryType names the geometry carried by a layer's features.
type GeometryType string

const (
	GeometryNone       GeometryType = ""
	GeometryPoint      GeometryType = "point"
	GeometryMultipoint GeometryType = "multipoint"
	GeometryPolyline   GeometryType = "polyline"
	GeometryPolygon    GeometryType = "polygon"
)

// IsValid reports whether g is one of the known geometry types.
func (g GeometryType) IsValid() bool {
	switch g {
	case GeometryNone, GeometryPoint, GeometryMultipoint, GeometryPolyline, GeometryPolygon:
		return true
	}
	return false
}

// Layer describes a feature layer or table of the data source.
type Layer struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Kind         LayerKind    `json:"kind"`
	GeometryType GeometryType `json:"geometry_type,omitempty"`
	// DisplayField is the attribute used as the row label, if any.
	DisplayField string `json:"display_field,omitempty"`
}

// IsTable reports whether the layer is a non-spatial table.
func (l Layer) IsTable() bool {
	return l.Kind == LayerKindTable
}

// Geometry is a minimal geometry payload: a type plus its vertex list.
type Geometry struct {
	Type        GeometryType `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

// Feature is a single record of a layer or table.
type Feature struct {
	LayerID    string         `json:"layer_id"`
	ObjectID   int64          `json:"object_id"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Geometry   *Geometry      `json:"geometry,omitempty"`
}

// gisIDSeparator joins layer id and object id in a feature gisId. It must
// never be the composite-id separator "_".
const gisIDSeparator = ":"

// GisID returns the feature identifier, unique across layers.
func (f Feature) GisID() string {
	return FeatureGisID(f.LayerID, f.ObjectID)
}

// FeatureGisID builds the gisId of the feature objectID in layerID.
func FeatureGisID(layerID string, objectID int64) string {
	return layerID + gisIDSeparator + strconv.FormatInt(objectID, 10)
}

// ParseFeatureGisID splits a feature gisId into layer id and object id.
func ParseFeatureGisID(gisID string) (string, int64, error) {
	i := strings.LastIndex(gisID, gisIDSeparator)
	if i <= 0 || i == len(gisID)-1 {
		return "", 0, fmt.Errorf("invalid feature gisId %q", gisID)
	}
	oid, err := strconv.ParseInt(gisID[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid object id in gisId %q: %w", gisID, err)
	}
	return gisID[:i], oid, nil
}

// HasGeometry reports whether the feature carries at least one vertex.
func (f Feature) HasGeometry() bool {
	return f.Geometry != nil && len(f.Geometry.Coordinates) > 0
}

// Label returns a human-readable row label for the feature, preferring the
// given display field and falling back to the object id.
func (f Feature) Label(displayField string) string {
	if displayField != "" {
		if v, ok := f.Attributes[displayField]; ok && v != nil {
			if s := strings.TrimSpace(fmt.Sprint(v)); s != "" {
				return s
			}
		}
	}
	return "OBJECTID " + strconv.FormatInt(f.ObjectID, 10)
}

// FeatureSet is an ordered collection of features returned by a query.
type FeatureSet struct {
	Features     []Feature    `json:"features"`
	GeometryType GeometryType `json:"geometry_type,omitempty"`
}

// Len returns the number of features in the set.
func (fs FeatureSet) Len() int {
	return len(fs.Features)
}

// IsEmpty reports whether the set has no features.
func (fs FeatureSet) IsEmpty() bool {
	return len(fs.Features) == 0
}

// Contains reports whether a feature with the given gisId is in the set.
func (fs FeatureSet) Contains(gisID string) bool {
	return fs.IndexOf(gisID) >= 0
}

// IndexOf returns the position of the feature with the given gisId, or -1.
func (fs FeatureSet) IndexOf(gisID string) int {
	for i := range fs.Features {
		if fs.Features[i].GisID() == gisID {
			return i
		}
	}
	return -1
}

// GisIDs returns the gisIds of all features in order.
func (fs FeatureSet) GisIDs() []string {
	ids := make([]string, len(fs.Features))
	for i := range fs.Features {
		ids[i] = fs.Features[i].GisID()
	}
	return ids
}

// SameFeatures reports whether a and b hold the same features in the same
// order, compared by gisId.
func SameFeatures(a, b []Feature) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].GisID() != b[i].GisID() {
			return false
		}
	}
	return true
}

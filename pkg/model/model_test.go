package model

import "testing"

func TestFeatureGisIDRoundTrip(t *testing.T) {
	tests := []struct {
		layer string
		oid   int64
	}{
		{"parcels", 1},
		{"roads_primary", 42},
		{"ns:layer", 7},
	}
	for _, tt := range tests {
		gis := FeatureGisID(tt.layer, tt.oid)
		layer, oid, err := ParseFeatureGisID(gis)
		if err != nil {
			t.Fatalf("ParseFeatureGisID(%q): %v", gis, err)
		}
		if layer != tt.layer || oid != tt.oid {
			t.Errorf("expected %s/%d, got %s/%d", tt.layer, tt.oid, layer, oid)
		}
	}

	for _, bad := range []string{"", "parcels", ":1", "parcels:", "parcels:x"} {
		if _, _, err := ParseFeatureGisID(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestFeatureLabel(t *testing.T) {
	f := Feature{LayerID: "parcels", ObjectID: 3, Attributes: map[string]any{"ADDRESS": " 12 Elm St ", "EMPTY": ""}}
	if got := f.Label("ADDRESS"); got != "12 Elm St" {
		t.Errorf("expected trimmed display value, got %q", got)
	}
	for _, field := range []string{"", "EMPTY", "MISSING"} {
		if got := f.Label(field); got != "OBJECTID 3" {
			t.Errorf("Label(%q) = %q, want fallback", field, got)
		}
	}
}

func TestFeatureSetLookup(t *testing.T) {
	fs := FeatureSet{Features: []Feature{{LayerID: "a", ObjectID: 1}, {LayerID: "b", ObjectID: 1}}}
	if fs.IndexOf("b:1") != 1 || fs.Contains("a:2") {
		t.Error("lookup by gisId failed")
	}
	if !SameFeatures(fs.Features, []Feature{{LayerID: "a", ObjectID: 1}, {LayerID: "b", ObjectID: 1}}) {
		t.Error("expected same features")
	}
	if SameFeatures(fs.Features, []Feature{{LayerID: "b", ObjectID: 1}, {LayerID: "a", ObjectID: 1}}) {
		t.Error("order matters")
	}
}

func TestRelationshipDescriptorSides(t *testing.T) {
	rc := RelationshipClass{ID: 4, OriginLayerID: "parcels", DestinationLayerID: "owners", OriginKey: "PID", DestinationKey: "PARCEL"}

	origin, ok := rc.DescriptorFor("parcels")
	if !ok || origin.Role != RoleOrigin || origin.RelatedLayerID != "owners" || origin.KeyField != "PID" {
		t.Errorf("unexpected origin descriptor %+v", origin)
	}
	dest, ok := rc.DescriptorFor("owners")
	if !ok || dest.Role != RoleDestination || dest.RelatedLayerID != "parcels" || dest.KeyField != "PARCEL" {
		t.Errorf("unexpected destination descriptor %+v", dest)
	}
	if _, ok := rc.DescriptorFor("roads"); ok {
		t.Error("unrelated layer must not get a descriptor")
	}

	parcel := Feature{LayerID: "parcels", ObjectID: 1, Attributes: map[string]any{"PID": 10}}
	owner := Feature{LayerID: "owners", ObjectID: 5, Attributes: map[string]any{"PARCEL": float64(10)}}
	if !origin.Related(parcel, owner) || !dest.Related(owner, parcel) {
		t.Error("expected features related in both directions")
	}
	owner.Attributes["PARCEL"] = nil
	if origin.Related(parcel, owner) {
		t.Error("nil keys never relate")
	}
	if RelationObjectKey("parcels:1", 4) != "parcels:1_4" {
		t.Errorf("unexpected key %q", RelationObjectKey("parcels:1", 4))
	}
}

func TestDatasetRelatedFeatures(t *testing.T) {
	ds := Dataset{
		Layers: []Layer{{ID: "parcels", GeometryType: GeometryPolygon}, {ID: "owners", Kind: LayerKindTable}},
		Features: []Feature{
			{LayerID: "parcels", ObjectID: 1, Attributes: map[string]any{"PID": "A"}},
			{LayerID: "owners", ObjectID: 1, Attributes: map[string]any{"PID": "A"}},
			{LayerID: "owners", ObjectID: 2, Attributes: map[string]any{"PID": "B"}},
			{LayerID: "owners", ObjectID: 3, Attributes: map[string]any{"PID": "A"}},
		},
		Relationships: []RelationshipClass{{ID: 1, OriginLayerID: "parcels", DestinationLayerID: "owners", OriginKey: "PID", DestinationKey: "PID"}},
	}
	p, _ := ds.Feature("parcels:1")
	descs := ds.RelationshipsOf("parcels")
	if len(descs) != 1 {
		t.Fatalf("expected 1 descriptor, got %d", len(descs))
	}
	got := ds.RelatedFeatures(p, descs[0])
	if ids := got.GisIDs(); len(ids) != 2 || ids[0] != "owners:1" || ids[1] != "owners:3" {
		t.Errorf("unexpected related %v", ids)
	}
	if got.GeometryType != GeometryNone {
		t.Errorf("table results carry no geometry type, got %q", got.GeometryType)
	}
}

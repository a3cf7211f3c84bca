package model

// Dataset is a complete set of layers, features and relationship classes,
// used to seed a data source.
type Dataset struct {
	Layers        []Layer             `json:"layers"`
	Features      []Feature           `json:"features"`
	Relationships []RelationshipClass `json:"relationships"`
}

// Layer returns the layer with the given id.
func (d Dataset) Layer(id string) (Layer, bool) {
	for _, l := range d.Layers {
		if l.ID == id {
			return l, true
		}
	}
	return Layer{}, false
}

// FeaturesOf returns the features of layerID in object-id order of
// insertion.
func (d Dataset) FeaturesOf(layerID string) []Feature {
	var out []Feature
	for _, f := range d.Features {
		if f.LayerID == layerID {
			out = append(out, f)
		}
	}
	return out
}

// Feature returns the feature with the given gisId.
func (d Dataset) Feature(gisID string) (Feature, bool) {
	for _, f := range d.Features {
		if f.GisID() == gisID {
			return f, true
		}
	}
	return Feature{}, false
}

// RelationshipsOf returns the descriptors of every class layerID takes part
// in, ordered by class id as stored.
func (d Dataset) RelationshipsOf(layerID string) []RelationshipDescriptor {
	var out []RelationshipDescriptor
	for _, rc := range d.Relationships {
		if desc, ok := rc.DescriptorFor(layerID); ok {
			out = append(out, desc)
		}
	}
	return out
}

// RelatedFeatures returns the features related to f through d.
func (d Dataset) RelatedFeatures(f Feature, desc RelationshipDescriptor) FeatureSet {
	fs := FeatureSet{}
	if l, ok := d.Layer(desc.RelatedLayerID); ok {
		fs.GeometryType = l.GeometryType
	}
	for _, other := range d.Features {
		if desc.Related(f, other) {
			fs.Features = append(fs.Features, other)
		}
	}
	return fs
}

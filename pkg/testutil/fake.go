package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vanderheijden86/seltree/pkg/model"
	"github.com/vanderheijden86/seltree/pkg/selection"
)

// FakeSource is an in-memory data source over a Dataset. It implements the
// relation fetchers and selection.Resolver, counts calls, and can hold calls
// at a gate or fail them.
type FakeSource struct {
	ds model.Dataset

	mu    sync.Mutex
	gate  chan struct{}
	fails map[string]error // feature gisId or op -> error

	calls atomic.Int64
}

// NewFakeSource returns a FakeSource serving ds.
func NewFakeSource(ds model.Dataset) *FakeSource {
	return &FakeSource{ds: ds, fails: make(map[string]error)}
}

// Dataset returns the served dataset.
func (f *FakeSource) Dataset() model.Dataset { return f.ds }

// Calls returns the number of fetcher calls made so far.
func (f *FakeSource) Calls() int64 { return f.calls.Load() }

// Hold makes every following call block until Release or until its context
// is cancelled.
func (f *FakeSource) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate == nil {
		f.gate = make(chan struct{})
	}
}

// Release unblocks held calls.
func (f *FakeSource) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// FailOn makes calls for key fail with err. Key is a feature gisId or one of
// "relationships", "relation_objects", "support".
func (f *FakeSource) FailOn(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fails[key] = err
}

func (f *FakeSource) enter(ctx context.Context, op, gisID string) error {
	f.calls.Add(1)
	f.mu.Lock()
	gate := f.gate
	err := f.fails[op]
	if err == nil {
		err = f.fails[gisID]
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

// ReachableRelationships returns the classes the feature's layer takes part in.
func (f *FakeSource) ReachableRelationships(ctx context.Context, layer model.Layer, feature model.Feature) ([]model.RelationshipDescriptor, error) {
	if err := f.enter(ctx, "relationships", feature.GisID()); err != nil {
		return nil, err
	}
	return f.ds.RelationshipsOf(layer.ID), nil
}

// EvaluatedRelationships returns the classes with their related records.
func (f *FakeSource) EvaluatedRelationships(ctx context.Context, layer model.Layer, feature model.Feature) ([]model.EvaluatedRelationship, error) {
	if err := f.enter(ctx, "relationships", feature.GisID()); err != nil {
		return nil, err
	}
	var out []model.EvaluatedRelationship
	for _, d := range f.ds.RelationshipsOf(layer.ID) {
		fs := f.ds.RelatedFeatures(feature, d)
		out = append(out, model.EvaluatedRelationship{Descriptor: d, Count: fs.Len(), Result: fs})
	}
	return out, nil
}

// RelationObjects returns the records related through relationshipID.
func (f *FakeSource) RelationObjects(ctx context.Context, feature model.Feature, relationshipID int64, layer model.Layer) (model.FeatureSet, error) {
	if err := f.enter(ctx, "relation_objects", feature.GisID()); err != nil {
		return model.FeatureSet{}, err
	}
	for _, d := range f.ds.RelationshipsOf(layer.ID) {
		if d.ID == relationshipID {
			return f.ds.RelatedFeatures(feature, d), nil
		}
	}
	return model.FeatureSet{}, fmt.Errorf("relationship %d not found on layer %s", relationshipID, layer.ID)
}

// SupportFeatures returns the spatial features directly related to a table
// row.
func (f *FakeSource) SupportFeatures(ctx context.Context, layer model.Layer, feature model.Feature) (model.FeatureSet, error) {
	if err := f.enter(ctx, "support", feature.GisID()); err != nil {
		return model.FeatureSet{}, err
	}
	var out model.FeatureSet
	for _, d := range f.ds.RelationshipsOf(layer.ID) {
		related, ok := f.ds.Layer(d.RelatedLayerID)
		if !ok || related.IsTable() {
			continue
		}
		fs := f.ds.RelatedFeatures(feature, d)
		if out.GeometryType == model.GeometryNone {
			out.GeometryType = fs.GeometryType
		}
		out.Features = append(out.Features, fs.Features...)
	}
	return out, nil
}

// Layer implements selection.Resolver.
func (f *FakeSource) Layer(_ context.Context, layerID string) (model.Layer, error) {
	l, ok := f.ds.Layer(layerID)
	if !ok {
		return model.Layer{}, fmt.Errorf("layer %q: %w", layerID, selection.ErrUnknownLayer)
	}
	return l, nil
}

// Features implements selection.Resolver.
func (f *FakeSource) Features(_ context.Context, layerID string, objectIDs []int64) (model.FeatureSet, error) {
	l, _ := f.ds.Layer(layerID)
	fs := model.FeatureSet{GeometryType: l.GeometryType}
	for _, oid := range objectIDs {
		if feat, ok := f.ds.Feature(model.FeatureGisID(layerID, oid)); ok {
			fs.Features = append(fs.Features, feat)
		}
	}
	return fs, nil
}

// Select adds the given features of layerID to s.
func Select(s *selection.Set, ds model.Dataset, layerID string, objectIDs ...int64) {
	l, _ := ds.Layer(layerID)
	var features []model.Feature
	for _, oid := range objectIDs {
		if feat, ok := ds.Feature(model.FeatureGisID(layerID, oid)); ok {
			features = append(features, feat)
		}
	}
	s.Add(l, features...)
}

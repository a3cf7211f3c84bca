// Package relations plans and runs the background fetches that populate the
// relationship-class, relation-object and support caches.
//
// A fetch is planned as a Task: Start is the Pending action applied before
// the I/O, Run performs the I/O and returns the completion action. Every
// task belongs to a scope keyed by the root feature of its tree branch;
// invalidating the scope makes late completions drop instead of landing in
// the state.
package relations

import (
	"context"

	"github.com/vanderheijden86/seltree/pkg/model"
)

// RelationMetadataFetcher discovers the relationship classes of a feature.
type RelationMetadataFetcher interface {
	// ReachableRelationships lists the relationship classes whose related
	// layer is reachable from layer.
	ReachableRelationships(ctx context.Context, layer model.Layer, feature model.Feature) ([]model.RelationshipDescriptor, error)
	// EvaluatedRelationships does the same and also runs each class,
	// returning per-class counts and records.
	EvaluatedRelationships(ctx context.Context, layer model.Layer, feature model.Feature) ([]model.EvaluatedRelationship, error)
}

// RelationRecordFetcher fetches the records related to a feature through
// one relationship class.
type RelationRecordFetcher interface {
	RelationObjects(ctx context.Context, feature model.Feature, relationshipID int64, layer model.Layer) (model.FeatureSet, error)
}

// GeometrySupportFetcher finds geometry for a table row by following its
// relationships to spatial layers.
type GeometrySupportFetcher interface {
	SupportFeatures(ctx context.Context, layer model.Layer, feature model.Feature) (model.FeatureSet, error)
}

// Fetcher is a data source implementing every fetcher.
type Fetcher interface {
	RelationMetadataFetcher
	RelationRecordFetcher
	GeometrySupportFetcher
}

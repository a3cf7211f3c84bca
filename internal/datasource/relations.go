package datasource

import (
	"context"
	"fmt"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/vanderheijden86/seltree/pkg/model"
)

// evaluateConcurrency bounds the per-class queries of EvaluatedRelationships.
const evaluateConcurrency = 4

// layerGraph connects enabled layers through their relationship classes.
type layerGraph struct {
	g       *simple.UndirectedGraph
	index   map[string]int64
	ids     []string // node id -> layer id, in layer order
	spatial map[string]bool
	classes map[int64]model.RelationshipClass
}

func (lg *layerGraph) enabled(layerID string) bool {
	_, ok := lg.index[layerID]
	return ok
}

// distances returns the hop counts from layerID to every enabled layer.
// Unreachable layers get +Inf.
func (lg *layerGraph) distances(layerID string) (path.Shortest, bool) {
	id, ok := lg.index[layerID]
	if !ok {
		return path.Shortest{}, false
	}
	return path.DijkstraFrom(lg.g.Node(id), lg.g), true
}

// nearestSpatial returns the chain of layers from layerID to the closest
// enabled spatial layer, both ends included. Ties go to the layer listed
// first. It returns nil when no spatial layer is reachable.
func (lg *layerGraph) nearestSpatial(layerID string) []string {
	sp, ok := lg.distances(layerID)
	if !ok {
		return nil
	}
	best, bestHops := int64(-1), math.Inf(1)
	for id, lid := range lg.ids {
		if lid == layerID || !lg.spatial[lid] {
			continue
		}
		if hops := sp.WeightTo(int64(id)); hops < bestHops {
			best, bestHops = int64(id), hops
		}
	}
	if best < 0 {
		return nil
	}
	nodes, _ := sp.To(best)
	chain := make([]string, len(nodes))
	for i, n := range nodes {
		chain[i] = lg.ids[n.ID()]
	}
	return chain
}

// hop returns the classes linking from to to, seen from from.
func (lg *layerGraph) hop(from, to string) []model.RelationshipDescriptor {
	var out []model.RelationshipDescriptor
	for _, id := range sortedClassIDs(lg.classes) {
		if d, ok := lg.classes[id].DescriptorFor(from); ok && d.RelatedLayerID == to {
			out = append(out, d)
		}
	}
	return out
}

// layerGraph returns the cached graph, building it on first use.
func (s *Store) layerGraph(ctx context.Context) (*layerGraph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graph != nil {
		return s.graph, nil
	}

	lg := &layerGraph{
		g:       simple.NewUndirectedGraph(),
		index:   make(map[string]int64),
		spatial: make(map[string]bool),
		classes: make(map[int64]model.RelationshipClass),
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, kind FROM layers WHERE enabled = 1 ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("query enabled layers: %w", err)
	}
	var next int64
	for rows.Next() {
		var id, kind string
		if err := rows.Scan(&id, &kind); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan layer id: %w", err)
		}
		lg.index[id] = next
		lg.ids = append(lg.ids, id)
		lg.spatial[id] = model.LayerKind(kind) != model.LayerKindTable
		lg.g.AddNode(simple.Node(next))
		next++
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating layers: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT id, name, origin_layer_id, destination_layer_id, origin_key, destination_key, cardinality
		FROM relationship_classes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query relationship classes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rc model.RelationshipClass
		var card string
		if err := rows.Scan(&rc.ID, &rc.Name, &rc.OriginLayerID, &rc.DestinationLayerID,
			&rc.OriginKey, &rc.DestinationKey, &card); err != nil {
			return nil, fmt.Errorf("scan relationship class: %w", err)
		}
		rc.Cardinality = model.Cardinality(card)
		lg.classes[rc.ID] = rc

		a, okA := lg.index[rc.OriginLayerID]
		b, okB := lg.index[rc.DestinationLayerID]
		if okA && okB && a != b {
			lg.g.SetEdge(lg.g.NewEdge(simple.Node(a), simple.Node(b)))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating relationship classes: %w", err)
	}

	s.graph = lg
	return lg, nil
}

// ReachableLayers returns the enabled layers connected to layerID through
// any chain of relationship classes, nearest first, layerID excluded.
func (s *Store) ReachableLayers(ctx context.Context, layerID string) ([]string, error) {
	lg, err := s.layerGraph(ctx)
	if err != nil {
		return nil, err
	}
	sp, ok := lg.distances(layerID)
	if !ok {
		return nil, nil
	}
	var out []string
	for id, lid := range lg.ids {
		if lid != layerID && !math.IsInf(sp.WeightTo(int64(id)), 1) {
			out = append(out, lid)
		}
	}
	slices.SortStableFunc(out, func(a, b string) int {
		return int(sp.WeightTo(lg.index[a]) - sp.WeightTo(lg.index[b]))
	})
	return out, nil
}

// ReachableRelationships returns the relationship classes of layer whose
// related layer is enabled, seen from layer's side, ordered by class id.
func (s *Store) ReachableRelationships(ctx context.Context, layer model.Layer, _ model.Feature) ([]model.RelationshipDescriptor, error) {
	lg, err := s.layerGraph(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.RelationshipDescriptor
	for _, id := range sortedClassIDs(lg.classes) {
		d, ok := lg.classes[id].DescriptorFor(layer.ID)
		if !ok || !lg.enabled(d.RelatedLayerID) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

// EvaluatedRelationships returns the reachable classes of layer together
// with the records each one relates to feature. The classes are queried
// concurrently.
func (s *Store) EvaluatedRelationships(ctx context.Context, layer model.Layer, feature model.Feature) ([]model.EvaluatedRelationship, error) {
	descs, err := s.ReachableRelationships(ctx, layer, feature)
	if err != nil {
		return nil, err
	}
	feature, err = s.withAttributes(ctx, feature)
	if err != nil {
		return nil, err
	}

	out := make([]model.EvaluatedRelationship, len(descs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(evaluateConcurrency)
	for i, d := range descs {
		g.Go(func() error {
			fs, err := s.related(gctx, feature, d)
			if err != nil {
				return fmt.Errorf("evaluate relationship %d: %w", d.ID, err)
			}
			out[i] = model.EvaluatedRelationship{Descriptor: d, Count: fs.Len(), Result: fs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// RelationObjects returns the records related to feature through the class
// relationshipID, feature being a member of layer.
func (s *Store) RelationObjects(ctx context.Context, feature model.Feature, relationshipID int64, layer model.Layer) (model.FeatureSet, error) {
	lg, err := s.layerGraph(ctx)
	if err != nil {
		return model.FeatureSet{}, err
	}
	rc, ok := lg.classes[relationshipID]
	if !ok {
		return model.FeatureSet{}, fmt.Errorf("relationship class %d not found", relationshipID)
	}
	d, ok := rc.DescriptorFor(layer.ID)
	if !ok {
		return model.FeatureSet{}, fmt.Errorf("relationship class %d does not involve layer %s", relationshipID, layer.ID)
	}
	feature, err = s.withAttributes(ctx, feature)
	if err != nil {
		return model.FeatureSet{}, err
	}
	return s.related(ctx, feature, d)
}

// SupportFeatures returns the spatial features related to a table row,
// borrowed as its geometry. Directly related spatial layers are used when
// there are any; otherwise the relationship chain to the nearest spatial
// layer is followed.
func (s *Store) SupportFeatures(ctx context.Context, layer model.Layer, feature model.Feature) (model.FeatureSet, error) {
	lg, err := s.layerGraph(ctx)
	if err != nil {
		return model.FeatureSet{}, err
	}
	feature, err = s.withAttributes(ctx, feature)
	if err != nil {
		return model.FeatureSet{}, err
	}

	var out model.FeatureSet
	direct := false
	for _, id := range sortedClassIDs(lg.classes) {
		d, ok := lg.classes[id].DescriptorFor(layer.ID)
		if !ok || !lg.spatial[d.RelatedLayerID] {
			continue
		}
		direct = true
		fs, err := s.related(ctx, feature, d)
		if err != nil {
			return out, err
		}
		if out.GeometryType == model.GeometryNone {
			out.GeometryType = fs.GeometryType
		}
		out.Features = append(out.Features, fs.Features...)
	}
	if direct {
		return out, nil
	}
	return s.chainedSupport(ctx, lg, layer.ID, feature)
}

// chainedSupport walks the chain from layerID to the nearest spatial layer
// one hop at a time, carrying the distinct related records forward.
func (s *Store) chainedSupport(ctx context.Context, lg *layerGraph, layerID string, feature model.Feature) (model.FeatureSet, error) {
	chain := lg.nearestSpatial(layerID)
	if len(chain) < 2 {
		return model.FeatureSet{}, nil
	}
	frontier := []model.Feature{feature}
	var geom model.GeometryType
	for i := 1; i < len(chain); i++ {
		var next []model.Feature
		seen := make(map[string]bool)
		for _, d := range lg.hop(chain[i-1], chain[i]) {
			for _, f := range frontier {
				fs, err := s.related(ctx, f, d)
				if err != nil {
					return model.FeatureSet{}, err
				}
				geom = fs.GeometryType
				for _, r := range fs.Features {
					if !seen[r.GisID()] {
						seen[r.GisID()] = true
						next = append(next, r)
					}
				}
			}
		}
		if len(next) == 0 {
			return model.FeatureSet{}, nil
		}
		frontier = next
	}
	return model.FeatureSet{GeometryType: geom, Features: frontier}, nil
}

// related queries the features of d's related layer whose related key
// matches feature's key attribute.
func (s *Store) related(ctx context.Context, feature model.Feature, d model.RelationshipDescriptor) (model.FeatureSet, error) {
	l, err := s.Layer(ctx, d.RelatedLayerID)
	if err != nil {
		return model.FeatureSet{}, err
	}
	fs := model.FeatureSet{GeometryType: l.GeometryType}
	key, ok := feature.Attributes[d.KeyField]
	if !ok || key == nil {
		return fs, nil
	}
	features, err := s.queryFeatures(ctx, `
		SELECT `+featureColumns+` FROM features
		WHERE layer_id = ? AND CAST(json_extract(attributes, ?) AS TEXT) = ?
		ORDER BY object_id`,
		d.RelatedLayerID, jsonPath(d.RelatedKey), keyText(key))
	if err != nil {
		return fs, err
	}
	fs.Features = features
	return fs, nil
}

// withAttributes loads the stored row when f arrives without attributes.
func (s *Store) withAttributes(ctx context.Context, f model.Feature) (model.Feature, error) {
	if len(f.Attributes) > 0 {
		return f, nil
	}
	return s.Feature(ctx, f.GisID())
}

func jsonPath(field string) string {
	return `$."` + field + `"`
}

func sortedClassIDs(classes map[int64]model.RelationshipClass) []int64 {
	ids := make([]int64, 0, len(classes))
	for id := range classes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

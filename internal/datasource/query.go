package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/seltree/pkg/model"
	"github.com/vanderheijden86/seltree/pkg/selection"
)

var errUnknownLayer = selection.ErrUnknownLayer

// ErrFeatureNotFound is returned for a gisId with no row.
var ErrFeatureNotFound = errors.New("feature not found")

const layerColumns = `id, title, kind, geometry_type, display_field`

func scanLayer(row interface{ Scan(...any) error }) (model.Layer, error) {
	var l model.Layer
	var kind, geom string
	if err := row.Scan(&l.ID, &l.Title, &kind, &geom, &l.DisplayField); err != nil {
		return l, err
	}
	l.Kind = model.LayerKind(kind)
	l.GeometryType = model.GeometryType(geom)
	return l, nil
}

// Layers returns every layer and table in insertion order.
func (s *Store) Layers(ctx context.Context) ([]model.Layer, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+layerColumns+` FROM layers ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("query layers: %w", err)
	}
	defer rows.Close()

	var layers []model.Layer
	for rows.Next() {
		l, err := scanLayer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan layer: %w", err)
		}
		layers = append(layers, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating layers: %w", err)
	}
	return layers, nil
}

// Layer returns one layer. Unknown ids wrap selection.ErrUnknownLayer.
func (s *Store) Layer(ctx context.Context, layerID string) (model.Layer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+layerColumns+` FROM layers WHERE id = ?`, layerID)
	l, err := scanLayer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return l, fmt.Errorf("layer %q: %w", layerID, errUnknownLayer)
	}
	if err != nil {
		return l, fmt.Errorf("query layer %s: %w", layerID, err)
	}
	return l, nil
}

const featureColumns = `layer_id, object_id, attributes, geometry`

func scanFeature(row interface{ Scan(...any) error }) (model.Feature, error) {
	var (
		f     model.Feature
		attrs string
		geom  sql.NullString
	)
	if err := row.Scan(&f.LayerID, &f.ObjectID, &attrs, &geom); err != nil {
		return f, err
	}
	if attrs != "" {
		if err := json.Unmarshal([]byte(attrs), &f.Attributes); err != nil {
			return f, fmt.Errorf("decode attributes of %s: %w", f.GisID(), err)
		}
	}
	if geom.Valid && geom.String != "" && geom.String != "null" {
		var g model.Geometry
		if err := json.Unmarshal([]byte(geom.String), &g); err != nil {
			return f, fmt.Errorf("decode geometry of %s: %w", f.GisID(), err)
		}
		f.Geometry = &g
	}
	return f, nil
}

func (s *Store) queryFeatures(ctx context.Context, query string, args ...any) ([]model.Feature, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query features: %w", err)
	}
	defer rows.Close()

	var features []model.Feature
	for rows.Next() {
		f, err := scanFeature(rows)
		if err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating features: %w", err)
	}
	return features, nil
}

// Features returns the features of layerID with the given object ids, in
// the order of objectIDs. Missing ids are skipped.
func (s *Store) Features(ctx context.Context, layerID string, objectIDs []int64) (model.FeatureSet, error) {
	l, err := s.Layer(ctx, layerID)
	if err != nil {
		return model.FeatureSet{}, err
	}
	fs := model.FeatureSet{GeometryType: l.GeometryType}
	if len(objectIDs) == 0 {
		return fs, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(objectIDs)), ",")
	args := make([]any, 0, len(objectIDs)+1)
	args = append(args, layerID)
	for _, oid := range objectIDs {
		args = append(args, oid)
	}
	found, err := s.queryFeatures(ctx,
		`SELECT `+featureColumns+` FROM features WHERE layer_id = ? AND object_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fs, err
	}
	byOID := make(map[int64]model.Feature, len(found))
	for _, f := range found {
		byOID[f.ObjectID] = f
	}
	for _, oid := range objectIDs {
		if f, ok := byOID[oid]; ok {
			fs.Features = append(fs.Features, f)
			delete(byOID, oid)
		}
	}
	return fs, nil
}

// LayerFeatures returns every feature of layerID ordered by object id.
func (s *Store) LayerFeatures(ctx context.Context, layerID string) (model.FeatureSet, error) {
	l, err := s.Layer(ctx, layerID)
	if err != nil {
		return model.FeatureSet{}, err
	}
	features, err := s.queryFeatures(ctx,
		`SELECT `+featureColumns+` FROM features WHERE layer_id = ? ORDER BY object_id`, layerID)
	if err != nil {
		return model.FeatureSet{}, err
	}
	return model.FeatureSet{Features: features, GeometryType: l.GeometryType}, nil
}

// Feature returns the feature with the given gisId.
func (s *Store) Feature(ctx context.Context, gisID string) (model.Feature, error) {
	layerID, oid, err := model.ParseFeatureGisID(gisID)
	if err != nil {
		return model.Feature{}, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+featureColumns+` FROM features WHERE layer_id = ? AND object_id = ?`, layerID, oid)
	f, err := scanFeature(row)
	if errors.Is(err, sql.ErrNoRows) {
		return f, fmt.Errorf("%s: %w", gisID, ErrFeatureNotFound)
	}
	return f, err
}

// keyText renders an attribute value the way SQLite casts it to TEXT.
func keyText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		if x {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(x)
	}
}

package datasource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/seltree/pkg/model"
)

// ErrReadOnly is returned by writes on a read-only store.
var ErrReadOnly = errors.New("datasource is read-only")

// Insert writes every layer, feature and relationship class of ds in one
// transaction. Existing rows with the same keys are updated.
func (s *Store) Insert(ctx context.Context, ds model.Dataset) error {
	if s.readOnly {
		return ErrReadOnly
	}
	defer s.invalidate()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertLayers(ctx, tx, ds.Layers); err != nil {
		return err
	}
	if err := insertFeatures(ctx, tx, ds.Features); err != nil {
		return err
	}
	if err := insertRelationships(ctx, tx, ds.Relationships); err != nil {
		return err
	}
	return tx.Commit()
}

func insertLayers(ctx context.Context, tx *sql.Tx, layers []model.Layer) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO layers (id, title, kind, geometry_type, display_field, position)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			kind = excluded.kind,
			geometry_type = excluded.geometry_type,
			display_field = excluded.display_field,
			position = excluded.position
	`)
	if err != nil {
		return fmt.Errorf("prepare layers: %w", err)
	}
	defer stmt.Close()

	for i, l := range layers {
		if l.ID == "" {
			return fmt.Errorf("layer %d has no id", i)
		}
		if !l.GeometryType.IsValid() {
			return fmt.Errorf("layer %s: invalid geometry type %q", l.ID, l.GeometryType)
		}
		kind := l.Kind
		if kind == "" {
			kind = model.LayerKindFeature
		}
		if _, err := stmt.ExecContext(ctx, l.ID, l.Title, string(kind), string(l.GeometryType), l.DisplayField, i); err != nil {
			return fmt.Errorf("insert layer %s: %w", l.ID, err)
		}
	}
	return nil
}

func insertFeatures(ctx context.Context, tx *sql.Tx, features []model.Feature) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO features (layer_id, object_id, attributes, geometry)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(layer_id, object_id) DO UPDATE SET
			attributes = excluded.attributes,
			geometry = excluded.geometry
	`)
	if err != nil {
		return fmt.Errorf("prepare features: %w", err)
	}
	defer stmt.Close()

	for _, f := range features {
		attrs := f.Attributes
		if attrs == nil {
			attrs = map[string]any{}
		}
		attrJSON, err := json.Marshal(attrs)
		if err != nil {
			return fmt.Errorf("encode attributes of %s: %w", f.GisID(), err)
		}
		var geom sql.NullString
		if f.Geometry != nil {
			b, err := json.Marshal(f.Geometry)
			if err != nil {
				return fmt.Errorf("encode geometry of %s: %w", f.GisID(), err)
			}
			geom = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, f.LayerID, f.ObjectID, string(attrJSON), geom); err != nil {
			return fmt.Errorf("insert feature %s: %w", f.GisID(), err)
		}
	}
	return nil
}

func insertRelationships(ctx context.Context, tx *sql.Tx, rels []model.RelationshipClass) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relationship_classes
			(id, name, origin_layer_id, destination_layer_id, origin_key, destination_key, cardinality)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			origin_layer_id = excluded.origin_layer_id,
			destination_layer_id = excluded.destination_layer_id,
			origin_key = excluded.origin_key,
			destination_key = excluded.destination_key,
			cardinality = excluded.cardinality
	`)
	if err != nil {
		return fmt.Errorf("prepare relationship classes: %w", err)
	}
	defer stmt.Close()

	for _, rc := range rels {
		card := rc.Cardinality
		if card == "" {
			card = model.CardinalityOneToMany
		}
		if _, err := stmt.ExecContext(ctx, rc.ID, rc.Name, rc.OriginLayerID, rc.DestinationLayerID,
			rc.OriginKey, rc.DestinationKey, string(card)); err != nil {
			return fmt.Errorf("insert relationship class %d: %w", rc.ID, err)
		}
	}
	return nil
}

// SetLayerEnabled toggles whether a layer takes part in relationship
// discovery. Relationship classes pointing at a disabled layer are not
// reachable.
func (s *Store) SetLayerEnabled(ctx context.Context, layerID string, enabled bool) error {
	if s.readOnly {
		return ErrReadOnly
	}
	defer s.invalidate()

	v := 0
	if enabled {
		v = 1
	}
	res, err := s.db.ExecContext(ctx, `UPDATE layers SET enabled = ? WHERE id = ?`, v, layerID)
	if err != nil {
		return fmt.Errorf("update layer %s: %w", layerID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("layer %s: %w", layerID, errUnknownLayer)
	}
	return nil
}

package datasource

import (
	"context"
	"database/sql"
	"fmt"
)

// SchemaVersion is stored in the meta table.
const SchemaVersion = 1

// CreateSchema creates all tables and indexes if they do not exist.
func CreateSchema(ctx context.Context, db *sql.DB) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"layers", `
			CREATE TABLE IF NOT EXISTS layers (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				kind TEXT NOT NULL,
				geometry_type TEXT NOT NULL DEFAULT '',
				display_field TEXT NOT NULL DEFAULT '',
				enabled INTEGER NOT NULL DEFAULT 1,
				position INTEGER NOT NULL DEFAULT 0
			)`},
		{"features", `
			CREATE TABLE IF NOT EXISTS features (
				layer_id TEXT NOT NULL REFERENCES layers(id) ON DELETE CASCADE,
				object_id INTEGER NOT NULL,
				attributes TEXT NOT NULL DEFAULT '{}',
				geometry TEXT,
				PRIMARY KEY (layer_id, object_id)
			)`},
		{"relationship_classes", `
			CREATE TABLE IF NOT EXISTS relationship_classes (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				origin_layer_id TEXT NOT NULL REFERENCES layers(id) ON DELETE CASCADE,
				destination_layer_id TEXT NOT NULL REFERENCES layers(id) ON DELETE CASCADE,
				origin_key TEXT NOT NULL,
				destination_key TEXT NOT NULL,
				cardinality TEXT NOT NULL DEFAULT 'one_to_many'
			)`},
		{"meta", `
			CREATE TABLE IF NOT EXISTS meta (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			)`},
		{"idx_rel_origin", `CREATE INDEX IF NOT EXISTS idx_rel_origin ON relationship_classes(origin_layer_id)`},
		{"idx_rel_destination", `CREATE INDEX IF NOT EXISTS idx_rel_destination ON relationship_classes(destination_layer_id)`},
	}
	for _, st := range stmts {
		if _, err := db.ExecContext(ctx, st.sql); err != nil {
			return fmt.Errorf("create %s: %w", st.name, err)
		}
	}
	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`, fmt.Sprint(SchemaVersion)); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

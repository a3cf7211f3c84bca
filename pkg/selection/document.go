package selection

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/seltree/pkg/metrics"
	"github.com/vanderheijden86/seltree/pkg/model"
)

// Document is the on-disk form of a selection: object ids per layer. Other
// tools write it; seltree watches it and resolves it into groups.
type Document struct {
	Layers []DocumentLayer `json:"layers"`
}

// DocumentLayer lists the selected object ids of one layer or table.
type DocumentLayer struct {
	LayerID   string  `json:"layer_id"`
	ObjectIDs []int64 `json:"object_ids"`
}

// Resolver turns layer ids and object ids into layers and features.
type Resolver interface {
	Layer(ctx context.Context, layerID string) (model.Layer, error)
	Features(ctx context.Context, layerID string, objectIDs []int64) (model.FeatureSet, error)
}

// ReadDocument reads a selection document. A missing file is an empty
// selection.
func ReadDocument(path string) (Document, error) {
	var doc Document
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("reading selection document: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, fmt.Errorf("parsing selection document %s: %w", path, err)
	}
	return doc, nil
}

// WriteDocument writes doc atomically (temp file + rename) so a watcher never
// observes a partial document.
func WriteDocument(path string, doc Document) error {
	if doc.Layers == nil {
		doc.Layers = []DocumentLayer{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding selection document: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating selection directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".selection-*.json")
	if err != nil {
		return fmt.Errorf("creating temp selection file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing selection document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing selection document: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing selection document: %w", err)
	}
	return nil
}

// DocumentFromSnapshot converts a snapshot back into a document. Pending
// groups without features are omitted.
func DocumentFromSnapshot(snap Snapshot) Document {
	doc := Document{Layers: make([]DocumentLayer, 0, len(snap.Groups))}
	for _, g := range snap.Groups {
		if g.Features.IsEmpty() {
			continue
		}
		dl := DocumentLayer{LayerID: g.Layer.ID}
		for _, f := range g.Features.Features {
			dl.ObjectIDs = append(dl.ObjectIDs, f.ObjectID)
		}
		doc.Layers = append(doc.Layers, dl)
	}
	return doc
}

// Resolve looks up every layer of the document. Unknown layers are skipped
// with a warning; other resolver failures abort.
func (d Document) Resolve(ctx context.Context, r Resolver) ([]Group, error) {
	groups := make([]Group, 0, len(d.Layers))
	for _, dl := range d.Layers {
		if len(dl.ObjectIDs) == 0 {
			continue
		}
		layer, err := r.Layer(ctx, dl.LayerID)
		if err != nil {
			if IsUnknownLayer(err) {
				log.Printf("warning: selection references unknown layer %q", dl.LayerID)
				continue
			}
			return nil, fmt.Errorf("resolving layer %s: %w", dl.LayerID, err)
		}
		fs, err := r.Features(ctx, dl.LayerID, dl.ObjectIDs)
		if err != nil {
			return nil, fmt.Errorf("resolving features of %s: %w", dl.LayerID, err)
		}
		if fs.IsEmpty() {
			continue
		}
		groups = append(groups, Group{Layer: layer, Features: fs})
	}
	return groups, nil
}

// LoadDocument reads the document at path, resolves it and replaces the
// contents of s. Layers being resolved are marked pending first, so readers
// do not judge them while the lookup runs.
func (s *Set) LoadDocument(ctx context.Context, path string, r Resolver) error {
	defer metrics.Timer(metrics.SelectionLoad)()

	doc, err := ReadDocument(path)
	if err != nil {
		return err
	}
	snap := s.Snapshot()
	for _, dl := range doc.Layers {
		if g, ok := snap.Group(dl.LayerID); ok {
			s.SetPending(g.Layer, true)
		}
	}
	groups, err := doc.Resolve(ctx, r)
	if err != nil {
		for _, dl := range doc.Layers {
			if g, ok := snap.Group(dl.LayerID); ok {
				s.SetPending(g.Layer, false)
			}
		}
		return err
	}
	s.Replace(groups)
	return nil
}

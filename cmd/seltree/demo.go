package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vanderheijden86/seltree/internal/datasource"
	"github.com/vanderheijden86/seltree/pkg/testutil"
)

// runInitDemo writes the generated parcels/buildings/hydrants dataset with
// its owner and permit tables into a new database at path.
func runInitDemo(ctx context.Context, w io.Writer, path string, featuresPerLayer int) error {
	if featuresPerLayer <= 0 {
		return fmt.Errorf("demo size must be positive, got %d", featuresPerLayer)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating database directory: %w", err)
	}

	store, err := datasource.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()

	ds := testutil.New(testutil.GeneratorConfig{FeaturesPerLayer: featuresPerLayer}).Dataset()
	if err := store.Insert(ctx, ds); err != nil {
		return fmt.Errorf("writing demo data: %w", err)
	}
	fmt.Fprintf(w, "Created %s: %d layers, %d features, %d relationship classes\n",
		path, len(ds.Layers), len(ds.Features), len(ds.Relationships))
	fmt.Fprintf(w, "Next: seltree --db %s pick\n", path)
	return nil
}

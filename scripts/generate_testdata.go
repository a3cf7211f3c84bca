//go:build ignore
// +build ignore

// generate_testdata.go creates demo GIS databases of increasing size for
// trying the tree and profiling relation loading.
// Usage: go run scripts/generate_testdata.go
//
// Creates:
//
//	testdata/demo/small.db   (10 features per layer)
//	testdata/demo/medium.db  (200 features per layer)
//	testdata/demo/large.db   (2000 features per layer)
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vanderheijden86/seltree/internal/datasource"
	"github.com/vanderheijden86/seltree/pkg/testutil"
)

type datasetSize struct {
	name string
	size int
	link float64
}

var datasets = []datasetSize{
	{"small", 10, 0.9},
	{"medium", 200, 0.6},
	{"large", 2000, 0.3},
}

func main() {
	outputDir := "testdata/demo"
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	for _, d := range datasets {
		path := filepath.Join(outputDir, d.name+".db")
		fmt.Printf("Generating %s (%d features per layer)...\n", path, d.size)
		_ = os.Remove(path)

		ds := testutil.New(testutil.GeneratorConfig{
			Seed:             int64(d.size), // Reproducible per-size
			FeaturesPerLayer: d.size,
			LinkProbability:  d.link,
		}).Dataset()

		store, err := datasource.Open(ctx, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", path, err)
			os.Exit(1)
		}
		err = store.Insert(ctx, ds)
		store.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("  %d layers, %d features, %d relationship classes\n",
			len(ds.Layers), len(ds.Features), len(ds.Relationships))
	}
}

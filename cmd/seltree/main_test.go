package main

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/vanderheijden86/seltree/internal/datasource"
	"github.com/vanderheijden86/seltree/pkg/config"
	"github.com/vanderheijden86/seltree/pkg/relations"
	"github.com/vanderheijden86/seltree/pkg/selection"
	"github.com/vanderheijden86/seltree/pkg/state"
	"github.com/vanderheijden86/seltree/pkg/testutil"
	"github.com/vanderheijden86/seltree/pkg/watcher"
)

func newDemoStore(t *testing.T) *datasource.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gis.db")
	if err := runInitDemo(context.Background(), &bytes.Buffer{}, path, 4); err != nil {
		t.Fatalf("init demo: %v", err)
	}
	store, err := datasource.OpenReadOnly(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDocumentFromPicks(t *testing.T) {
	doc, err := documentFromPicks([]string{"hydrants:2", "parcels:1", "hydrants:4"})
	if err != nil {
		t.Fatal(err)
	}
	want := []selection.DocumentLayer{
		{LayerID: "hydrants", ObjectIDs: []int64{2, 4}},
		{LayerID: "parcels", ObjectIDs: []int64{1}},
	}
	if !reflect.DeepEqual(doc.Layers, want) {
		t.Errorf("got %+v, want %+v", doc.Layers, want)
	}

	if _, err := documentFromPicks([]string{"parcels"}); err == nil {
		t.Error("expected error for a gisId without object id")
	}
}

func TestApplyFlags(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Tree.KeepTreeState = true
	applyFlags(&cfg, "/tmp/gis.db", "", false, true)

	if cfg.Data.Database != "/tmp/gis.db" {
		t.Errorf("database = %q", cfg.Data.Database)
	}
	if cfg.Data.SelectionFile != config.DefaultConfig().Data.SelectionFile {
		t.Errorf("empty flag must keep the configured selection file, got %q", cfg.Data.SelectionFile)
	}
	if !cfg.Tree.KeepTreeState {
		t.Error("unset flag must not switch keep_tree_state off")
	}
	if !cfg.Tree.EvaluateRelationships {
		t.Error("--evaluate not applied")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := loadConfig(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("missing config: %v", err)
	}
	if cfg.Loader.MaxConcurrency != config.DefaultConfig().Loader.MaxConcurrency {
		t.Error("missing config must give defaults")
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("loader:\n  log_level: loud\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = loadConfig(bad)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if cfg.Loader.LogLevel != config.DefaultConfig().Loader.LogLevel {
		t.Errorf("invalid config must fall back to defaults, got log level %q", cfg.Loader.LogLevel)
	}
}

func TestInitDemo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gis.db")
	var out bytes.Buffer
	if err := runInitDemo(context.Background(), &out, path, 3); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "5 layers, 15 features") {
		t.Errorf("unexpected summary: %s", out.String())
	}
	if err := runInitDemo(context.Background(), &out, path, 3); err == nil {
		t.Error("expected error for an existing database")
	}
	if err := runInitDemo(context.Background(), &out, filepath.Join(t.TempDir(), "x.db"), 0); err == nil {
		t.Error("expected error for an empty demo")
	}
}

func TestPickOptions(t *testing.T) {
	store := newDemoStore(t)
	current := selection.Document{Layers: []selection.DocumentLayer{{LayerID: "hydrants", ObjectIDs: []int64{2}}}}

	options, err := pickOptions(context.Background(), store, current)
	if err != nil {
		t.Fatal(err)
	}
	if len(options) != 20 {
		t.Fatalf("expected 20 options, got %d", len(options))
	}
	if options[0].Key != "Parcels · 102 Main St" || options[0].Value != "parcels:1" {
		t.Errorf("unexpected first option %q = %q", options[0].Key, options[0].Value)
	}
	for _, o := range options {
		if o.Value == "hydrants:2" && o.Key != "Hydrants · H-002" {
			t.Errorf("unexpected hydrant label %q", o.Key)
		}
	}
}

func TestRunDump(t *testing.T) {
	ctx := context.Background()
	store := newDemoStore(t)
	layers, err := layerLookup(ctx, store)
	if err != nil {
		t.Fatal(err)
	}

	set := selection.NewSet()
	path := testutil.WriteSelectionFile(t, t.TempDir(), map[string][]int64{"parcels": {1}})
	if err := watcher.NewReloader(set, store, path, nil).Reload(ctx); err != nil {
		t.Fatal(err)
	}
	loader := relations.NewLoader(store, relations.Options{LogLevel: relations.LogLevelNone})
	defer loader.Close()

	var out bytes.Buffer
	if err := runDump(&out, state.NewStore(), set, loader, layers, dumpOptions{MaxDepth: 3}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"▾ Parcels (1)", "102 Main St  [parcels:1]", "Parcel owners", "Buildings on parcel"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("dump missing %q:\n%s", want, out.String())
		}
	}
	if strings.Contains(out.String(), "…") {
		t.Errorf("dump left pending rows:\n%s", out.String())
	}

	set.Clear()
	out.Reset()
	if err := runDump(&out, state.NewStore(), set, loader, layers, dumpOptions{}); err != nil {
		t.Fatal(err)
	}
	if out.String() != "Nothing selected.\n" {
		t.Errorf("unexpected empty dump %q", out.String())
	}
}

func TestDumpBinary(t *testing.T) {
	if testing.Short() {
		t.Skip("builds the binary")
	}
	tmpDir := t.TempDir()
	bin := filepath.Join(tmpDir, "seltree")
	build := exec.Command("go", "build", "-o", bin, ".")
	if out, err := build.CombinedOutput(); err != nil {
		t.Fatalf("build failed: %v\n%s", err, out)
	}

	db := filepath.Join(tmpDir, "gis.db")
	if out, err := exec.Command(bin, "--init-demo", db, "--demo-size", "4").CombinedOutput(); err != nil {
		t.Fatalf("init-demo failed: %v\n%s", err, out)
	}
	sel := testutil.WriteSelectionFile(t, tmpDir, map[string][]int64{"hydrants": {1}})

	cmd := exec.Command(bin, "--db", db, "--selection", sel, "--config", filepath.Join(tmpDir, "none.yaml"), "--dump")
	cmd.Env = append(os.Environ(), "XDG_STATE_HOME="+tmpDir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("dump failed: %v\n%s", err, out)
	}
	if !strings.Contains(string(out), "H-001  [hydrants:1]") || !strings.Contains(string(out), "Hydrant coverage") {
		t.Errorf("unexpected dump:\n%s", out)
	}
}

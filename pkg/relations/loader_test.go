package relations

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/seltree/pkg/model"
	"github.com/vanderheijden86/seltree/pkg/selection"
	"github.com/vanderheijden86/seltree/pkg/state"
	"github.com/vanderheijden86/seltree/pkg/testutil"
)

type fixture struct {
	ds     model.Dataset
	src    *testutil.FakeSource
	store  *state.Store
	loader *Loader
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	ds := testutil.LinkedDataset(4)
	src := testutil.NewFakeSource(ds)
	if opts.Logger == nil {
		opts.Logger = log.New(&bytes.Buffer{}, "", 0)
	}
	l := NewLoader(src, opts)
	t.Cleanup(l.Close)
	return &fixture{ds: ds, src: src, store: state.NewStore(), loader: l}
}

func (fx *fixture) feature(t *testing.T, gisID string) (model.Layer, model.Feature) {
	t.Helper()
	f, ok := fx.ds.Feature(gisID)
	if !ok {
		t.Fatalf("feature %s not in dataset", gisID)
	}
	l, _ := fx.ds.Layer(f.LayerID)
	return l, f
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRelationClassesLifecycle(t *testing.T) {
	fx := newFixture(t, Options{})
	layer, f := fx.feature(t, "parcels:1")

	task, ok := fx.loader.PlanRelationClasses(fx.store.State(), f.GisID(), layer, f)
	if !ok {
		t.Fatal("expected a task for an absent entry")
	}
	if task.Key != "parcels:1" || task.Root != "parcels:1" || task.Start == nil {
		t.Errorf("unexpected task %+v", task)
	}
	if err := RunSync(fx.store, task); err != nil {
		t.Fatalf("RunSync: %v", err)
	}

	st := fx.store.State()
	testutil.AssertStatus(t, st.RelationClasses(), "parcels:1", state.StatusLoaded)
	e, _ := st.RelationClasses().Get("parcels:1")
	if len(e.Result) != len(fx.ds.RelationshipsOf(testutil.LayerParcels)) {
		t.Errorf("expected %d descriptors, got %d", len(fx.ds.RelationshipsOf(testutil.LayerParcels)), len(e.Result))
	}

	if _, ok := fx.loader.PlanRelationClasses(st, f.GisID(), layer, f); ok {
		t.Error("loaded entry must not be planned again")
	}
	if fx.src.Calls() != 1 {
		t.Errorf("expected 1 fetch, got %d", fx.src.Calls())
	}
}

func TestRelationObjectsRequireClasses(t *testing.T) {
	fx := newFixture(t, Options{})
	layer, f := fx.feature(t, "parcels:2")

	if _, ok := fx.loader.PlanRelationObjects(fx.store.State(), f.GisID(), f, testutil.RelParcelBuildings, layer); ok {
		t.Fatal("relation objects planned before classes were loaded")
	}

	task, _ := fx.loader.PlanRelationClasses(fx.store.State(), f.GisID(), layer, f)
	if err := RunSync(fx.store, task); err != nil {
		t.Fatal(err)
	}
	task, ok := fx.loader.PlanRelationObjects(fx.store.State(), f.GisID(), f, testutil.RelParcelBuildings, layer)
	if !ok {
		t.Fatal("expected relation objects task")
	}
	if err := RunSync(fx.store, task); err != nil {
		t.Fatal(err)
	}

	key := model.RelationObjectKey(f.GisID(), testutil.RelParcelBuildings)
	testutil.AssertStatus(t, fx.store.State().RelationObjects(), key, state.StatusLoaded)
	e, _ := fx.store.State().RelationObjects().Get(key)
	var desc model.RelationshipDescriptor
	for _, d := range fx.ds.RelationshipsOf(testutil.LayerParcels) {
		if d.ID == testutil.RelParcelBuildings {
			desc = d
		}
	}
	want := fx.ds.RelatedFeatures(f, desc)
	testutil.AssertFeatureIDs(t, e.Result, want.GisIDs()...)
}

func TestEvaluatedFillsBothCaches(t *testing.T) {
	fx := newFixture(t, Options{Evaluate: true})
	layer, f := fx.feature(t, "parcels:1")

	task, ok := fx.loader.PlanRelationClasses(fx.store.State(), f.GisID(), layer, f)
	if !ok {
		t.Fatal("expected task")
	}
	if err := RunSync(fx.store, task); err != nil {
		t.Fatal(err)
	}

	st := fx.store.State()
	testutil.AssertStatus(t, st.RelationClasses(), f.GisID(), state.StatusLoaded)
	for _, d := range fx.ds.RelationshipsOf(testutil.LayerParcels) {
		key := model.RelationObjectKey(f.GisID(), d.ID)
		want := state.StatusAbsent
		if fx.ds.RelatedFeatures(f, d).Len() > 0 {
			want = state.StatusLoaded
		}
		testutil.AssertStatus(t, st.RelationObjects(), key, want)
	}
	if fx.src.Calls() != 1 {
		t.Errorf("evaluated mode should use one call, got %d", fx.src.Calls())
	}
}

func TestFetchErrorBecomesErrorEntry(t *testing.T) {
	var buf bytes.Buffer
	fx := newFixture(t, Options{LogLevel: LogLevelWarn, Logger: log.New(&buf, "", 0)})
	layer, f := fx.feature(t, "parcels:3")
	fx.src.FailOn(f.GisID(), errors.New("service unavailable"))

	task, _ := fx.loader.PlanRelationClasses(fx.store.State(), f.GisID(), layer, f)
	if err := RunSync(fx.store, task); err != nil {
		t.Fatal(err)
	}

	e, ok := fx.store.State().RelationClasses().Get(f.GisID())
	if !ok || e.Status != state.StatusError {
		t.Fatalf("expected error entry, got %+v", e)
	}
	if e.ErrorMessage != "relation_classes parcels:3: service unavailable" {
		t.Errorf("unexpected message %q", e.ErrorMessage)
	}
	if !strings.Contains(buf.String(), `"event":"fetch_error"`) {
		t.Errorf("expected fetch_error event, got %q", buf.String())
	}

	// Error entries are retried.
	if _, ok := fx.loader.PlanRelationClasses(fx.store.State(), f.GisID(), layer, f); !ok {
		t.Error("expected error entry to be planned again")
	}
}

func TestInvalidateDropsCompletionAndReplans(t *testing.T) {
	fx := newFixture(t, Options{})
	layer, f := fx.feature(t, "parcels:1")
	root := f.GisID()

	fx.src.Hold()
	task, ok := fx.loader.PlanRelationClasses(fx.store.State(), root, layer, f)
	if !ok || !task.Begin(fx.store) {
		t.Fatal("expected task to begin")
	}
	done := make(chan state.Action, 1)
	go func() { done <- task.Run() }()

	waitFor(t, func() bool { return fx.src.Calls() == 1 })
	fx.loader.Invalidate(root)
	if a := <-done; a != nil {
		t.Fatalf("invalidated fetch returned %T", a)
	}
	testutil.AssertStatus(t, fx.store.State().RelationClasses(), root, state.StatusPending)
	if fx.loader.Scopes() != 0 {
		t.Errorf("expected no live scopes, got %d", fx.loader.Scopes())
	}

	fx.src.Release()
	task, ok = fx.loader.PlanRelationClasses(fx.store.State(), root, layer, f)
	if !ok {
		t.Fatal("orphaned pending entry must be planned again")
	}
	if task.Start != nil {
		t.Errorf("orphaned entry must not be started again, got %T", task.Start)
	}
	if err := RunSync(fx.store, task); err != nil {
		t.Fatal(err)
	}
	testutil.AssertStatus(t, fx.store.State().RelationClasses(), root, state.StatusLoaded)
}

// slowFirstFetcher blocks the first relationship-class fetch until release
// is closed, whatever its context says.
type slowFirstFetcher struct {
	*testutil.FakeSource
	release chan struct{}
	calls   atomic.Int32
}

func (s *slowFirstFetcher) ReachableRelationships(ctx context.Context, layer model.Layer, f model.Feature) ([]model.RelationshipDescriptor, error) {
	if s.calls.Add(1) == 1 {
		<-s.release
	}
	return s.FakeSource.ReachableRelationships(ctx, layer, f)
}

func TestReplanDoesNotJoinInvalidatedFetch(t *testing.T) {
	ds := testutil.LinkedDataset(4)
	src := &slowFirstFetcher{FakeSource: testutil.NewFakeSource(ds), release: make(chan struct{})}
	l := NewLoader(src, Options{Logger: log.New(&bytes.Buffer{}, "", 0)})
	t.Cleanup(l.Close)
	store := state.NewStore()

	f, _ := ds.Feature("parcels:1")
	layer, _ := ds.Layer(f.LayerID)
	root := f.GisID()

	first, ok := l.PlanRelationClasses(store.State(), root, layer, f)
	if !ok || !first.Begin(store) {
		t.Fatal("expected first task to begin")
	}
	firstDone := make(chan state.Action, 1)
	go func() { firstDone <- first.Run() }()
	waitFor(t, func() bool { return src.calls.Load() == 1 })

	l.Invalidate(root)
	second, ok := l.PlanRelationClasses(store.State(), root, layer, f)
	if !ok {
		t.Fatal("expected replan after invalidate")
	}
	secondDone := make(chan state.Action, 1)
	go func() { secondDone <- second.Run() }()

	var a state.Action
	select {
	case a = <-secondDone:
	case <-time.After(2 * time.Second):
		close(src.release)
		t.Fatal("replanned fetch waited on the invalidated one")
	}
	if _, ok := a.(state.LoadedRelationClassesSuccess); !ok {
		t.Fatalf("expected success completion, got %T", a)
	}
	if _, err := store.Dispatch(a); err != nil {
		t.Fatal(err)
	}
	testutil.AssertStatus(t, store.State().RelationClasses(), root, state.StatusLoaded)

	close(src.release)
	if a := <-firstDone; a != nil {
		t.Errorf("invalidated fetch returned %T", a)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("expected 2 fetches, got %d", got)
	}
}

func TestLiveFetchIsNotPlannedTwice(t *testing.T) {
	fx := newFixture(t, Options{})
	layer, f := fx.feature(t, "buildings:1")
	st := fx.store.State()

	first, ok := fx.loader.PlanRelationClasses(st, f.GisID(), layer, f)
	if !ok {
		t.Fatal("expected first task")
	}
	if _, ok := fx.loader.PlanRelationClasses(st, f.GisID(), layer, f); ok {
		t.Fatal("second plan for a live fetch")
	}
	if err := RunSync(fx.store, first); err != nil {
		t.Fatal(err)
	}
	if fx.src.Calls() != 1 {
		t.Errorf("expected 1 fetch, got %d", fx.src.Calls())
	}
}

func TestRejectedStartReleasesKey(t *testing.T) {
	fx := newFixture(t, Options{})
	layer, f := fx.feature(t, "parcels:1")
	stale := fx.store.State()

	task, _ := fx.loader.PlanRelationClasses(stale, f.GisID(), layer, f)
	if err := RunSync(fx.store, task); err != nil {
		t.Fatal(err)
	}

	// Planned against an outdated state: Start is rejected as already loaded.
	task, ok := fx.loader.PlanRelationClasses(stale, f.GisID(), layer, f)
	if !ok {
		t.Fatal("expected task from outdated state")
	}
	if task.Begin(fx.store) {
		t.Fatal("start of a loaded entry must be rejected")
	}
	if _, ok := fx.loader.PlanRelationClasses(stale, f.GisID(), layer, f); !ok {
		t.Error("rejected task must release its key")
	}
}

func TestDiscardReleasesKey(t *testing.T) {
	fx := newFixture(t, Options{})
	layer, f := fx.feature(t, "hydrants:2")
	st := fx.store.State()

	task, ok := fx.loader.PlanRelationClasses(st, f.GisID(), layer, f)
	if !ok {
		t.Fatal("expected task")
	}
	task.Discard()
	if _, ok := fx.loader.PlanRelationClasses(st, f.GisID(), layer, f); !ok {
		t.Error("discarded task must release its key")
	}
	if fx.src.Calls() != 0 {
		t.Errorf("discarded task fetched %d times", fx.src.Calls())
	}
}

func TestMaxConcurrency(t *testing.T) {
	fx := newFixture(t, Options{MaxConcurrency: 1})
	st := fx.store.State()
	fx.src.Hold()

	done := make(chan state.Action, 2)
	for _, gis := range []string{"parcels:1", "parcels:2"} {
		layer, f := fx.feature(t, gis)
		task, _ := fx.loader.PlanRelationClasses(st, gis, layer, f)
		task.Begin(fx.store)
		go func() { done <- task.Run() }()
	}

	waitFor(t, func() bool { return fx.src.Calls() == 1 })
	time.Sleep(20 * time.Millisecond)
	if fx.src.Calls() != 1 {
		t.Fatalf("expected one fetch in flight, got %d", fx.src.Calls())
	}
	fx.src.Release()
	for range 2 {
		if a := <-done; a == nil {
			t.Error("expected completion")
		}
	}
}

func TestSupportFeatures(t *testing.T) {
	fx := newFixture(t, Options{})
	layer, f := fx.feature(t, "owners:1")

	task, ok := fx.loader.PlanSupportFeatures(fx.store.State(), f.GisID(), layer, f)
	if !ok || task.Start != nil {
		t.Fatalf("unexpected support task %+v", task)
	}
	if err := RunSync(fx.store, task); err != nil {
		t.Fatal(err)
	}
	fs, ok := fx.store.State().SupportFeatures(f.GisID())
	if !ok || fs.IsEmpty() {
		t.Fatalf("expected support features for a linked owner, got %+v", fs)
	}
	for _, sf := range fs.Features {
		if sf.LayerID != testutil.LayerParcels {
			t.Errorf("unexpected support feature %s", sf.GisID())
		}
	}
	if _, ok := fx.loader.PlanSupportFeatures(fx.store.State(), f.GisID(), layer, f); ok {
		t.Error("cached support features must not be planned")
	}
}

func TestSupportFailureIsLoggedOnly(t *testing.T) {
	var buf bytes.Buffer
	fx := newFixture(t, Options{LogLevel: LogLevelWarn, Logger: log.New(&buf, "", 0)})
	layer, f := fx.feature(t, "permits:1")
	fx.src.FailOn("support", errors.New("geometry service down"))

	task, _ := fx.loader.PlanSupportFeatures(fx.store.State(), f.GisID(), layer, f)
	if err := RunSync(fx.store, task); err != nil {
		t.Fatal(err)
	}
	if _, ok := fx.store.State().SupportFeatures(f.GisID()); ok {
		t.Error("failed support lookup must not be cached")
	}
	if !strings.Contains(buf.String(), "geometry service down") {
		t.Errorf("expected failure logged, got %q", buf.String())
	}
}

func TestPruneDropsScopesOutsideSelection(t *testing.T) {
	fx := newFixture(t, Options{})
	for _, gis := range []string{"parcels:1", "parcels:2"} {
		layer, f := fx.feature(t, gis)
		if _, ok := fx.loader.PlanRelationClasses(fx.store.State(), gis, layer, f); !ok {
			t.Fatalf("expected task for %s", gis)
		}
	}
	if fx.loader.Scopes() != 2 {
		t.Fatalf("expected 2 scopes, got %d", fx.loader.Scopes())
	}

	set := selection.NewSet()
	testutil.Select(set, fx.ds, testutil.LayerParcels, 1)
	fx.loader.Prune(set.Snapshot())
	if fx.loader.Scopes() != 1 {
		t.Errorf("expected 1 scope after prune, got %d", fx.loader.Scopes())
	}

	fx.loader.InvalidateAll()
	if fx.loader.Scopes() != 0 {
		t.Errorf("expected no scopes, got %d", fx.loader.Scopes())
	}
}

func TestClosedLoaderPlansNothing(t *testing.T) {
	fx := newFixture(t, Options{})
	layer, f := fx.feature(t, "parcels:1")
	fx.loader.Close()
	if _, ok := fx.loader.PlanRelationClasses(fx.store.State(), f.GisID(), layer, f); ok {
		t.Error("closed loader planned a task")
	}
	if _, ok := fx.loader.PlanSupportFeatures(fx.store.State(), f.GisID(), layer, f); ok {
		t.Error("closed loader planned a support task")
	}
}

func TestLogEvents(t *testing.T) {
	var buf bytes.Buffer
	fx := newFixture(t, Options{LogLevel: LogLevelDebug, Logger: log.New(&buf, "", 0)})
	layer, f := fx.feature(t, "hydrants:1")

	task, _ := fx.loader.PlanRelationClasses(fx.store.State(), f.GisID(), layer, f)
	if err := RunSync(fx.store, task); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected start and done events, got %q", buf.String())
	}
	var ev map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &ev); err != nil {
		t.Fatalf("event is not JSON: %v", err)
	}
	if ev["component"] != "relation_loader" || ev["event"] != "fetch_done" || ev["id"] != "hydrants:1" || ev["level"] != "debug" {
		t.Errorf("unexpected event %v", ev)
	}

	buf.Reset()
	quiet := NewLoader(fx.src, Options{LogLevel: LogLevelWarn, Logger: log.New(&buf, "", 0)})
	defer quiet.Close()
	layer, f = fx.feature(t, "hydrants:2")
	task, _ = quiet.PlanRelationClasses(fx.store.State(), f.GisID(), layer, f)
	if err := RunSync(fx.store, task); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("warn level must not log successful fetches, got %q", buf.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"none", LogLevelNone},
		{"OFF", LogLevelNone},
		{"error", LogLevelError},
		{" warn ", LogLevelWarn},
		{"warning", LogLevelWarn},
		{"info", LogLevelInfo},
		{"4", LogLevelDebug},
		{"", LogLevelWarn},
		{"verbose", LogLevelWarn},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

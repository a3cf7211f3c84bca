package relations

import (
	"context"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vanderheijden86/seltree/pkg/debug"
	"github.com/vanderheijden86/seltree/pkg/metrics"
	"github.com/vanderheijden86/seltree/pkg/model"
	"github.com/vanderheijden86/seltree/pkg/selection"
	"github.com/vanderheijden86/seltree/pkg/state"
)

// DefaultMaxConcurrency bounds the fetches running at once.
const DefaultMaxConcurrency = 4

// Options configures a Loader.
type Options struct {
	// Evaluate fetches relationship classes together with their records
	// in one call (LoadedEvaluatedRelationClassesSuccess).
	Evaluate       bool
	MaxConcurrency int
	LogLevel       LogLevel
	// Logger receives event lines; nil means the standard logger.
	Logger *log.Logger
}

// Dispatcher applies actions; *state.Store implements it.
type Dispatcher interface {
	Dispatch(state.Action) (state.State, error)
}

// Task is one planned fetch.
type Task struct {
	// Key is the cache id the task fills.
	Key string
	// Root is the scope owning the task.
	Root string
	// Start is applied before Run. It is nil when the entry is already
	// Pending without a live fetch or the cache has no Pending state.
	Start state.Action
	// Run performs the fetch. It returns nil when the completion is stale.
	Run func() state.Action

	release func()
}

// Begin dispatches Start and reports whether Run should be issued. A task
// whose Start is rejected is released and must not be run.
func (t Task) Begin(d Dispatcher) bool {
	if t.Start == nil {
		return true
	}
	if _, err := d.Dispatch(t.Start); err != nil {
		t.Discard()
		return false
	}
	return true
}

// Discard releases a planned task that will not be run, so the key can be
// planned again.
func (t Task) Discard() {
	if t.release != nil {
		t.release()
	}
}

type scope struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// flight returns the de-duplication key of key within sc. Fetches of an
// invalidated scope never share a flight with its replacement.
func (sc *scope) flight(key string) string {
	return strconv.FormatUint(sc.id, 10) + "/" + key
}

// Loader plans fetches against the current state and runs them under
// cancellable scopes. It is safe for concurrent use.
type Loader struct {
	meta    RelationMetadataFetcher
	records RelationRecordFetcher
	support GeometrySupportFetcher
	opts    Options
	logger  *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	sem    chan struct{}
	group  singleflight.Group

	mu        sync.Mutex
	nextScope uint64
	scopes    map[string]*scope
	inflight map[string]*scope // cache key -> scope of the live fetch
}

// NewLoader returns a Loader using f for all fetches.
func NewLoader(f Fetcher, opts Options) *Loader {
	return NewLoaderWith(f, f, f, opts)
}

// NewLoaderWith returns a Loader with separate fetchers.
func NewLoaderWith(meta RelationMetadataFetcher, records RelationRecordFetcher, support GeometrySupportFetcher, opts Options) *Loader {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loader{
		meta:     meta,
		records:  records,
		support:  support,
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		sem:      make(chan struct{}, opts.MaxConcurrency),
		scopes:   make(map[string]*scope),
		inflight: make(map[string]*scope),
	}
}

// scopeFor returns the live scope of root, creating it if needed.
func (l *Loader) scopeFor(root string) *scope {
	if sc, ok := l.scopes[root]; ok {
		return sc
	}
	ctx, cancel := context.WithCancel(l.ctx)
	l.nextScope++
	sc := &scope{id: l.nextScope, ctx: ctx, cancel: cancel}
	l.scopes[root] = sc
	return sc
}

// fetchFunc performs a fetch and returns its completion.
type fetchFunc func(ctx context.Context) (state.Action, error)

// plan registers a live fetch for key unless one is running. pending
// reports whether the cache entry is already Pending. fail builds the Error
// completion of a failed fetch; nil means failures are only logged.
func (l *Loader) plan(key, root string, pending bool, start state.Action, op string, fetch fetchFunc, fail func(error) state.Action) (Task, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx.Err() != nil {
		return Task{}, false
	}
	if sc, ok := l.inflight[key]; ok && sc.ctx.Err() == nil {
		return Task{}, false
	}
	sc := l.scopeFor(root)
	l.inflight[key] = sc
	if pending {
		// Orphaned by an invalidated scope: refetch without a new Start.
		start = nil
	}
	return Task{
		Key:   key,
		Root:  root,
		Start: start,
		Run:   func() state.Action { return l.run(sc, key, op, fetch, fail) },

		release: func() { l.finish(sc, key) },
	}, true
}

func (l *Loader) run(sc *scope, key, op string, fetch fetchFunc, fail func(error) state.Action) state.Action {
	defer l.finish(sc, key)

	select {
	case l.sem <- struct{}{}:
		defer func() { <-l.sem }()
	case <-sc.ctx.Done():
		l.dropStale(op, key)
		return nil
	}

	l.logEvent(LogLevelDebug, "fetch_start", map[string]any{"op": op, "id": key})
	started := time.Now()
	v, err, shared := l.group.Do(sc.flight(key), func() (any, error) {
		return fetch(sc.ctx)
	})
	if sc.ctx.Err() != nil {
		l.dropStale(op, key)
		return nil
	}
	if err != nil {
		l.logEvent(LogLevelWarn, "fetch_failed", map[string]any{"op": op, "id": key, "error": err.Error()})
		if fail == nil {
			return nil
		}
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{Op: op, ID: key, Err: err}
		}
		return fail(err)
	}
	l.logEvent(LogLevelDebug, "fetch_done", map[string]any{
		"op":          op,
		"id":          key,
		"shared":      shared,
		"duration_ms": time.Since(started).Milliseconds(),
	})
	a, _ := v.(state.Action)
	return a
}

func (l *Loader) finish(sc *scope, key string) {
	l.mu.Lock()
	if l.inflight[key] == sc {
		delete(l.inflight, key)
	}
	l.mu.Unlock()
}

func (l *Loader) dropStale(op, key string) {
	debug.Log("relations: %s %s dropped: %v", op, key, state.ErrStaleResponse)
	l.logEvent(LogLevelDebug, "stale_drop", map[string]any{"op": op, "id": key})
}

// PlanRelationClasses plans the relationship-class fetch of feature, owned
// by the tree branch of root. It returns false when the entry is Loaded or
// a fetch is already running.
func (l *Loader) PlanRelationClasses(st state.State, root string, layer model.Layer, feature model.Feature) (Task, bool) {
	id := feature.GisID()
	status := st.RelationClasses().Status(id)
	if status == state.StatusLoaded {
		metrics.RelationClassCache.Hit()
		return Task{}, false
	}
	fail := func(err error) state.Action {
		return state.LoadedRelationClassesError{FeatureID: id, Err: err}
	}
	t, ok := l.plan(id, root, status == state.StatusPending, state.LoadedRelationClassesStart{FeatureID: id}, OpRelationClasses,
		func(ctx context.Context) (state.Action, error) {
			defer metrics.Timer(metrics.RelationClassFetch)()
			if l.opts.Evaluate {
				rels, err := l.meta.EvaluatedRelationships(ctx, layer, feature)
				if err != nil {
					return l.failure(ctx, OpRelationClasses, id, err, fail)
				}
				return state.LoadedEvaluatedRelationClassesSuccess{FeatureID: id, Relationships: rels}, nil
			}
			rels, err := l.meta.ReachableRelationships(ctx, layer, feature)
			if err != nil {
				return l.failure(ctx, OpRelationClasses, id, err, fail)
			}
			return state.LoadedRelationClassesSuccess{FeatureID: id, Relationships: rels}, nil
		}, fail)
	if ok {
		metrics.RelationClassCache.Miss()
	}
	return t, ok
}

// PlanRelationObjects plans the related-record fetch of feature through
// relationshipID. Nothing is planned until the feature's relationship
// classes are Loaded.
func (l *Loader) PlanRelationObjects(st state.State, root string, feature model.Feature, relationshipID int64, layer model.Layer) (Task, bool) {
	fid := feature.GisID()
	if st.RelationClasses().Status(fid) != state.StatusLoaded {
		return Task{}, false
	}
	key := model.RelationObjectKey(fid, relationshipID)
	status := st.RelationObjects().Status(key)
	if status == state.StatusLoaded {
		metrics.RelationObjectCache.Hit()
		return Task{}, false
	}
	fail := func(err error) state.Action {
		return state.LoadedRelationObjectsError{FeatureID: fid, RelationshipID: relationshipID, Err: err}
	}
	t, ok := l.plan(key, root, status == state.StatusPending, state.LoadedRelationObjectsStart{FeatureID: fid, RelationshipID: relationshipID}, OpRelationObjects,
		func(ctx context.Context) (state.Action, error) {
			defer metrics.Timer(metrics.RelationObjectFetch)()
			fs, err := l.records.RelationObjects(ctx, feature, relationshipID, layer)
			if err != nil {
				return l.failure(ctx, OpRelationObjects, key, err, fail)
			}
			return state.LoadedRelationObjectsSuccess{FeatureID: fid, RelationshipID: relationshipID, Result: fs}, nil
		}, fail)
	if ok {
		metrics.RelationObjectCache.Miss()
	}
	return t, ok
}

// PlanSupportFeatures plans the geometry lookup of a table row. Failures are
// logged and leave the row without geometry.
func (l *Loader) PlanSupportFeatures(st state.State, root string, layer model.Layer, feature model.Feature) (Task, bool) {
	id := feature.GisID()
	if _, ok := st.SupportFeatures(id); ok {
		metrics.SupportCache.Hit()
		return Task{}, false
	}
	t, ok := l.plan("support:"+id, root, false, nil, OpSupportFeatures,
		func(ctx context.Context) (state.Action, error) {
			defer metrics.Timer(metrics.SupportFetch)()
			fs, err := l.support.SupportFeatures(ctx, layer, feature)
			if err != nil {
				return nil, &FetchError{Op: OpSupportFeatures, ID: id, Err: err}
			}
			return state.SupportFeaturesLoaded{FeatureID: id, Result: fs}, nil
		}, nil)
	if ok {
		metrics.SupportCache.Miss()
	}
	return t, ok
}

// failure converts a fetcher error into an Error completion. Errors caused
// by the scope being cancelled are returned as is so Run drops them.
func (l *Loader) failure(ctx context.Context, op, id string, err error, build func(error) state.Action) (state.Action, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	fe := &FetchError{Op: op, ID: id, Err: err}
	l.logEvent(LogLevelWarn, "fetch_error", map[string]any{"op": op, "id": id, "error": err.Error()})
	return build(fe), nil
}

// Invalidate cancels the scope of root. Running fetches of that scope drop
// their completions.
func (l *Loader) Invalidate(root string) {
	l.mu.Lock()
	sc, ok := l.scopes[root]
	if ok {
		sc.cancel()
		delete(l.scopes, root)
	}
	l.mu.Unlock()
	if ok {
		l.logEvent(LogLevelInfo, "scope_invalidated", map[string]any{"root": root})
	}
}

// InvalidateAll cancels every scope.
func (l *Loader) InvalidateAll() {
	l.mu.Lock()
	roots := make([]string, 0, len(l.scopes))
	for root := range l.scopes {
		roots = append(roots, root)
	}
	l.mu.Unlock()
	for _, root := range roots {
		l.Invalidate(root)
	}
}

// Prune invalidates the scopes whose root feature left the selection.
func (l *Loader) Prune(snap selection.Snapshot) {
	l.mu.Lock()
	var stale []string
	for root := range l.scopes {
		if !snap.Contains(root) {
			stale = append(stale, root)
		}
	}
	l.mu.Unlock()
	for _, root := range stale {
		l.Invalidate(root)
	}
}

// Scopes returns the number of live scopes.
func (l *Loader) Scopes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.scopes)
}

// Close cancels every scope. Later plans return no task.
func (l *Loader) Close() {
	l.cancel()
	l.mu.Lock()
	l.scopes = make(map[string]*scope)
	l.mu.Unlock()
	l.logEvent(LogLevelInfo, "loader_closed", nil)
}

// RunSync begins t, runs it on the calling goroutine and dispatches the
// completion. It returns the dispatch error of the completion, if any.
func RunSync(d Dispatcher, t Task) error {
	if !t.Begin(d) {
		return nil
	}
	a := t.Run()
	if a == nil {
		return nil
	}
	_, err := d.Dispatch(a)
	if errors.Is(err, state.ErrStaleResponse) {
		return nil
	}
	return err
}

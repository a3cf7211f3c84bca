package watcher

import (
	"context"
	"sync/atomic"

	"github.com/vanderheijden86/seltree/pkg/debug"
	"github.com/vanderheijden86/seltree/pkg/selection"
)

// Reloader applies the selection document to a selection set.
type Reloader struct {
	set      *selection.Set
	resolver selection.Resolver
	path     string
	onError  func(error)

	reloads atomic.Int64
}

// NewReloader returns a Reloader of the document at path. onError may be nil.
func NewReloader(set *selection.Set, r selection.Resolver, path string, onError func(error)) *Reloader {
	if onError == nil {
		onError = func(error) {}
	}
	return &Reloader{set: set, resolver: r, path: path, onError: onError}
}

// Reload reads the document once and replaces the selection with it.
func (r *Reloader) Reload(ctx context.Context) error {
	defer debug.LogEnterExit("watcher.Reload")()
	if err := r.set.LoadDocument(ctx, r.path, r.resolver); err != nil {
		return err
	}
	r.reloads.Add(1)
	return nil
}

// Reloads returns the number of successful reloads.
func (r *Reloader) Reloads() int64 {
	return r.reloads.Load()
}

// Run reloads on every change w reports until ctx is done. Reload errors go
// to the error callback and leave the previous selection in place.
func (r *Reloader) Run(ctx context.Context, w *Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.Changed():
			if err := r.Reload(ctx); err != nil {
				r.onError(err)
			}
		}
	}
}

package main

import (
	"fmt"
	"io"

	"github.com/vanderheijden86/seltree/pkg/reconcile"
	"github.com/vanderheijden86/seltree/pkg/relations"
	"github.com/vanderheijden86/seltree/pkg/selection"
	"github.com/vanderheijden86/seltree/pkg/state"
	"github.com/vanderheijden86/seltree/pkg/ui"
)

type dumpOptions struct {
	KeepTreeState bool
	MaxDepth      int
}

// runDump expands the whole selection tree, loading relations through the
// same loader and store as the TUI, and prints it as plain text.
func runDump(w io.Writer, st *state.Store, set *selection.Set, loader *relations.Loader, layers ui.LayerLookup, opts dumpOptions) error {
	rec := reconcile.New(reconcile.Options{KeepTreeState: opts.KeepTreeState})
	if _, ok := rec.Sync(st, set); !ok {
		return fmt.Errorf("selection did not settle")
	}
	if set.Snapshot().IsEmpty() {
		_, err := fmt.Fprintln(w, "Nothing selected.")
		return err
	}

	rows, err := ui.ExpandAll(st, set, loader, layers, ui.ExpandOptions{MaxDepth: opts.MaxDepth})
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, ui.RenderPlain(rows))
	return err
}

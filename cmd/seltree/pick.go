package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/vanderheijden86/seltree/pkg/model"
	"github.com/vanderheijden86/seltree/pkg/selection"
)

// featureLister is the part of the datasource the picker reads.
type featureLister interface {
	Layers(ctx context.Context) ([]model.Layer, error)
	LayerFeatures(ctx context.Context, layerID string) (model.FeatureSet, error)
}

// newForm creates a form with appropriate settings based on TTY detection
func newForm(groups ...*huh.Group) *huh.Form {
	form := huh.NewForm(groups...).WithTheme(huh.ThemeDracula())
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		form = form.WithAccessible(true)
	}
	return form
}

// runPick lets the user choose features and writes them as the selection
// document at path. A running seltree picks the change up.
func runPick(ctx context.Context, src featureLister, path string) error {
	current, err := selection.ReadDocument(path)
	if err != nil {
		log.Printf("warning: %v", err)
	}
	options, err := pickOptions(ctx, src, current)
	if err != nil {
		return err
	}
	if len(options) == 0 {
		return fmt.Errorf("the database has no features")
	}

	var picked []string
	form := newForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Select features").
				Description("space to toggle, / to filter, enter to save").
				Options(options...).
				Filterable(true).
				Height(16).
				Value(&picked),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			fmt.Println("Selection unchanged")
			return nil
		}
		return err
	}

	doc, err := documentFromPicks(picked)
	if err != nil {
		return err
	}
	if err := selection.WriteDocument(path, doc); err != nil {
		return err
	}
	fmt.Printf("Selected %d features in %d layers → %s\n", len(picked), len(doc.Layers), path)
	return nil
}

// pickOptions lists every feature as an option keyed by its gisId. Features
// already in current start selected.
func pickOptions(ctx context.Context, src featureLister, current selection.Document) ([]huh.Option[string], error) {
	selected := make(map[string]bool)
	for _, l := range current.Layers {
		for _, oid := range l.ObjectIDs {
			selected[model.FeatureGisID(l.LayerID, oid)] = true
		}
	}

	layers, err := src.Layers(ctx)
	if err != nil {
		return nil, err
	}
	var options []huh.Option[string]
	for _, l := range layers {
		fs, err := src.LayerFeatures(ctx, l.ID)
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", l.ID, err)
		}
		title := l.Title
		if title == "" {
			title = l.ID
		}
		for _, f := range fs.Features {
			gis := f.GisID()
			label := fmt.Sprintf("%s · %s", title, f.Label(l.DisplayField))
			options = append(options, huh.NewOption(label, gis).Selected(selected[gis]))
		}
	}
	return options, nil
}

// documentFromPicks groups picked gisIds per layer, keeping the order in
// which layers first appear.
func documentFromPicks(picks []string) (selection.Document, error) {
	var doc selection.Document
	index := make(map[string]int)
	for _, gis := range picks {
		layerID, oid, err := model.ParseFeatureGisID(gis)
		if err != nil {
			return selection.Document{}, err
		}
		i, ok := index[layerID]
		if !ok {
			i = len(doc.Layers)
			index[layerID] = i
			doc.Layers = append(doc.Layers, selection.DocumentLayer{LayerID: layerID})
		}
		doc.Layers[i].ObjectIDs = append(doc.Layers[i].ObjectIDs, oid)
	}
	return doc, nil
}

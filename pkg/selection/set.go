// Package selection holds the live selection set: per-layer feature groups
// that other parts of the application replace, extend or clear at any time.
// Readers never see the set itself, only immutable versioned snapshots.
package selection

import (
	"strings"
	"sync"

	"github.com/vanderheijden86/seltree/pkg/model"
)

// Group is the selected features of one layer or table. Pending is set
// while the owning layer is still resolving its selection.
type Group struct {
	Layer    model.Layer
	Features model.FeatureSet
	Pending  bool
}

// Snapshot is an immutable view of the selection set. Version increases with
// every change of the set.
type Snapshot struct {
	Version uint64
	Groups  []Group
}

// Source provides snapshots of a live selection set.
type Source interface {
	Snapshot() Snapshot
}

// IsEmpty reports whether no layer has a group.
func (s Snapshot) IsEmpty() bool {
	return len(s.Groups) == 0
}

// Group returns the group of layerID.
func (s Snapshot) Group(layerID string) (Group, bool) {
	for _, g := range s.Groups {
		if g.Layer.ID == layerID {
			return g, true
		}
	}
	return Group{}, false
}

// Contains reports whether the feature gisID is in any group.
func (s Snapshot) Contains(gisID string) bool {
	for _, g := range s.Groups {
		if g.Features.Contains(gisID) {
			return true
		}
	}
	return false
}

// LayerIDs returns the layer ids in group order.
func (s Snapshot) LayerIDs() []string {
	ids := make([]string, len(s.Groups))
	for i, g := range s.Groups {
		ids[i] = g.Layer.ID
	}
	return ids
}

// MatchLayer finds the group whose layer id prefixes the composite id, that
// is id equals the layer id or continues with "_". The longest match wins so
// that layer ids sharing a prefix resolve correctly.
func (s Snapshot) MatchLayer(id string) (Group, string, bool) {
	var (
		best  Group
		found bool
	)
	for _, g := range s.Groups {
		lid := g.Layer.ID
		if id != lid && !strings.HasPrefix(id, lid+"_") {
			continue
		}
		if !found || len(lid) > len(best.Layer.ID) {
			best, found = g, true
		}
	}
	if !found {
		return Group{}, "", false
	}
	return best, strings.TrimPrefix(strings.TrimPrefix(id, best.Layer.ID), "_"), true
}

// Set is a mutable, concurrency-safe selection set. Groups keep the order in
// which their layers were first selected.
type Set struct {
	mu        sync.RWMutex
	groups    []Group
	version   uint64
	listeners map[int]func(Snapshot)
	nextID    int
}

// NewSet returns an empty selection set.
func NewSet() *Set {
	return &Set{listeners: make(map[int]func(Snapshot))}
}

// Snapshot returns the current contents.
func (s *Set) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Version: s.version, Groups: s.groups}
}

// Subscribe registers fn to run after every change and returns a function
// that removes it.
func (s *Set) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listeners == nil {
		s.listeners = make(map[int]func(Snapshot))
	}
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// update runs fn on a private copy of the groups and publishes the result
// when fn reports a change.
func (s *Set) update(fn func(groups []Group) ([]Group, bool)) {
	s.mu.Lock()
	groups, changed := fn(append([]Group(nil), s.groups...))
	if !changed {
		s.mu.Unlock()
		return
	}
	s.groups = groups
	s.version++
	snap := Snapshot{Version: s.version, Groups: groups}
	notify := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		notify = append(notify, fn)
	}
	s.mu.Unlock()

	for _, fn := range notify {
		fn(snap)
	}
}

// Replace swaps the whole selection. Groups without features and without a
// pending flag are dropped.
func (s *Set) Replace(groups []Group) {
	s.update(func([]Group) ([]Group, bool) {
		out := make([]Group, 0, len(groups))
		for _, g := range groups {
			if g.Features.IsEmpty() && !g.Pending {
				continue
			}
			out = append(out, copyGroup(g))
		}
		return out, true
	})
}

// Add selects features of layer, keeping existing ones. Features already
// selected are ignored.
func (s *Set) Add(layer model.Layer, features ...model.Feature) {
	s.update(func(groups []Group) ([]Group, bool) {
		i := indexOf(groups, layer.ID)
		if i < 0 {
			if len(features) == 0 {
				return groups, false
			}
			g := Group{Layer: layer, Features: model.FeatureSet{GeometryType: layer.GeometryType}}
			groups = append(groups, g)
			i = len(groups) - 1
		}
		g := copyGroup(groups[i])
		changed := false
		for _, f := range features {
			if g.Features.Contains(f.GisID()) {
				continue
			}
			g.Features.Features = append(g.Features.Features, f)
			changed = true
		}
		if g.Pending {
			g.Pending = false
			changed = true
		}
		groups[i] = g
		return groups, changed
	})
}

// Remove deselects the features with the given gisIds. A group left without
// features is dropped.
func (s *Set) Remove(gisIDs ...string) {
	drop := make(map[string]struct{}, len(gisIDs))
	for _, id := range gisIDs {
		drop[id] = struct{}{}
	}
	s.update(func(groups []Group) ([]Group, bool) {
		changed := false
		out := groups[:0]
		for _, g := range groups {
			kept := make([]model.Feature, 0, g.Features.Len())
			for _, f := range g.Features.Features {
				if _, ok := drop[f.GisID()]; ok {
					changed = true
					continue
				}
				kept = append(kept, f)
			}
			if len(kept) == 0 && !g.Pending {
				continue
			}
			g.Features.Features = kept
			out = append(out, g)
		}
		return out, changed
	})
}

// SetPending marks the group of layer as loading, creating it if needed.
func (s *Set) SetPending(layer model.Layer, pending bool) {
	s.update(func(groups []Group) ([]Group, bool) {
		i := indexOf(groups, layer.ID)
		switch {
		case i < 0 && !pending:
			return groups, false
		case i < 0:
			return append(groups, Group{Layer: layer, Pending: true, Features: model.FeatureSet{GeometryType: layer.GeometryType}}), true
		case groups[i].Pending == pending:
			return groups, false
		}
		g := copyGroup(groups[i])
		g.Pending = pending
		if !pending && g.Features.IsEmpty() {
			return append(groups[:i], groups[i+1:]...), true
		}
		groups[i] = g
		return groups, true
	})
}

// ClearLayer removes the group of layerID.
func (s *Set) ClearLayer(layerID string) {
	s.update(func(groups []Group) ([]Group, bool) {
		i := indexOf(groups, layerID)
		if i < 0 {
			return groups, false
		}
		return append(groups[:i], groups[i+1:]...), true
	})
}

// Clear removes every group.
func (s *Set) Clear() {
	s.update(func(groups []Group) ([]Group, bool) {
		return nil, len(groups) > 0
	})
}

func indexOf(groups []Group, layerID string) int {
	for i, g := range groups {
		if g.Layer.ID == layerID {
			return i
		}
	}
	return -1
}

func copyGroup(g Group) Group {
	g.Features.Features = append([]model.Feature(nil), g.Features.Features...)
	return g
}

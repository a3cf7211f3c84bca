package state

import "sort"

// idSeparator joins a parent id and a gisId into a composite node id.
const idSeparator = "_"

// ChildID returns the composite id of the child gisID under parentID.
// An empty parentID yields a root id, which is the gisId itself.
func ChildID(parentID, gisID string) string {
	if parentID == "" {
		return gisID
	}
	return parentID + idSeparator + gisID
}

// NodeDef identifies a node to toggle. ParentID is empty for roots.
type NodeDef struct {
	ID       string `json:"id"`
	GisID    string `json:"gis_id"`
	ParentID string `json:"parent_id,omitempty"`
}

// TreeNode is the expand/collapse state of one row of the selection tree.
type TreeNode struct {
	ID       string
	GisID    string
	ParentID string
	Expanded bool

	children []string          // child ids in insertion (render) order
	byGis    map[string]string // child gisId -> child id
}

// Children returns the ids of the node's children in render order.
func (n TreeNode) Children() []string {
	out := make([]string, len(n.children))
	copy(out, n.children)
	return out
}

// ChildByGisID returns the id of the child representing gisID.
func (n TreeNode) ChildByGisID(gisID string) (string, bool) {
	id, ok := n.byGis[gisID]
	return id, ok
}

func (n *TreeNode) clone() *TreeNode {
	c := *n
	c.children = append([]string(nil), n.children...)
	c.byGis = make(map[string]string, len(n.byGis))
	for k, v := range n.byGis {
		c.byGis[k] = v
	}
	return &c
}

// Tree holds the expansion state of the selection tree.
//
// Nodes live in a flat arena indexed by composite id, so lookups are O(1);
// the parent/child links only preserve render order. A Tree is a value:
// every mutating method returns a new Tree and leaves the receiver intact.
type Tree struct {
	roots   []string
	rootGis map[string]string
	nodes   map[string]*TreeNode
	version uint64
}

// Version increases with every effective change.
func (t Tree) Version() uint64 { return t.version }

// Len returns the number of nodes in the tree.
func (t Tree) Len() int { return len(t.nodes) }

// Node returns a copy of the node with the given composite id.
func (t Tree) Node(id string) (TreeNode, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return TreeNode{}, false
	}
	return *n.clone(), true
}

// Has reports whether a node with the given composite id exists.
func (t Tree) Has(id string) bool {
	_, ok := t.nodes[id]
	return ok
}

// IsExpanded reports whether the node exists and is expanded.
func (t Tree) IsExpanded(id string) bool {
	n, ok := t.nodes[id]
	return ok && n.Expanded
}

// Roots returns the root ids in render order.
func (t Tree) Roots() []string {
	return append([]string(nil), t.roots...)
}

// Children returns the child ids of id in render order, or nil for an
// unknown node.
func (t Tree) Children(id string) []string {
	n, ok := t.nodes[id]
	if !ok {
		return nil
	}
	return append([]string(nil), n.children...)
}

// RootByGisID returns the id of the root representing gisID.
func (t Tree) RootByGisID(gisID string) (string, bool) {
	id, ok := t.rootGis[gisID]
	return id, ok
}

// Walk visits nodes depth-first in render order. Returning false from fn
// skips the node's subtree.
func (t Tree) Walk(fn func(n TreeNode, depth int) bool) {
	var visit func(id string, depth int)
	visit = func(id string, depth int) {
		n, ok := t.nodes[id]
		if !ok {
			return
		}
		if !fn(*n, depth) {
			return
		}
		for _, c := range n.children {
			visit(c, depth+1)
		}
	}
	for _, r := range t.roots {
		visit(r, 0)
	}
}

// ExpandedDefs returns the definitions of every expanded node in render
// order, parents before children.
func (t Tree) ExpandedDefs() []NodeDef {
	var defs []NodeDef
	t.Walk(func(n TreeNode, _ int) bool {
		if n.Expanded {
			defs = append(defs, NodeDef{ID: n.ID, GisID: n.GisID, ParentID: n.ParentID})
		}
		return true
	})
	return defs
}

// IDs returns every node id, sorted.
func (t Tree) IDs() []string {
	ids := make([]string, 0, len(t.nodes))
	for id := range t.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// mutable returns a shallow copy whose index can be modified without
// touching t. Nodes are still shared and must be cloned before mutation.
func (t Tree) mutable() Tree {
	nt := Tree{
		roots:   append([]string(nil), t.roots...),
		rootGis: make(map[string]string, len(t.rootGis)),
		nodes:   make(map[string]*TreeNode, len(t.nodes)+1),
		version: t.version + 1,
	}
	for k, v := range t.rootGis {
		nt.rootGis[k] = v
	}
	for k, v := range t.nodes {
		nt.nodes[k] = v
	}
	return nt
}

// removeSubtree drops id and its descendants from the index of a mutable tree.
func (t *Tree) removeSubtree(id string) {
	n, ok := t.nodes[id]
	if !ok {
		return
	}
	for _, c := range n.children {
		t.removeSubtree(c)
	}
	delete(t.nodes, id)
}

// ToggleExpand flips the node at def.ID, or creates it expanded when it does
// not exist yet. New nodes go to the root level when def.ParentID is empty,
// otherwise under the parent; an unknown parent leaves the tree unchanged and
// returns ErrMissingParent.
func (t Tree) ToggleExpand(def NodeDef) (Tree, error) {
	if def.ID == "" || def.GisID == "" {
		return t, ErrInvalidNode
	}
	if n, ok := t.nodes[def.ID]; ok {
		nt := t.mutable()
		c := n.clone()
		c.Expanded = !c.Expanded
		nt.nodes[def.ID] = c
		return nt, nil
	}

	node := &TreeNode{
		ID:       def.ID,
		GisID:    def.GisID,
		ParentID: def.ParentID,
		Expanded: true,
		byGis:    make(map[string]string),
	}

	if def.ParentID == "" {
		nt := t.mutable()
		if old, ok := nt.rootGis[def.GisID]; ok {
			nt.removeSubtree(old)
			nt.roots = replaceID(nt.roots, old, def.ID)
		} else {
			nt.roots = append(nt.roots, def.ID)
		}
		nt.rootGis[def.GisID] = def.ID
		nt.nodes[def.ID] = node
		return nt, nil
	}

	parent, ok := t.nodes[def.ParentID]
	if !ok {
		return t, ErrMissingParent
	}
	nt := t.mutable()
	p := parent.clone()
	if old, ok := p.byGis[def.GisID]; ok {
		nt.removeSubtree(old)
		p.children = replaceID(p.children, old, def.ID)
	} else {
		p.children = append(p.children, def.ID)
	}
	p.byGis[def.GisID] = def.ID
	nt.nodes[def.ParentID] = p
	nt.nodes[def.ID] = node
	return nt, nil
}

// CloseMultiple collapses every listed node that is currently expanded,
// together with all of its descendants. Nodes are never removed, so
// re-expanding restores the previous children. Unknown or already collapsed
// ids are ignored. The second result reports whether anything changed.
func (t Tree) CloseMultiple(ids []string) (Tree, bool) {
	var (
		nt      Tree
		changed bool
	)
	lookup := func(id string) (*TreeNode, bool) {
		if changed {
			n, ok := nt.nodes[id]
			return n, ok
		}
		n, ok := t.nodes[id]
		return n, ok
	}
	for _, id := range ids {
		n, ok := lookup(id)
		if !ok || !n.Expanded {
			continue
		}
		stack := []string{id}
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			cn, ok := lookup(cur)
			if !ok {
				continue
			}
			if cn.Expanded {
				if !changed {
					nt = t.mutable()
					changed = true
				}
				c := cn.clone()
				c.Expanded = false
				nt.nodes[cur] = c
			}
			stack = append(stack, cn.children...)
		}
	}
	if !changed {
		return t, false
	}
	return nt, true
}

// Clear returns an empty tree whose version is still ahead of t.
func (t Tree) Clear() Tree {
	return Tree{version: t.version + 1}
}

func replaceID(ids []string, old, repl string) []string {
	for i, id := range ids {
		if id == old {
			ids[i] = repl
			return ids
		}
	}
	return append(ids, repl)
}

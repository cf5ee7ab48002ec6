// Package quadtree partitions the logical fog grid into regions of uniform fog type.
//
// Nodes live in a fixed array sized at construction; node i has children 4i+1..4i+4
// (bottom-left, bottom-right, top-left, top-right), so indices are stable and no
// per-node allocation happens after New.
package quadtree

import (
	"github.com/Faultbox/fogofwar/internal/fog"
)

// Point is an integer cell coordinate.
type Point struct {
	X, Z int
}

// AABB is an axis-aligned cell rectangle. Min is inclusive, Max is exclusive.
type AABB struct {
	Min Point
	Max Point
}

// NewAABB returns the rectangle [minX, maxX) x [minZ, maxZ).
func NewAABB(minX, minZ, maxX, maxZ int) AABB {
	return AABB{Min: Point{minX, minZ}, Max: Point{maxX, maxZ}}
}

// Empty reports whether the rectangle covers no cells.
func (b AABB) Empty() bool {
	return b.Max.X <= b.Min.X || b.Max.Z <= b.Min.Z
}

// Contains reports whether other lies entirely inside b.
func (b AABB) Contains(other AABB) bool {
	return b.Min.X <= other.Min.X && b.Min.Z <= other.Min.Z &&
		b.Max.X >= other.Max.X && b.Max.Z >= other.Max.Z
}

// Intersects reports whether b and other share at least one cell.
func (b AABB) Intersects(other AABB) bool {
	return b.Min.X < other.Max.X && other.Min.X < b.Max.X &&
		b.Min.Z < other.Max.Z && other.Min.Z < b.Max.Z
}

// ContainsPoint reports whether cell p lies inside b.
func (b AABB) ContainsPoint(p Point) bool {
	return p.X >= b.Min.X && p.X < b.Max.X && p.Z >= b.Min.Z && p.Z < b.Max.Z
}

// Width returns the X extent in cells.
func (b AABB) Width() int { return b.Max.X - b.Min.X }

// Height returns the Z extent in cells.
func (b AABB) Height() int { return b.Max.Z - b.Min.Z }

const (
	flagExists uint8 = 1 << iota
	flagLeaf
	flagDirty
	flagQueued // index is present in Tree.dirty
)

type node struct {
	bounds AABB
	typ    fog.Type
	flags  uint8
	depth  uint8
}

// Tree is an array-backed quadtree over [0, width) x [0, height) cells.
//
// Tree is not safe for concurrent use; callers serialize access.
type Tree struct {
	nodes    []node
	dirty    []int32 // pending dirty node indices, no duplicates
	leafSize int
	maxDepth int
}

// New creates a tree covering width x height cells that never splits below leafSize.
// The root starts as a dirty Locked leaf.
func New(width, height, leafSize int) *Tree {
	if leafSize < 1 {
		leafSize = 1
	}
	width = max(width, 1)
	height = max(height, 1)

	depth := 0
	for sw, sh := width, height; sw > leafSize || sh > leafSize; depth++ {
		sw = (sw + 1) / 2
		sh = (sh + 1) / 2
	}

	capacity := (pow4(depth+1) - 1) / 3
	t := &Tree{
		nodes:    make([]node, capacity),
		leafSize: leafSize,
		maxDepth: depth,
	}
	t.nodes[0] = node{
		bounds: NewAABB(0, 0, width, height),
		typ:    fog.Locked,
		flags:  flagExists | flagLeaf,
	}
	t.markDirty(0)
	return t
}

func pow4(n int) int {
	return 1 << (2 * n)
}

// NodeCapacity returns the fixed length of the node array.
func (t *Tree) NodeCapacity() int { return len(t.nodes) }

// Depth returns the deepest level a node can reach (root = 0).
func (t *Tree) Depth() int { return t.maxDepth }

// LeafSize returns the minimum leaf extent in cells.
func (t *Tree) LeafSize() int { return t.leafSize }

// Bounds returns the rectangle covered by the root.
func (t *Tree) Bounds() AABB { return t.nodes[0].bounds }

func (t *Tree) valid(i int) bool {
	return i >= 0 && i < len(t.nodes)
}

func (t *Tree) has(i int, flag uint8) bool {
	return t.valid(i) && t.nodes[i].flags&flag != 0
}

// Exists reports whether node i has been created.
func (t *Tree) Exists(i int) bool { return t.has(i, flagExists) }

// IsLeaf reports whether node i exists and is not subdivided.
func (t *Tree) IsLeaf(i int) bool { return t.has(i, flagExists) && t.has(i, flagLeaf) }

// IsDirty reports whether node i needs its mesh regenerated (or discarded, for internal nodes).
func (t *Tree) IsDirty(i int) bool { return t.has(i, flagDirty) }

// GetNodeType returns the fog type of node i. Only meaningful for leaves.
func (t *Tree) GetNodeType(i int) fog.Type {
	if !t.Exists(i) {
		return fog.Default
	}
	return t.nodes[i].typ
}

// GetNodeBounds returns the cell rectangle of node i (max exclusive).
func (t *Tree) GetNodeBounds(i int) (min, max Point) {
	if !t.Exists(i) {
		return Point{}, Point{}
	}
	b := t.nodes[i].bounds
	return b.Min, b.Max
}

// MarkRebuilt clears the dirty flag of node i.
func (t *Tree) MarkRebuilt(i int) {
	if t.valid(i) {
		t.nodes[i].flags &^= flagDirty
	}
}

func (t *Tree) markDirty(i int) {
	n := &t.nodes[i]
	n.flags |= flagDirty
	if n.flags&flagQueued != 0 {
		return
	}
	n.flags |= flagQueued
	t.dirty = append(t.dirty, int32(i))
}

// DirtyNodes returns the indices of nodes currently flagged dirty, each once, in the
// order they were first flagged. Cost is proportional to the number of dirty nodes,
// not to the node capacity.
func (t *Tree) DirtyNodes() []int {
	pending := t.dirty[:0]
	out := make([]int, 0, len(t.dirty))
	for _, i := range t.dirty {
		if t.nodes[i].flags&flagDirty == 0 {
			t.nodes[i].flags &^= flagQueued
			continue
		}
		pending = append(pending, i)
		out = append(out, int(i))
	}
	t.dirty = pending
	return out
}

// Insert paints aabb with fog type typ. Leaves straddling the edge of aabb are split
// down to the leaf size; at the leaf size they are painted whole. Every leaf whose type
// is (re)assigned and every node that splits is marked dirty.
func (t *Tree) Insert(aabb AABB, typ fog.Type) {
	if aabb.Empty() {
		return
	}
	t.insert(0, aabb, typ)
}

func (t *Tree) insert(i int, aabb AABB, typ fog.Type) {
	n := &t.nodes[i]
	if !n.bounds.Intersects(aabb) {
		return
	}

	leaf := n.flags&flagLeaf != 0
	if leaf && (aabb.Contains(n.bounds) || t.minimal(i)) {
		n.typ = typ
		t.markDirty(i)
		return
	}

	if leaf {
		t.split(i)
	}
	for q := 1; q <= 4; q++ {
		c := 4*i + q
		if t.Exists(c) {
			t.insert(c, aabb, typ)
		}
	}
}

// minimal reports whether node i cannot be split any further.
func (t *Tree) minimal(i int) bool {
	n := &t.nodes[i]
	w, h := n.bounds.Width(), n.bounds.Height()
	if w <= t.leafSize && h <= t.leafSize {
		return true
	}
	return int(n.depth) >= t.maxDepth || 4*i+4 >= len(t.nodes)
}

// split turns leaf i into an internal node with leaf children that inherit its type.
// A node one cell wide or tall splits along the other axis only; the empty
// quadrants are not created.
func (t *Tree) split(i int) {
	n := &t.nodes[i]
	b := n.bounds
	midX := b.Min.X + b.Width()/2
	midZ := b.Min.Z + b.Height()/2

	quads := [4]AABB{
		NewAABB(b.Min.X, b.Min.Z, midX, midZ), // bottom-left
		NewAABB(midX, b.Min.Z, b.Max.X, midZ), // bottom-right
		NewAABB(b.Min.X, midZ, midX, b.Max.Z), // top-left
		NewAABB(midX, midZ, b.Max.X, b.Max.Z), // top-right
	}

	for q, qb := range quads {
		if qb.Empty() {
			continue
		}
		c := 4*i + q + 1
		t.nodes[c] = node{
			bounds: qb,
			typ:    n.typ,
			flags:  flagExists | flagLeaf,
			depth:  n.depth + 1,
		}
		t.markDirty(c)
	}

	n.flags &^= flagLeaf
	t.markDirty(i)
}

// LeafAt returns the index of the leaf containing cell (x, z), or -1 outside the tree.
func (t *Tree) LeafAt(x, z int) int {
	p := Point{x, z}
	if !t.nodes[0].bounds.ContainsPoint(p) {
		return -1
	}
	i := 0
	for !t.IsLeaf(i) {
		next := -1
		for q := 1; q <= 4; q++ {
			c := 4*i + q
			if t.Exists(c) && t.nodes[c].bounds.ContainsPoint(p) {
				next = c
				break
			}
		}
		if next < 0 {
			return -1
		}
		i = next
	}
	return i
}

// Leaves returns the indices of all current leaves in array order.
func (t *Tree) Leaves() []int {
	var out []int
	for i := range t.nodes {
		if t.IsLeaf(i) {
			out = append(out, i)
		}
	}
	return out
}

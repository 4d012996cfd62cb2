// Package kdtree is a static three dimensional KD-tree answering nearest neighbour queries.
// The tree is built once over a fixed point set by recursive median split, cycling the split
// axis x, y, z with depth, and is read only afterwards.
package kdtree

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
)

type node struct {
	index       int
	axis        int
	left, right *node
}

// Tree is a KD-tree over a slice of points. Indices reported by queries refer to that slice.
type Tree struct {
	points []r3.Vector
	root   *node
}

// Neighbor is the result of a nearest neighbour query.
type Neighbor struct {
	Index    int
	Point    r3.Vector
	Distance float64
}

// New builds a tree over points. The slice is retained, not copied; do not modify it while
// the tree is in use.
func New(points []r3.Vector) *Tree {
	order := make([]int, len(points))
	for i := range order {
		order[i] = i
	}
	t := &Tree{points: points}
	t.root = t.build(order, 0)
	return t
}

func (t *Tree) build(order []int, depth int) *node {
	if len(order) == 0 {
		return nil
	}
	axis := depth % 3
	sort.Slice(order, func(i, j int) bool {
		return coord(t.points[order[i]], axis) < coord(t.points[order[j]], axis)
	})
	median := len(order) / 2
	return &node{
		index: order[median],
		axis:  axis,
		left:  t.build(order[:median], depth+1),
		right: t.build(order[median+1:], depth+1),
	}
}

// Len is the number of points in the tree.
func (t *Tree) Len() int {
	return len(t.points)
}

// Nearest returns the point closest to q. The second return is false for an empty tree and for
// a query no distance can be measured to, such as one with a NaN coordinate.
func (t *Tree) Nearest(q r3.Vector) (Neighbor, bool) {
	if t.root == nil {
		return Neighbor{}, false
	}
	best := Neighbor{Index: -1, Distance: math.Inf(1)}
	t.search(t.root, q, &best)
	if best.Index < 0 {
		return Neighbor{}, false
	}
	best.Point = t.points[best.Index]
	return best, true
}

func (t *Tree) search(n *node, q r3.Vector, best *Neighbor) {
	if n == nil {
		return
	}
	p := t.points[n.index]
	if d := p.Distance(q); d < best.Distance {
		best.Index = n.index
		best.Distance = d
	}

	diff := coord(q, n.axis) - coord(p, n.axis)
	near, far := n.left, n.right
	if diff >= 0 {
		near, far = n.right, n.left
	}
	t.search(near, q, best)
	// the far side can only hold something closer if the splitting plane is
	if math.Abs(diff) < best.Distance {
		t.search(far, q, best)
	}
}

func coord(v r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// Bounds is an axis aligned bounding box. The zero value is not usable; start from
// NewBounds so the first Extend sets both corners.
type Bounds struct {
	Min, Max r3.Vector
}

// NewBounds returns an inverted (empty) box that grows on Extend.
func NewBounds() Bounds {
	return Bounds{
		Min: r3.Vector{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64},
		Max: r3.Vector{X: -math.MaxFloat64, Y: -math.MaxFloat64, Z: -math.MaxFloat64},
	}
}

// BoundsOf returns the bounding box of the given vertices.
func BoundsOf(vs []Vertex) Bounds {
	b := NewBounds()
	for _, v := range vs {
		b.Extend(v.Vector())
	}
	return b
}

// Extend grows the box to contain p.
func (b *Bounds) Extend(p r3.Vector) {
	b.Min.X = math.Min(b.Min.X, p.X)
	b.Min.Y = math.Min(b.Min.Y, p.Y)
	b.Min.Z = math.Min(b.Min.Z, p.Z)
	b.Max.X = math.Max(b.Max.X, p.X)
	b.Max.Y = math.Max(b.Max.Y, p.Y)
	b.Max.Z = math.Max(b.Max.Z, p.Z)
}

// Empty is true until the box has been extended at least once.
func (b Bounds) Empty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Size returns the extent of the box along each axis.
func (b Bounds) Size() r3.Vector {
	if b.Empty() {
		return r3.Vector{}
	}
	return b.Max.Sub(b.Min)
}

// Center returns the midpoint of the box.
func (b Bounds) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Degenerate is true when the box has zero extent along any axis, i.e. it encloses no volume.
func (b Bounds) Degenerate() bool {
	s := b.Size()
	return s.X <= 0 || s.Y <= 0 || s.Z <= 0
}

// Expand returns a copy of the box grown by margin on every side.
func (b Bounds) Expand(margin float64) Bounds {
	m := r3.Vector{X: margin, Y: margin, Z: margin}
	return Bounds{Min: b.Min.Sub(m), Max: b.Max.Add(m)}
}

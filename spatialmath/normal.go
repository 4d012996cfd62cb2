package spatialmath

import (
	"github.com/golang/geo/r3"
)

// DefaultNormal is returned for degenerate triangles whose edges have a zero length cross
// product, so a normal is always a unit vector and never NaN.
var DefaultNormal = r3.Vector{X: 0, Y: 0, Z: 1}

// PlaneNormal returns the unit normal of the plane through p0, p1 and p2 following the right
// hand rule: (p1-p0) x (p2-p0). Counter-clockwise winding seen from the tip of the normal.
func PlaneNormal(p0, p1, p2 r3.Vector) r3.Vector {
	n := p1.Sub(p0).Cross(p2.Sub(p0))
	norm := n.Norm()
	if norm == 0 {
		return DefaultNormal
	}
	return n.Mul(1 / norm)
}

// TriangleArea returns the area of the triangle p0, p1, p2.
func TriangleArea(p0, p1, p2 r3.Vector) float64 {
	return p1.Sub(p0).Cross(p2.Sub(p0)).Norm() / 2
}

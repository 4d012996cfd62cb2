// Package spatialmath defines the single precision point type shared by meshes and point
// clouds, plus the small amount of vector math built on top of it.
package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// Vertex is a point in 3D space stored in single precision, which is the precision every
// supported file format carries. Vertices compare (and hash as map keys) by exact coordinate
// match: two coincident points that are not bit identical are distinct vertices.
type Vertex struct {
	X, Y, Z float32
}

// NewVertex returns a Vertex from float64 components.
func NewVertex(x, y, z float64) Vertex {
	return Vertex{X: float32(x), Y: float32(y), Z: float32(z)}
}

// VertexFromVector narrows an r3.Vector to a Vertex.
func VertexFromVector(v r3.Vector) Vertex {
	return NewVertex(v.X, v.Y, v.Z)
}

// Vector widens the vertex to an r3.Vector so math is done in double precision.
func (v Vertex) Vector() r3.Vector {
	return r3.Vector{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// Compare orders vertices lexicographically by x, then y, then z. It returns -1, 0 or 1.
func (v Vertex) Compare(o Vertex) int {
	switch {
	case v.X < o.X:
		return -1
	case v.X > o.X:
		return 1
	case v.Y < o.Y:
		return -1
	case v.Y > o.Y:
		return 1
	case v.Z < o.Z:
		return -1
	case v.Z > o.Z:
		return 1
	}
	return 0
}

// Less reports whether v sorts before o in the lexicographic order used by EdgeKey.
func (v Vertex) Less(o Vertex) bool {
	return v.Compare(o) < 0
}

// Distance returns the euclidean distance between two vertices.
func (v Vertex) Distance(o Vertex) float64 {
	return v.Vector().Distance(o.Vector())
}

// IsFinite is false when any coordinate is NaN or infinite.
func (v Vertex) IsFinite() bool {
	for _, c := range [3]float32{v.X, v.Y, v.Z} {
		f := float64(c)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

func (v Vertex) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

// Vectors converts a slice of vertices into r3 vectors.
func Vectors(vs []Vertex) []r3.Vector {
	out := make([]r3.Vector, len(vs))
	for i, v := range vs {
		out[i] = v.Vector()
	}
	return out
}

// Package mesh defines an indexed triangle mesh: a vertex buffer plus triangles stored as index
// triples into it. Moving a vertex moves the corresponding corner of every triangle referencing
// its index; there is no other aliasing.
package mesh

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/meshproc/spatialmath"
)

// ErrBrokenClosure is returned when a triangle references a vertex outside the mesh's vertex
// buffer. It indicates a programming error in whatever built the mesh.
var ErrBrokenClosure = errors.New("triangle references a vertex that is not in the mesh")

// ErrNilMesh is returned by operations handed a nil mesh.
var ErrNilMesh = errors.New("mesh is nil")

// Triangle is three vertex indices plus a cached normal.
type Triangle struct {
	V [3]int

	normal    r3.Vector
	hasNormal bool
}

// NewTriangle returns a triangle over the vertex indices a, b and c.
func NewTriangle(a, b, c int) Triangle {
	return Triangle{V: [3]int{a, b, c}}
}

// Has reports whether the triangle references vertex index v.
func (t Triangle) Has(v int) bool {
	return t.V[0] == v || t.V[1] == v || t.V[2] == v
}

// SharedVertices counts the vertex indices two triangles have in common.
func (t Triangle) SharedVertices(o Triangle) int {
	shared := 0
	for _, a := range t.V {
		for _, b := range o.V {
			if a == b {
				shared++
			}
		}
	}
	return shared
}

// Mesh is an ordered vertex buffer and an ordered triangle list.
type Mesh struct {
	Vertices  []spatialmath.Vertex
	Triangles []Triangle
}

// New returns an empty mesh.
func New() *Mesh {
	return &Mesh{}
}

// NewFromIndexed builds a mesh from a vertex buffer and index triples, validating closure.
func NewFromIndexed(vertices []spatialmath.Vertex, faces [][3]int) (*Mesh, error) {
	m := &Mesh{
		Vertices:  vertices,
		Triangles: make([]Triangle, 0, len(faces)),
	}
	for _, f := range faces {
		m.Triangles = append(m.Triangles, NewTriangle(f[0], f[1], f[2]))
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// AddVertex appends v and returns its index.
func (m *Mesh) AddVertex(v spatialmath.Vertex) int {
	m.Vertices = append(m.Vertices, v)
	return len(m.Vertices) - 1
}

// AddTriangle appends a triangle over existing vertex indices.
func (m *Mesh) AddTriangle(a, b, c int) error {
	t := NewTriangle(a, b, c)
	for _, idx := range t.V {
		if idx < 0 || idx >= len(m.Vertices) {
			return errors.Wrapf(ErrBrokenClosure, "index %d with %d vertices", idx, len(m.Vertices))
		}
	}
	m.Triangles = append(m.Triangles, t)
	return nil
}

// Validate checks the closure invariant: every triangle index is a member of the vertex buffer.
func (m *Mesh) Validate() error {
	if m == nil {
		return ErrNilMesh
	}
	for i, t := range m.Triangles {
		for _, idx := range t.V {
			if idx < 0 || idx >= len(m.Vertices) {
				return errors.Wrapf(ErrBrokenClosure, "triangle %d references vertex %d (have %d)", i, idx, len(m.Vertices))
			}
		}
	}
	return nil
}

// IsEmpty is true when the mesh has no triangles. A mesh with vertices but no triangles carries
// no surface.
func (m *Mesh) IsEmpty() bool {
	return len(m.Triangles) == 0
}

// Clear drops every vertex and triangle, keeping the Mesh value itself.
func (m *Mesh) Clear() {
	m.Vertices = nil
	m.Triangles = nil
}

// Clone returns a deep copy.
func (m *Mesh) Clone() *Mesh {
	out := &Mesh{
		Vertices:  make([]spatialmath.Vertex, len(m.Vertices)),
		Triangles: make([]Triangle, len(m.Triangles)),
	}
	copy(out.Vertices, m.Vertices)
	copy(out.Triangles, m.Triangles)
	return out
}

// ReplaceWith makes m hold o's contents while keeping m's identity.
func (m *Mesh) ReplaceWith(o *Mesh) {
	m.Vertices = o.Vertices
	m.Triangles = o.Triangles
}

// Equal compares vertex buffers and triangle index triples; cached normals are ignored.
func (m *Mesh) Equal(o *Mesh) bool {
	if len(m.Vertices) != len(o.Vertices) || len(m.Triangles) != len(o.Triangles) {
		return false
	}
	for i := range m.Vertices {
		if m.Vertices[i] != o.Vertices[i] {
			return false
		}
	}
	for i := range m.Triangles {
		if m.Triangles[i].V != o.Triangles[i].V {
			return false
		}
	}
	return true
}

// Corners returns the positions of triangle i's three vertices.
func (m *Mesh) Corners(i int) (r3.Vector, r3.Vector, r3.Vector) {
	t := m.Triangles[i]
	return m.Vertices[t.V[0]].Vector(), m.Vertices[t.V[1]].Vector(), m.Vertices[t.V[2]].Vector()
}

// Bounds returns the bounding box of the vertex buffer.
func (m *Mesh) Bounds() spatialmath.Bounds {
	return spatialmath.BoundsOf(m.Vertices)
}

func (m *Mesh) String() string {
	return fmt.Sprintf("mesh(vertices=%d, triangles=%d)", len(m.Vertices), len(m.Triangles))
}

package mesh

import (
	"go.viam.com/meshproc/spatialmath"
)

// cubeFaces winds every face counter-clockwise seen from outside so normals point outward.
var cubeFaces = [12][3]int{
	{0, 2, 1}, {0, 3, 2}, // z = 0
	{4, 5, 6}, {4, 6, 7}, // z = 1
	{0, 1, 5}, {0, 5, 4}, // y = 0
	{3, 7, 6}, {3, 6, 2}, // y = 1
	{0, 4, 7}, {0, 7, 3}, // x = 0
	{1, 2, 6}, {1, 6, 5}, // x = 1
}

// NewCube returns a closed axis aligned cube with 8 vertices and 12 outward facing triangles.
func NewCube(origin spatialmath.Vertex, size float32) *Mesh {
	o := origin
	m := &Mesh{Vertices: []spatialmath.Vertex{
		{X: o.X, Y: o.Y, Z: o.Z},
		{X: o.X + size, Y: o.Y, Z: o.Z},
		{X: o.X + size, Y: o.Y + size, Z: o.Z},
		{X: o.X, Y: o.Y + size, Z: o.Z},
		{X: o.X, Y: o.Y, Z: o.Z + size},
		{X: o.X + size, Y: o.Y, Z: o.Z + size},
		{X: o.X + size, Y: o.Y + size, Z: o.Z + size},
		{X: o.X, Y: o.Y + size, Z: o.Z + size},
	}}
	for _, f := range cubeFaces {
		m.Triangles = append(m.Triangles, NewTriangle(f[0], f[1], f[2]))
	}
	m.ComputeNormals()
	return m
}

// NewGrid returns an open, flat n by n grid of unit squares in the z = 0 plane, each split into
// two triangles. Its outer ring of vertices is the boundary.
func NewGrid(n int) *Mesh {
	m := New()
	for y := 0; y <= n; y++ {
		for x := 0; x <= n; x++ {
			m.AddVertex(spatialmath.Vertex{X: float32(x), Y: float32(y)})
		}
	}
	idx := func(x, y int) int { return y*(n+1) + x }
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			a, b, c, d := idx(x, y), idx(x+1, y), idx(x+1, y+1), idx(x, y+1)
			m.Triangles = append(m.Triangles, NewTriangle(a, b, c), NewTriangle(a, c, d))
		}
	}
	m.ComputeNormals()
	return m
}

// Merge appends o's vertices and triangles to m, offsetting o's indices.
func (m *Mesh) Merge(o *Mesh) {
	offset := len(m.Vertices)
	m.Vertices = append(m.Vertices, o.Vertices...)
	for _, t := range o.Triangles {
		nt := t
		nt.V = [3]int{t.V[0] + offset, t.V[1] + offset, t.V[2] + offset}
		m.Triangles = append(m.Triangles, nt)
	}
}

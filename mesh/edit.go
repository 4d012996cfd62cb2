package mesh

import (
	"math"

	"go.viam.com/meshproc/spatialmath"
)

// RetainVertices keeps the vertices for which keep returns true, drops every triangle that
// references a dropped vertex and re-indexes the survivors. Vertex order is preserved.
func (m *Mesh) RetainVertices(keep func(v int) bool) {
	remap := make([]int, len(m.Vertices))
	vertices := m.Vertices[:0:0]
	for i, v := range m.Vertices {
		if keep(i) {
			remap[i] = len(vertices)
			vertices = append(vertices, v)
		} else {
			remap[i] = -1
		}
	}

	triangles := make([]Triangle, 0, len(m.Triangles))
	for _, t := range m.Triangles {
		a, b, c := remap[t.V[0]], remap[t.V[1]], remap[t.V[2]]
		if a < 0 || b < 0 || c < 0 {
			continue
		}
		nt := t
		nt.V = [3]int{a, b, c}
		triangles = append(triangles, nt)
	}
	m.Vertices = vertices
	m.Triangles = triangles
}

// RetainTriangles keeps the triangles for which keep returns true and then drops vertices no
// remaining triangle references.
func (m *Mesh) RetainTriangles(keep func(t int) bool) {
	triangles := make([]Triangle, 0, len(m.Triangles))
	for i, t := range m.Triangles {
		if keep(i) {
			triangles = append(triangles, t)
		}
	}
	m.Triangles = triangles
	m.DropUnreferenced()
}

// DropUnreferenced removes vertices that no triangle uses.
func (m *Mesh) DropUnreferenced() {
	used := m.referenced()
	m.RetainVertices(func(v int) bool { return used[v] })
}

func (m *Mesh) referenced() []bool {
	used := make([]bool, len(m.Vertices))
	for _, t := range m.Triangles {
		for _, idx := range t.V {
			used[idx] = true
		}
	}
	return used
}

// DropDegenerate removes triangles that repeat a vertex index or have two corners closer than
// eps, then drops orphaned vertices. It returns the number of triangles removed.
func (m *Mesh) DropDegenerate(eps float64) int {
	before := len(m.Triangles)
	m.RetainTriangles(func(i int) bool {
		t := m.Triangles[i]
		if t.V[0] == t.V[1] || t.V[1] == t.V[2] || t.V[2] == t.V[0] {
			return false
		}
		p0, p1, p2 := m.Corners(i)
		return p0.Distance(p1) > eps && p1.Distance(p2) > eps && p2.Distance(p0) > eps
	})
	return before - len(m.Triangles)
}

// Weld merges vertices whose coordinates fall in the same cell of a grid with the given
// tolerance, rewriting triangle indices to the first vertex seen in each cell. Triangles that
// collapse onto a repeated index are dropped. A tolerance of zero merges exact duplicates only.
// It returns the number of vertices removed.
func (m *Mesh) Weld(tolerance float64) int {
	before := len(m.Vertices)
	type weldKey struct {
		exact spatialmath.Vertex
		cell  [3]int64
	}
	key := func(v spatialmath.Vertex) weldKey {
		if tolerance <= 0 {
			return weldKey{exact: v}
		}
		p := v.Vector()
		return weldKey{cell: [3]int64{
			int64(math.Round(p.X / tolerance)),
			int64(math.Round(p.Y / tolerance)),
			int64(math.Round(p.Z / tolerance)),
		}}
	}

	firstInCell := make(map[weldKey]int, len(m.Vertices))
	remap := make([]int, len(m.Vertices))
	vertices := make([]spatialmath.Vertex, 0, len(m.Vertices))
	for i, v := range m.Vertices {
		k := key(v)
		if idx, ok := firstInCell[k]; ok {
			remap[i] = idx
			continue
		}
		firstInCell[k] = len(vertices)
		remap[i] = len(vertices)
		vertices = append(vertices, v)
	}

	triangles := make([]Triangle, 0, len(m.Triangles))
	for _, t := range m.Triangles {
		nt := NewTriangle(remap[t.V[0]], remap[t.V[1]], remap[t.V[2]])
		if nt.V[0] == nt.V[1] || nt.V[1] == nt.V[2] || nt.V[2] == nt.V[0] {
			continue
		}
		triangles = append(triangles, nt)
	}
	m.Vertices = vertices
	m.Triangles = triangles
	return before - len(m.Vertices)
}

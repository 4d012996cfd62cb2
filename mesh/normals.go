package mesh

import (
	"github.com/golang/geo/r3"

	"go.viam.com/meshproc/spatialmath"
)

// Normal returns triangle i's unit normal, computing and caching it on first use.
func (m *Mesh) Normal(i int) r3.Vector {
	t := &m.Triangles[i]
	if !t.hasNormal {
		t.normal = spatialmath.PlaneNormal(m.Corners(i))
		t.hasNormal = true
	}
	return t.normal
}

// SetNormal stores an explicit normal for triangle i, e.g. one read from a file.
func (m *Mesh) SetNormal(i int, n r3.Vector) {
	m.Triangles[i].normal = n
	m.Triangles[i].hasNormal = true
}

// ComputeNormals recomputes every triangle normal from current vertex positions. Call it after
// moving vertices; cached normals are otherwise stale.
func (m *Mesh) ComputeNormals() {
	for i := range m.Triangles {
		m.Triangles[i].hasNormal = false
		m.Normal(i)
	}
}

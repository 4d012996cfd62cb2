// Package smoothing relaxes vertex positions of a triangle mesh toward the average of their
// neighbours. Topology is never changed.
package smoothing

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/meshproc/mesh"
	"go.viam.com/meshproc/spatialmath"
)

// MaxDisplacement bounds how far LaplacianSmooth may move a vertex in one iteration, in model
// units.
const MaxDisplacement = 1.0

// LaplacianSmooth runs iterations passes of Laplacian smoothing. Each pass computes every new
// position from the positions at the start of the pass and only then writes them back, so the
// result does not depend on vertex order. A vertex moves by lambda times the offset to the mean
// of its neighbours, capped at MaxDisplacement. Vertices on no edge stay where they are.
func LaplacianSmooth(m *mesh.Mesh, lambda float64, iterations int) error {
	return LaplacianSmoothWithLimit(m, lambda, iterations, MaxDisplacement)
}

// LaplacianSmoothWithLimit is LaplacianSmooth with a caller chosen displacement cap. A
// non-positive limit disables the cap.
func LaplacianSmoothWithLimit(m *mesh.Mesh, lambda float64, iterations int, limit float64) error {
	if err := checkArgs(m, "lambda", lambda, iterations); err != nil {
		return err
	}
	if m.IsEmpty() || iterations == 0 {
		return nil
	}
	adj := mesh.BuildAdjacency(m.Triangles)
	for i := 0; i < iterations; i++ {
		relax(m, adj, lambda, limit, func(int) bool { return true })
	}
	m.ComputeNormals()
	return nil
}

// SmoothBoundaries moves only vertices on the open boundary of the mesh, i.e. endpoints of an
// edge used by exactly one triangle, toward the mean of all their neighbours. The boundary is
// recomputed before every pass. Interior vertices never move, so a closed mesh is unchanged.
func SmoothBoundaries(m *mesh.Mesh, factor float64, iterations int) error {
	if err := checkArgs(m, "factor", factor, iterations); err != nil {
		return err
	}
	if m.IsEmpty() || iterations == 0 {
		return nil
	}
	adj := mesh.BuildAdjacency(m.Triangles)
	for i := 0; i < iterations; i++ {
		boundary := mesh.BoundaryVertices(m)
		if len(boundary) == 0 {
			break
		}
		relax(m, adj, factor, 0, func(v int) bool {
			_, ok := boundary[v]
			return ok
		})
	}
	m.ComputeNormals()
	return nil
}

// relax performs one synchronous pass over the vertices selected by movable.
func relax(m *mesh.Mesh, adj mesh.Adjacency, blend, limit float64, movable func(int) bool) {
	next := make([]spatialmath.Vertex, len(m.Vertices))
	copy(next, m.Vertices)
	for v, neighbors := range adj {
		if len(neighbors) == 0 || !movable(v) {
			continue
		}
		var sum r3.Vector
		for _, n := range neighbors {
			sum = sum.Add(m.Vertices[n].Vector())
		}
		old := m.Vertices[v].Vector()
		delta := sum.Mul(1 / float64(len(neighbors))).Sub(old).Mul(blend)
		if norm := delta.Norm(); limit > 0 && norm > limit {
			delta = delta.Mul(limit / norm)
		}
		next[v] = spatialmath.VertexFromVector(old.Add(delta))
	}
	m.Vertices = next
}

func checkArgs(m *mesh.Mesh, name string, blend float64, iterations int) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if math.IsNaN(blend) || blend < 0 || blend > 1 {
		return errors.Errorf("%s must be in [0, 1], got %v", name, blend)
	}
	if iterations < 0 {
		return errors.Errorf("iterations must not be negative, got %d", iterations)
	}
	return nil
}

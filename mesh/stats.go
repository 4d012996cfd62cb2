package mesh

import (
	"gonum.org/v1/gonum/stat"

	"go.viam.com/meshproc/spatialmath"
)

// Summary describes a mesh for logging and the CLI info command.
type Summary struct {
	Vertices       int
	Triangles      int
	Edges          int
	BoundaryEdges  int
	MeanEdgeLength float64
	StdEdgeLength  float64
	Bounds         spatialmath.Bounds
}

// Summarize computes counts and edge length statistics over unique edges.
func Summarize(m *Mesh) Summary {
	counts := EdgeCounts(m)
	lengths := make([]float64, 0, len(counts))
	boundary := 0
	for e, n := range counts {
		lengths = append(lengths, e.Length())
		if n == 1 {
			boundary++
		}
	}
	s := Summary{
		Vertices:      len(m.Vertices),
		Triangles:     len(m.Triangles),
		Edges:         len(counts),
		BoundaryEdges: boundary,
		Bounds:        m.Bounds(),
	}
	switch len(lengths) {
	case 0:
	case 1:
		s.MeanEdgeLength = lengths[0]
	default:
		s.MeanEdgeLength, s.StdEdgeLength = stat.MeanStdDev(lengths, nil)
	}
	return s
}

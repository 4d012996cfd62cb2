package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"

	"go.viam.com/meshproc/spatialmath"
)

// NewSphere samples n points evenly over the surface of a sphere using a Fibonacci lattice.
func NewSphere(n int, center r3.Vector, radius float64) *PointCloud {
	pc := NewWithPrealloc(n)
	golden := math.Pi * (3 - math.Sqrt(5))
	for i := 0; i < n; i++ {
		y := 1 - 2*(float64(i)+0.5)/float64(n)
		r := math.Sqrt(1 - y*y)
		theta := golden * float64(i)
		p := r3.Vector{X: r * math.Cos(theta), Y: y, Z: r * math.Sin(theta)}
		// the lattice never produces non finite points
		//nolint:errcheck
		pc.Set(spatialmath.VertexFromVector(center.Add(p.Mul(radius))))
	}
	return pc
}

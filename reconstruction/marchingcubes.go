// Package reconstruction turns an unordered point cloud into a closed triangle mesh with
// Marching Cubes. The points are converted into a scalar density field sampled on a regular
// grid, and the isosurface of that field at a chosen level becomes the mesh.
package reconstruction

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/meshproc/kdtree"
	"go.viam.com/meshproc/mesh"
	"go.viam.com/meshproc/spatialmath"
)

const (
	// DensityRadius is the distance, in voxels, at which a sample stops contributing density.
	DensityRadius = 1.5
	// DensityPeak is the density at a sample.
	DensityPeak = 2.0
	// DefaultMaxGridCells caps the number of grid cells a reconstruction may allocate.
	DefaultMaxGridCells = 1 << 23
	// MinPoints is the smallest cloud that can enclose a volume.
	MinPoints = 4

	// single precision carries 24 significant bits; grid corners closer than this fraction of
	// their magnitude collapse onto each other once stored as vertices.
	float32Resolution = 1.0 / (1 << 20)
)

var (
	// ErrTooFewPoints is returned for clouds with fewer than MinPoints points or whose bounding
	// box is flat along some axis.
	ErrTooFewPoints = errors.New("point cloud does not span a volume")
	// ErrInvalidVoxelSize is returned for non-positive, non-finite or unrepresentably small voxels.
	ErrInvalidVoxelSize = errors.New("invalid voxel size")
	// ErrInvalidIsoLevel is returned for non-positive or non-finite iso levels.
	ErrInvalidIsoLevel = errors.New("invalid iso level")
	// ErrGridTooLarge is returned when the grid would exceed the configured cell budget.
	ErrGridTooLarge = errors.New("reconstruction grid too large")
)

// Options configures a reconstruction.
type Options struct {
	// VoxelSize is the grid cell edge length in model units.
	VoxelSize float64
	// IsoLevel is the density of the extracted surface. Density is DensityPeak at a sample and
	// falls off linearly to zero at DensityRadius voxels, so an iso level of 1 places the surface
	// three quarters of a voxel away from the samples.
	IsoLevel float64
	// MaxGridCells overrides DefaultMaxGridCells when positive.
	MaxGridCells int
}

// Density maps the distance to the nearest sample to a field value. It is DensityPeak at the
// sample, decreases linearly and is zero from DensityRadius voxels on.
func Density(distance, voxelSize float64) float64 {
	radius := DensityRadius * voxelSize
	return DensityPeak * math.Max(0, radius-distance) / radius
}

// Reconstruct extracts the isosurface at isoLevel of the density field of cloud sampled with
// the given voxel size. The result is a new mesh with normals computed; it is empty when the
// field never reaches isoLevel.
func Reconstruct(cloud []spatialmath.Vertex, voxelSize, isoLevel float64) (*mesh.Mesh, error) {
	return ReconstructWithOptions(cloud, Options{VoxelSize: voxelSize, IsoLevel: isoLevel})
}

// ReconstructWithOptions is Reconstruct with every knob exposed.
func ReconstructWithOptions(cloud []spatialmath.Vertex, opts Options) (*mesh.Mesh, error) {
	g, err := newGrid(cloud, opts)
	if err != nil {
		return nil, err
	}
	return g.march(opts.IsoLevel), nil
}

// grid holds corner densities of a regular lattice of nx*ny*nz cubic cells.
type grid struct {
	origin     r3.Vector
	voxel      float64
	nx, ny, nz int
	density    []float64
}

func newGrid(cloud []spatialmath.Vertex, opts Options) (*grid, error) {
	voxel, iso := opts.VoxelSize, opts.IsoLevel
	if math.IsNaN(voxel) || math.IsInf(voxel, 0) || voxel <= 0 {
		return nil, errors.Wrapf(ErrInvalidVoxelSize, "got %v", voxel)
	}
	if math.IsNaN(iso) || math.IsInf(iso, 0) || iso <= 0 {
		return nil, errors.Wrapf(ErrInvalidIsoLevel, "got %v", iso)
	}
	if len(cloud) < MinPoints {
		return nil, errors.Wrapf(ErrTooFewPoints, "have %d points, need at least %d", len(cloud), MinPoints)
	}
	for i, v := range cloud {
		if !v.IsFinite() {
			return nil, errors.Errorf("point %d %v is not finite", i, v)
		}
	}
	bounds := spatialmath.BoundsOf(cloud)
	if bounds.Degenerate() {
		return nil, errors.Wrapf(ErrTooFewPoints, "bounding box %v has no volume", bounds.Size())
	}

	padded := bounds.Expand(DensityRadius * voxel)
	magnitude := math.Max(largestComponent(padded.Min.Abs()), largestComponent(padded.Max.Abs()))
	if voxel < magnitude*float32Resolution {
		return nil, errors.Wrapf(ErrInvalidVoxelSize, "%v is below single precision resolution at coordinate %v", voxel, magnitude)
	}

	size := padded.Size()
	g := &grid{
		origin: padded.Min,
		voxel:  voxel,
		nx:     max(1, int(math.Ceil(size.X/voxel))),
		ny:     max(1, int(math.Ceil(size.Y/voxel))),
		nz:     max(1, int(math.Ceil(size.Z/voxel))),
	}
	limit := DefaultMaxGridCells
	if opts.MaxGridCells > 0 {
		limit = opts.MaxGridCells
	}
	if cells := float64(g.nx) * float64(g.ny) * float64(g.nz); cells > float64(limit) {
		return nil, errors.Wrapf(ErrGridTooLarge, "%dx%dx%d cells exceeds %d", g.nx, g.ny, g.nz, limit)
	}

	tree := kdtree.New(spatialmath.Vectors(cloud))
	g.density = make([]float64, (g.nx+1)*(g.ny+1)*(g.nz+1))
	for k := 0; k <= g.nz; k++ {
		for j := 0; j <= g.ny; j++ {
			for i := 0; i <= g.nx; i++ {
				nn, _ := tree.Nearest(g.corner(i, j, k))
				g.density[g.index(i, j, k)] = Density(nn.Distance, voxel)
			}
		}
	}
	return g, nil
}

func largestComponent(v r3.Vector) float64 {
	return math.Max(v.X, math.Max(v.Y, v.Z))
}

func (g *grid) index(i, j, k int) int {
	return (k*(g.ny+1)+j)*(g.nx+1) + i
}

func (g *grid) corner(i, j, k int) r3.Vector {
	return r3.Vector{
		X: g.origin.X + float64(i)*g.voxel,
		Y: g.origin.Y + float64(j)*g.voxel,
		Z: g.origin.Z + float64(k)*g.voxel,
	}
}

// march visits every cell, emitting the triangles of its case. A crossing vertex is created once
// per lattice edge and shared by all cells around that edge.
func (g *grid) march(iso float64) *mesh.Mesh {
	m := mesh.New()
	shared := make(map[spatialmath.EdgeKey]int)

	var corners [8][3]int
	var values [8]float64
	for k := 0; k < g.nz; k++ {
		for j := 0; j < g.ny; j++ {
			for i := 0; i < g.nx; i++ {
				var mask uint8
				for c, off := range cornerOffsets {
					corners[c] = [3]int{i + off[0], j + off[1], k + off[2]}
					values[c] = g.density[g.index(corners[c][0], corners[c][1], corners[c][2])]
					if values[c] >= iso {
						mask |= 1 << c
					}
				}
				if edgeTable[mask] == 0 {
					continue
				}

				vertexOn := func(e int) int {
					a, b := edgeCorners[e][0], edgeCorners[e][1]
					pa := g.corner(corners[a][0], corners[a][1], corners[a][2])
					pb := g.corner(corners[b][0], corners[b][1], corners[b][2])
					key := spatialmath.NewEdgeKey(spatialmath.VertexFromVector(pa), spatialmath.VertexFromVector(pb))
					if idx, ok := shared[key]; ok {
						return idx
					}
					idx := m.AddVertex(spatialmath.VertexFromVector(interpolate(pa, pb, values[a], values[b], iso)))
					shared[key] = idx
					return idx
				}
				for _, tri := range triTable[mask] {
					m.Triangles = append(m.Triangles, mesh.NewTriangle(vertexOn(tri[0]), vertexOn(tri[1]), vertexOn(tri[2])))
				}
			}
		}
	}
	m.ComputeNormals()
	return m
}

// interpolate finds where the field crosses iso on the segment p1-p2, assuming it varies
// linearly between the end values d1 and d2.
func interpolate(p1, p2 r3.Vector, d1, d2, iso float64) r3.Vector {
	if math.Abs(d2-d1) < 1e-12 {
		return p1.Add(p2).Mul(0.5)
	}
	t := (iso - d1) / (d2 - d1)
	return p1.Add(p2.Sub(p1).Mul(t))
}

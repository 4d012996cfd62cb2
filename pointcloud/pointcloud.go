// Package pointcloud defines an unordered set of points and reads and writes it from PCD and
// LAS files. A point cloud is the input to surface reconstruction.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/meshproc/spatialmath"
)

// MetaData is data about what's stored in the point cloud: its running bounding box.
type MetaData struct {
	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// NewMetaData returns metadata for an empty cloud.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64, MinY: math.MaxFloat64, MinZ: math.MaxFloat64,
		MaxX: -math.MaxFloat64, MaxY: -math.MaxFloat64, MaxZ: -math.MaxFloat64,
	}
}

// Merge updates the metadata with a newly added point.
func (meta *MetaData) Merge(v spatialmath.Vertex) {
	p := v.Vector()
	meta.MinX = math.Min(meta.MinX, p.X)
	meta.MinY = math.Min(meta.MinY, p.Y)
	meta.MinZ = math.Min(meta.MinZ, p.Z)
	meta.MaxX = math.Max(meta.MaxX, p.X)
	meta.MaxY = math.Max(meta.MaxY, p.Y)
	meta.MaxZ = math.Max(meta.MaxZ, p.Z)
}

// Bounds returns the bounding box as spatialmath.Bounds.
func (meta MetaData) Bounds() spatialmath.Bounds {
	return spatialmath.Bounds{
		Min: r3.Vector{X: meta.MinX, Y: meta.MinY, Z: meta.MinZ},
		Max: r3.Vector{X: meta.MaxX, Y: meta.MaxY, Z: meta.MaxZ},
	}
}

// PointCloud is an ordered buffer of points with no connectivity. Duplicates are allowed.
type PointCloud struct {
	points []spatialmath.Vertex
	meta   MetaData
}

// New returns an empty point cloud.
func New() *PointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty point cloud with room for size points.
func NewWithPrealloc(size int) *PointCloud {
	return &PointCloud{points: make([]spatialmath.Vertex, 0, size), meta: NewMetaData()}
}

// NewFromPoints returns a cloud over a copy of points.
func NewFromPoints(points []spatialmath.Vertex) (*PointCloud, error) {
	pc := NewWithPrealloc(len(points))
	for _, p := range points {
		if err := pc.Set(p); err != nil {
			return nil, err
		}
	}
	return pc, nil
}

// Size returns the number of points.
func (pc *PointCloud) Size() int {
	return len(pc.points)
}

// MetaData returns the bounding metadata.
func (pc *PointCloud) MetaData() MetaData {
	return pc.meta
}

// Set appends a point. Non finite coordinates are rejected.
func (pc *PointCloud) Set(v spatialmath.Vertex) error {
	if !v.IsFinite() {
		return errors.Errorf("point %v is not finite", v)
	}
	pc.points = append(pc.points, v)
	pc.meta.Merge(v)
	return nil
}

// Points returns the points in insertion order. The slice is shared; do not modify it.
func (pc *PointCloud) Points() []spatialmath.Vertex {
	return pc.points
}

// Iterate calls fn for each point in order until fn returns false.
func (pc *PointCloud) Iterate(fn func(i int, v spatialmath.Vertex) bool) {
	for i, v := range pc.points {
		if !fn(i, v) {
			return
		}
	}
}

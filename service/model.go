package service

import (
	"go.viam.com/meshproc/mesh"
	"go.viam.com/meshproc/pointcloud"
)

// Kind is which representation the current model has.
type Kind int

const (
	// KindNone means nothing has been loaded.
	KindNone Kind = iota
	// KindPointCloud is a set of points without connectivity.
	KindPointCloud
	// KindTriangleMesh is an indexed triangle mesh.
	KindTriangleMesh
)

func (k Kind) String() string {
	switch k {
	case KindPointCloud:
		return "point_cloud"
	case KindTriangleMesh:
		return "triangle_mesh"
	default:
		return "none"
	}
}

// Model holds exactly one of a mesh or a point cloud, or nothing.
type Model struct {
	mesh  *mesh.Mesh
	cloud *pointcloud.PointCloud
}

// NewMeshModel wraps m.
func NewMeshModel(m *mesh.Mesh) Model {
	return Model{mesh: m}
}

// NewCloudModel wraps pc.
func NewCloudModel(pc *pointcloud.PointCloud) Model {
	return Model{cloud: pc}
}

// Kind returns the model's representation.
func (m Model) Kind() Kind {
	switch {
	case m.mesh != nil:
		return KindTriangleMesh
	case m.cloud != nil:
		return KindPointCloud
	default:
		return KindNone
	}
}

// Mesh returns the mesh, or nil for other kinds.
func (m Model) Mesh() *mesh.Mesh {
	return m.mesh
}

// Cloud returns the point cloud, or nil for other kinds.
func (m Model) Cloud() *pointcloud.PointCloud {
	return m.cloud
}

// Counts returns the number of vertices (or points) and triangles.
func (m Model) Counts() (vertices, triangles int) {
	switch m.Kind() {
	case KindTriangleMesh:
		return len(m.mesh.Vertices), len(m.mesh.Triangles)
	case KindPointCloud:
		return m.cloud.Size(), 0
	default:
		return 0, 0
	}
}

// IsEmpty is true when the model carries no geometry: no model, a cloud without points or a
// mesh without triangles.
func (m Model) IsEmpty() bool {
	switch m.Kind() {
	case KindTriangleMesh:
		return m.mesh.IsEmpty()
	case KindPointCloud:
		return m.cloud.Size() == 0
	default:
		return true
	}
}

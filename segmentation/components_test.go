package segmentation

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/meshproc/mesh"
	"go.viam.com/meshproc/spatialmath"
)

// cubeAndGrid is a unit cube (8 vertices, 12 triangles) followed by a 10x10 grid far away
// (121 vertices, 200 triangles).
func cubeAndGrid() *mesh.Mesh {
	m := mesh.NewCube(spatialmath.Vertex{X: -10}, 1)
	m.Merge(mesh.NewGrid(10))
	return m
}

func TestFindConnectedComponents(t *testing.T) {
	m := cubeAndGrid()
	components := FindConnectedComponents(mesh.BuildAdjacency(m.Triangles))
	test.That(t, len(components), test.ShouldEqual, 2)
	test.That(t, components[0], test.ShouldResemble, []int{0, 1, 2, 3, 4, 5, 6, 7})
	test.That(t, len(components[1]), test.ShouldEqual, 121)
	test.That(t, components[1][0], test.ShouldEqual, 8)

	test.That(t, FindConnectedComponents(mesh.Adjacency{}), test.ShouldBeEmpty)
}

func TestRemoveNoise(t *testing.T) {
	t.Run("drops small components", func(t *testing.T) {
		m := cubeAndGrid()
		stats, err := RemoveNoiseWithStats(m, 20)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, stats.Components, test.ShouldEqual, 2)
		test.That(t, stats.RemovedComponents, test.ShouldEqual, 1)
		test.That(t, stats.RemovedVertices, test.ShouldEqual, 8)
		test.That(t, stats.RemovedTriangles, test.ShouldEqual, 12)
		test.That(t, m.Validate(), test.ShouldBeNil)
		test.That(t, m.Equal(mesh.NewGrid(10)), test.ShouldBeTrue)
	})

	t.Run("vertex fraction raises the threshold", func(t *testing.T) {
		m := cubeAndGrid()
		for i := 0; i < 8; i++ {
			m.Merge(mesh.NewGrid(10))
		}
		// 8 + 9*121 = 1097 vertices, so anything under 10 vertices is noise even at size 1
		stats, err := RemoveNoiseWithStats(m, 1)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, stats.Threshold, test.ShouldEqual, 10)
		test.That(t, stats.RemovedComponents, test.ShouldEqual, 1)
		test.That(t, len(m.Vertices), test.ShouldEqual, 9*121)
	})

	t.Run("isolated cube becomes empty", func(t *testing.T) {
		m := mesh.NewCube(spatialmath.Vertex{}, 1)
		test.That(t, RemoveNoise(m, 100), test.ShouldBeNil)
		test.That(t, m.IsEmpty(), test.ShouldBeTrue)
		test.That(t, m.Vertices, test.ShouldBeEmpty)
	})

	t.Run("idempotent", func(t *testing.T) {
		m := cubeAndGrid()
		test.That(t, RemoveNoise(m, 20), test.ShouldBeNil)
		once := m.Clone()
		test.That(t, RemoveNoise(m, 20), test.ShouldBeNil)
		test.That(t, m.Equal(once), test.ShouldBeTrue)
	})

	t.Run("unreferenced vertices are dropped", func(t *testing.T) {
		m := mesh.NewCube(spatialmath.Vertex{}, 1)
		m.AddVertex(spatialmath.Vertex{X: 100})
		test.That(t, RemoveNoise(m, 0), test.ShouldBeNil)
		test.That(t, len(m.Vertices), test.ShouldEqual, 8)
		test.That(t, len(m.Triangles), test.ShouldEqual, 12)

		loose := mesh.New()
		loose.AddVertex(spatialmath.Vertex{X: 1})
		loose.AddVertex(spatialmath.Vertex{Y: 1})
		stats, err := RemoveNoiseWithStats(loose, 0)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, stats.RemovedVertices, test.ShouldEqual, 2)
		test.That(t, loose.Vertices, test.ShouldBeEmpty)
	})

	t.Run("preconditions", func(t *testing.T) {
		test.That(t, errors.Is(RemoveNoise(nil, 10), mesh.ErrNilMesh), test.ShouldBeTrue)
		test.That(t, RemoveNoise(mesh.NewCube(spatialmath.Vertex{}, 1), -1), test.ShouldNotBeNil)
		empty := mesh.New()
		test.That(t, RemoveNoise(empty, 10), test.ShouldBeNil)
		test.That(t, empty.IsEmpty(), test.ShouldBeTrue)
	})
}

func TestFindLargestComponent(t *testing.T) {
	t.Run("keeps the largest", func(t *testing.T) {
		m := cubeAndGrid()
		before := len(m.Triangles)
		test.That(t, FindLargestComponent(m), test.ShouldBeNil)
		test.That(t, len(m.Triangles), test.ShouldBeLessThanOrEqualTo, before)
		test.That(t, m.Validate(), test.ShouldBeNil)
		test.That(t, m.Equal(mesh.NewGrid(10)), test.ShouldBeTrue)

		once := m.Clone()
		test.That(t, FindLargestComponent(m), test.ShouldBeNil)
		test.That(t, m.Equal(once), test.ShouldBeTrue)
	})

	t.Run("first component wins a tie", func(t *testing.T) {
		m := mesh.NewCube(spatialmath.Vertex{}, 1)
		m.Merge(mesh.NewCube(spatialmath.Vertex{X: 5}, 1))
		test.That(t, FindLargestComponent(m), test.ShouldBeNil)
		test.That(t, m.Equal(mesh.NewCube(spatialmath.Vertex{}, 1)), test.ShouldBeTrue)
	})

	t.Run("vertex contact is not connectivity", func(t *testing.T) {
		// two triangles touching at a single vertex are separate components
		m, err := mesh.NewFromIndexed(
			[]spatialmath.Vertex{{X: 0, Y: 0, Z: 0}, {X: 1, Y: 0, Z: 0}, {X: 0, Y: 1, Z: 0}, {X: -1, Y: 0, Z: 0}, {X: 0, Y: -1, Z: 0}, {X: -1, Y: -1, Z: 0}},
			[][3]int{{0, 1, 2}, {0, 3, 4}, {3, 5, 4}},
		)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, FindLargestComponent(m), test.ShouldBeNil)
		test.That(t, len(m.Triangles), test.ShouldEqual, 2)
		test.That(t, len(m.Vertices), test.ShouldEqual, 4)
	})

	t.Run("preconditions", func(t *testing.T) {
		test.That(t, errors.Is(FindLargestComponent(nil), mesh.ErrNilMesh), test.ShouldBeTrue)
		test.That(t, FindLargestComponent(mesh.New()), test.ShouldBeNil)
	})
}

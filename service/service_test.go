package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/test"

	"go.viam.com/meshproc/config"
	"go.viam.com/meshproc/logging"
	"go.viam.com/meshproc/mesh"
	"go.viam.com/meshproc/meshio"
	"go.viam.com/meshproc/pointcloud"
	"go.viam.com/meshproc/spatialmath"
)

func newService(t *testing.T, opts Options) *Service {
	t.Helper()
	s := New(logging.NewTestLogger(t), opts)
	t.Cleanup(func() {
		test.That(t, s.Close(), test.ShouldBeNil)
	})
	return s
}

func sphereCloud() *pointcloud.PointCloud {
	return pointcloud.NewSphere(4000, r3.Vector{}, 1)
}

func TestStateMachine(t *testing.T) {
	s := newService(t, Options{})
	test.That(t, s.Model().Kind(), test.ShouldEqual, KindNone)

	_, err := s.ComputeNormals()
	test.That(t, errors.Is(err, ErrNoModel), test.ShouldBeTrue)
	_, err = s.Reconstruct(0.1, 1)
	test.That(t, errors.Is(err, ErrNoModel), test.ShouldBeTrue)

	s.SetModel(NewCloudModel(sphereCloud()))
	for _, op := range []func() (Outcome, error){
		s.ComputeNormals,
		func() (Outcome, error) { return s.RemoveNoise(10) },
		s.FindLargestComponent,
		func() (Outcome, error) { return s.LaplacianSmooth(0.5, 1) },
		func() (Outcome, error) { return s.SmoothBoundaries(0.5, 1) },
	} {
		_, err := op()
		test.That(t, errors.Is(err, ErrNotApplicable), test.ShouldBeTrue)
	}
	test.That(t, s.Model().Kind(), test.ShouldEqual, KindPointCloud)

	out, err := s.Reconstruct(0.1, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Kind, test.ShouldEqual, KindTriangleMesh)
	test.That(t, out.Empty, test.ShouldBeFalse)
	test.That(t, out.Triangles, test.ShouldBeGreaterThan, 1000)
	test.That(t, s.Model().Kind(), test.ShouldEqual, KindTriangleMesh)

	_, err = s.Reconstruct(0.1, 1)
	test.That(t, errors.Is(err, ErrNotApplicable), test.ShouldBeTrue)

	out, err = s.LaplacianSmooth(0.5, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Kind, test.ShouldEqual, KindTriangleMesh)

	_, err = s.LaplacianSmooth(2, 1)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestEmptyOutcome(t *testing.T) {
	cube := func() Model { return NewMeshModel(mesh.NewCube(spatialmath.Vertex{}, 1)) }

	t.Run("isolated cube is noise", func(t *testing.T) {
		s := newService(t, Options{})
		s.SetModel(cube())
		out, err := s.RemoveNoise(100)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Empty, test.ShouldBeTrue)
		test.That(t, out.Reverted, test.ShouldBeFalse)
		test.That(t, out.Triangles, test.ShouldEqual, 0)
		test.That(t, s.Model().Mesh().IsEmpty(), test.ShouldBeTrue)
	})

	t.Run("keep prior", func(t *testing.T) {
		s := newService(t, Options{KeepPriorOnEmpty: true})
		s.SetModel(cube())
		out, err := s.RemoveNoise(100)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Empty, test.ShouldBeTrue)
		test.That(t, out.Reverted, test.ShouldBeTrue)
		test.That(t, out.Vertices, test.ShouldEqual, 8)
		test.That(t, out.Triangles, test.ShouldEqual, 12)
		test.That(t, len(s.Model().Mesh().Triangles), test.ShouldEqual, 12)
	})

	t.Run("reconstruction above the peak density", func(t *testing.T) {
		s := newService(t, Options{})
		s.SetModel(NewCloudModel(sphereCloud()))
		out, err := s.Reconstruct(0.1, 3)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Empty, test.ShouldBeTrue)
		test.That(t, s.Model().Kind(), test.ShouldEqual, KindTriangleMesh)

		s = newService(t, Options{KeepPriorOnEmpty: true})
		s.SetModel(NewCloudModel(sphereCloud()))
		out, err = s.Reconstruct(0.1, 3)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, out.Reverted, test.ShouldBeTrue)
		test.That(t, out.Kind, test.ShouldEqual, KindPointCloud)
		test.That(t, out.Vertices, test.ShouldEqual, 4000)
		test.That(t, s.Model().Kind(), test.ShouldEqual, KindPointCloud)
	})
}

func ops(outcomes []Outcome) []string {
	return lo.Map(outcomes, func(o Outcome, _ int) string { return o.Op })
}

func TestRunMesh(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "two_cubes.obj")
	output := filepath.Join(dir, "out.stl")
	m := mesh.NewCube(spatialmath.Vertex{}, 1)
	m.Merge(mesh.NewCube(spatialmath.Vertex{X: 5}, 0.5))
	test.That(t, meshio.Export(input, m, meshio.ExportOptions{}), test.ShouldBeNil)

	s := newService(t, Options{})
	outcomes, err := s.Run(context.Background(), &config.Pipeline{
		Input:            input,
		Output:           output,
		BinaryOutput:     true,
		LargestComponent: true,
		Laplacian:        &config.Smoothing{Factor: 0.05, Iterations: 1},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ops(outcomes), test.ShouldResemble,
		[]string{OpLoad, OpComputeNormals, OpFindLargestComponent, OpLaplacianSmooth, OpSave})
	test.That(t, outcomes[0].Triangles, test.ShouldEqual, 24)
	test.That(t, outcomes[2].Triangles, test.ShouldEqual, 12)

	res, err := meshio.Import(output, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(res.Mesh.Triangles), test.ShouldEqual, 12)
	test.That(t, len(res.Mesh.Vertices), test.ShouldEqual, 8)
}

func TestRunPointCloud(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "sphere.pcd")
	output := filepath.Join(dir, "sphere.ply")
	test.That(t, pointcloud.WriteToFile(sphereCloud(), input), test.ShouldBeNil)

	s := newService(t, Options{})
	outcomes, err := s.Run(context.Background(), &config.Pipeline{
		Input:       input,
		Output:      output,
		RemoveNoise: &config.Noise{MinComponentSize: 100},
		Reconstruct: &config.Reconstruction{VoxelSize: 0.1, IsoLevel: 1},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, ops(outcomes), test.ShouldResemble,
		[]string{OpLoad, OpReconstruct, OpComputeNormals, OpRemoveNoise, OpSave})
	test.That(t, outcomes[0].Kind, test.ShouldEqual, KindPointCloud)
	test.That(t, outcomes[1].Kind, test.ShouldEqual, KindTriangleMesh)
	test.That(t, outcomes[3].Empty, test.ShouldBeFalse)
	test.That(t, outcomes[3].Triangles, test.ShouldEqual, outcomes[1].Triangles)

	res, err := meshio.Import(output, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(res.Mesh.Triangles), test.ShouldEqual, outcomes[1].Triangles)
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "cube.ply")
	test.That(t, meshio.Export(input, mesh.NewCube(spatialmath.Vertex{}, 1), meshio.ExportOptions{}), test.ShouldBeNil)
	s := newService(t, Options{})

	_, err := s.Run(context.Background(), &config.Pipeline{})
	test.That(t, err, test.ShouldNotBeNil)

	outcomes, err := s.Run(context.Background(), &config.Pipeline{
		Input:       input,
		Reconstruct: &config.Reconstruction{VoxelSize: 0.1, IsoLevel: 1},
	})
	test.That(t, errors.Is(err, ErrNotApplicable), test.ShouldBeTrue)
	test.That(t, ops(outcomes), test.ShouldResemble, []string{OpLoad})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Run(ctx, &config.Pipeline{Input: input})
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)

	_, err = s.Run(context.Background(), &config.Pipeline{Input: filepath.Join(dir, "missing.stl")})
	test.That(t, err, test.ShouldNotBeNil)
}

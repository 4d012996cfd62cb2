package meshio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/meshproc/logging"
	"go.viam.com/meshproc/mesh"
	"go.viam.com/meshproc/pointcloud"
	"go.viam.com/meshproc/spatialmath"
)

func testCube() *mesh.Mesh {
	return mesh.NewCube(spatialmath.Vertex{X: 0.25, Y: -1, Z: 3}, 1)
}

func TestCubeRoundTrip(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	cube := testCube()

	for _, tc := range []struct {
		file string
		opts ExportOptions
	}{
		{"ascii.stl", ExportOptions{}},
		{"binary.stl", ExportOptions{Binary: true}},
		{"ascii.ply", ExportOptions{}},
		{"binary.ply", ExportOptions{Binary: true}},
		{"cube.obj", ExportOptions{}},
	} {
		t.Run(tc.file, func(t *testing.T) {
			fn := filepath.Join(dir, tc.file)
			test.That(t, Export(fn, cube, tc.opts), test.ShouldBeNil)
			res, err := Import(fn, logger)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, res.IsMesh(), test.ShouldBeTrue)
			got := res.Mesh
			test.That(t, len(got.Vertices), test.ShouldEqual, 8)
			test.That(t, len(got.Triangles), test.ShouldEqual, 12)
			for i := range cube.Triangles {
				a0, a1, a2 := cube.Corners(i)
				b0, b1, b2 := got.Corners(i)
				test.That(t, a0.Distance(b0), test.ShouldBeLessThan, 1e-6)
				test.That(t, a1.Distance(b1), test.ShouldBeLessThan, 1e-6)
				test.That(t, a2.Distance(b2), test.ShouldBeLessThan, 1e-6)
				test.That(t, got.Normal(i).Distance(cube.Normal(i)), test.ShouldBeLessThan, 1e-6)
			}
			if !strings.HasSuffix(tc.file, ".stl") {
				test.That(t, got.Equal(cube), test.ShouldBeTrue)
			}
		})
	}
}

func TestWriteASCIISTL(t *testing.T) {
	var buf bytes.Buffer
	test.That(t, WriteSTL(&buf, mesh.NewCube(spatialmath.Vertex{}, 1), false), test.ShouldBeNil)
	out := buf.String()
	test.That(t, out, test.ShouldStartWith, "solid")
	test.That(t, out, test.ShouldContainSubstring, "facet normal 0.000000 0.000000 -1.000000")
	test.That(t, out, test.ShouldContainSubstring, "vertex 1.000000 1.000000 0.000000")
	test.That(t, strings.Count(out, "endfacet"), test.ShouldEqual, 12)
}

func TestBinarySTLWithSolidHeader(t *testing.T) {
	var buf bytes.Buffer
	test.That(t, WriteSTL(&buf, testCube(), true), test.ShouldBeNil)
	data := buf.Bytes()
	_, err := ReadSTL(data[:len(data)-10])
	test.That(t, err, test.ShouldNotBeNil)

	copy(data, "solid but binary")
	m, err := ReadSTL(data)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(m.Triangles), test.ShouldEqual, 12)
	test.That(t, len(m.Vertices), test.ShouldEqual, 8)
}

func TestPLYPointCloud(t *testing.T) {
	pc, err := pointcloud.NewFromPoints([]spatialmath.Vertex{{X: 1, Y: 2, Z: 3}, {X: 0.1, Y: -4, Z: 5}})
	test.That(t, err, test.ShouldBeNil)
	for _, binary := range []bool{false, true} {
		fn := filepath.Join(t.TempDir(), "cloud.ply")
		test.That(t, ExportCloud(fn, pc, ExportOptions{Binary: binary}), test.ShouldBeNil)
		res, err := Import(fn, logging.NewTestLogger(t))
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.IsMesh(), test.ShouldBeFalse)
		test.That(t, res.Cloud.Points(), test.ShouldResemble, pc.Points())
	}
}

func TestReadPLYQuads(t *testing.T) {
	in := `ply
format ascii 1.0
comment a unit square as one quad
element vertex 4
property double x
property double y
property double z
element face 1
property list uchar int vertex_indices
end_header
0 0 0
1 0 0
1 1 0
0 1 0
4 0 1 2 3
`
	res, err := ReadPLY([]byte(in))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(res.Mesh.Triangles), test.ShouldEqual, 2)
	test.That(t, res.Mesh.Triangles[1].V, test.ShouldResemble, [3]int{0, 2, 3})
	test.That(t, res.Mesh.Normal(0).Z, test.ShouldEqual, 1.0)
}

func TestReadOBJ(t *testing.T) {
	in := `# quad with texture and normal references
o square
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
vn 0 0 1
f 1/1/1 2/2/1 3/3/1 4/4/1
f -4 -3 -1
`
	res, err := ReadOBJ(strings.NewReader(in))
	test.That(t, err, test.ShouldBeNil)
	m := res.Mesh
	test.That(t, len(m.Vertices), test.ShouldEqual, 4)
	test.That(t, len(m.Triangles), test.ShouldEqual, 3)
	test.That(t, m.Triangles[0].V, test.ShouldResemble, [3]int{0, 1, 2})
	test.That(t, m.Triangles[1].V, test.ShouldResemble, [3]int{0, 2, 3})
	test.That(t, m.Triangles[2].V, test.ShouldResemble, [3]int{0, 1, 3})

	res, err = ReadOBJ(strings.NewReader("v 1 2 3\nv 4 5 6\n"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.IsMesh(), test.ShouldBeFalse)
	test.That(t, res.Cloud.Size(), test.ShouldEqual, 2)
}

func TestMalformed(t *testing.T) {
	t.Run("obj face past the vertices", func(t *testing.T) {
		_, err := ReadOBJ(strings.NewReader("v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 9\n"))
		test.That(t, errors.Is(err, mesh.ErrBrokenClosure), test.ShouldBeTrue)
	})
	t.Run("obj bad coordinate", func(t *testing.T) {
		_, err := ReadOBJ(strings.NewReader("v 0 zero 0\n"))
		test.That(t, err, test.ShouldNotBeNil)
	})
	t.Run("ply face past the vertices", func(t *testing.T) {
		in := "ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\n" +
			"element face 1\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n1 0 0\n0 1 0\n3 0 1 7\n"
		_, err := ReadPLY([]byte(in))
		test.That(t, errors.Is(err, mesh.ErrBrokenClosure), test.ShouldBeTrue)
	})
	t.Run("ply truncated ascii body", func(t *testing.T) {
		in := "ply\nformat ascii 1.0\nelement vertex 3\nproperty float x\nproperty float y\nproperty float z\n" +
			"end_header\n0 0 0\n1 0\n"
		_, err := ReadPLY([]byte(in))
		test.That(t, err, test.ShouldNotBeNil)
	})
	t.Run("ply truncated binary body", func(t *testing.T) {
		var buf bytes.Buffer
		test.That(t, WritePLY(&buf, testCube(), true), test.ShouldBeNil)
		_, err := ReadPLY(buf.Bytes()[:buf.Len()-5])
		test.That(t, err, test.ShouldNotBeNil)
	})
	t.Run("ply big endian", func(t *testing.T) {
		_, err := ReadPLY([]byte("ply\nformat binary_big_endian 1.0\nelement vertex 0\nend_header\n"))
		test.That(t, err, test.ShouldNotBeNil)
	})
	t.Run("not a ply", func(t *testing.T) {
		_, err := ReadPLY([]byte("solid cube\n"))
		test.That(t, err, test.ShouldNotBeNil)
	})
	t.Run("stl vertex outside facet", func(t *testing.T) {
		_, err := ReadSTL([]byte("solid x\nvertex 0 0 0\nendsolid x\n"))
		test.That(t, err, test.ShouldNotBeNil)
	})
	t.Run("unsupported extension", func(t *testing.T) {
		fn := filepath.Join(t.TempDir(), "cube.3ds")
		test.That(t, os.WriteFile(fn, []byte("x"), 0o600), test.ShouldBeNil)
		_, err := Import(fn, logging.NewTestLogger(t))
		test.That(t, errors.Is(err, ErrUnsupportedFormat), test.ShouldBeTrue)
		test.That(t, errors.Is(Export(fn, testCube(), ExportOptions{}), ErrUnsupportedFormat), test.ShouldBeTrue)
	})
}

// Package meshio imports and exports triangle meshes and point clouds. The format is chosen by
// file extension: .stl, .ply and .obj hold meshes, .pcd and .las hold point clouds, and a .ply
// or .obj file with vertices but no faces is read as a point cloud.
package meshio

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/meshproc/logging"
	"go.viam.com/meshproc/mesh"
	"go.viam.com/meshproc/pointcloud"
	"go.viam.com/meshproc/spatialmath"
)

// ErrUnsupportedFormat is returned for file extensions no reader or writer handles.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Result is what an import produced: exactly one of Mesh or Cloud is set.
type Result struct {
	Mesh  *mesh.Mesh
	Cloud *pointcloud.PointCloud
}

// IsMesh reports whether the import produced a triangle mesh.
func (r Result) IsMesh() bool {
	return r.Mesh != nil
}

// fromIndexed turns parsed vertices and polygons into a Result, fan triangulating polygons with
// more than three corners. Without polygons the vertices become a point cloud.
func fromIndexed(vertices []spatialmath.Vertex, polygons [][]int) (Result, error) {
	if len(polygons) == 0 {
		pc, err := pointcloud.NewFromPoints(vertices)
		if err != nil {
			return Result{}, err
		}
		return Result{Cloud: pc}, nil
	}
	m := mesh.New()
	m.Vertices = vertices
	for i, poly := range polygons {
		if len(poly) < 3 {
			return Result{}, errors.Errorf("face %d has %d vertices", i, len(poly))
		}
		for j := 1; j+1 < len(poly); j++ {
			if err := m.AddTriangle(poly[0], poly[j], poly[j+1]); err != nil {
				return Result{}, errors.Wrapf(err, "face %d", i)
			}
		}
	}
	m.ComputeNormals()
	return Result{Mesh: m}, nil
}

func extension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// Import reads the file at path.
func Import(path string, logger logging.Logger) (Result, error) {
	ext := extension(path)
	switch ext {
	case ".pcd", ".las":
		pc, err := pointcloud.NewFromFile(path, logger)
		if err != nil {
			return Result{}, err
		}
		logger.Debugw("imported point cloud", "path", path, "points", pc.Size())
		return Result{Cloud: pc}, nil
	case ".stl", ".ply", ".obj":
	default:
		return Result{}, errors.Wrapf(ErrUnsupportedFormat, "cannot import %q", path)
	}

	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	var res Result
	switch ext {
	case ".stl":
		var m *mesh.Mesh
		m, err = ReadSTL(data)
		res.Mesh = m
	case ".ply":
		res, err = ReadPLY(data)
	default:
		res, err = ReadOBJ(bytes.NewReader(data))
	}
	if err != nil {
		return Result{}, errors.Wrapf(err, "importing %q", path)
	}
	if res.IsMesh() {
		logger.Debugw("imported mesh", "path", path, "vertices", len(res.Mesh.Vertices), "triangles", len(res.Mesh.Triangles))
	} else {
		logger.Debugw("imported point cloud", "path", path, "points", res.Cloud.Size())
	}
	return res, nil
}

// ExportOptions controls the encoding of formats that have both an ascii and binary form.
type ExportOptions struct {
	Binary bool
}

// Export writes m to path.
func Export(path string, m *mesh.Mesh, opts ExportOptions) error {
	if err := m.Validate(); err != nil {
		return err
	}
	var write func(*bytes.Buffer) error
	switch extension(path) {
	case ".stl":
		write = func(buf *bytes.Buffer) error { return WriteSTL(buf, m, opts.Binary) }
	case ".ply":
		write = func(buf *bytes.Buffer) error { return WritePLY(buf, m, opts.Binary) }
	case ".obj":
		write = func(buf *bytes.Buffer) error { return WriteOBJ(buf, m) }
	default:
		return errors.Wrapf(ErrUnsupportedFormat, "cannot export a mesh to %q", path)
	}
	return writeFile(path, write)
}

// ExportCloud writes a point cloud to path.
func ExportCloud(path string, pc *pointcloud.PointCloud, opts ExportOptions) error {
	switch extension(path) {
	case ".pcd":
		typ := pointcloud.PCDAscii
		if opts.Binary {
			typ = pointcloud.PCDBinary
		}
		return pointcloud.WriteToPCDFile(pc, path, typ)
	case ".las":
		return pointcloud.WriteToLASFile(pc, path)
	case ".ply":
		return writeFile(path, func(buf *bytes.Buffer) error { return WritePLYCloud(buf, pc, opts.Binary) })
	default:
		return errors.Wrapf(ErrUnsupportedFormat, "cannot export a point cloud to %q", path)
	}
}

func writeFile(path string, write func(*bytes.Buffer) error) (err error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return err
	}
	//nolint:gosec
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	_, err = buf.WriteTo(f)
	return err
}

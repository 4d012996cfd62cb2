package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"go.viam.com/test"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).Run(append([]string{"meshproc"}, args...))
	return out.String(), err
}

func fileExists(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldBeGreaterThan, 0)
}

func TestGenerateAndInfo(t *testing.T) {
	dir := t.TempDir()
	cube := filepath.Join(dir, "cube.stl")
	_, err := runApp(t, "generate", cube)
	test.That(t, err, test.ShouldNotBeNil)

	out, err := runApp(t, "generate", "--binary", "cube", cube)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "wrote cube")

	out, err = runApp(t, "info", cube)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "triangle mesh")
	test.That(t, out, test.ShouldContainSubstring, "triangles:   12")
	test.That(t, out, test.ShouldContainSubstring, "edges:       18 (0 boundary)")
	test.That(t, out, test.ShouldContainSubstring, "components:  1 (largest 8 vertices)")

	sphere := filepath.Join(dir, "sphere.pcd")
	_, err = runApp(t, "generate", "--points", "500", "--size", "2", "sphere", sphere)
	test.That(t, err, test.ShouldBeNil)
	out, err = runApp(t, "info", sphere)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "point cloud")
	test.That(t, out, test.ShouldContainSubstring, "points:      500")

	_, err = runApp(t, "generate", "torus", filepath.Join(dir, "torus.stl"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = runApp(t, "info", filepath.Join(dir, "missing.obj"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestProcess(t *testing.T) {
	dir := t.TempDir()
	grid := filepath.Join(dir, "grid.obj")
	_, err := runApp(t, "generate", "--size", "3", "grid", grid)
	test.That(t, err, test.ShouldBeNil)

	output := filepath.Join(dir, "grid.ply")
	out, err := runApp(t, "process", "--boundaries", "2", "-o", output, grid)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "smooth_boundaries")
	test.That(t, out, test.ShouldContainSubstring, "save")
	fileExists(t, output)

	cfg := filepath.Join(dir, "pipeline.json")
	test.That(t, os.WriteFile(cfg, []byte(`{"largest_component": true, "laplacian": {"iterations": 1}}`), 0o600),
		test.ShouldBeNil)
	out, err = runApp(t, "--config", cfg, "process", "-o", filepath.Join(dir, "grid.stl"), grid)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "find_largest_component")
	test.That(t, out, test.ShouldContainSubstring, "laplacian_smooth")

	cube := filepath.Join(dir, "cube.obj")
	_, err = runApp(t, "generate", "cube", cube)
	test.That(t, err, test.ShouldBeNil)
	out, err = runApp(t, "process", "--min-component-size", "100", "--keep-prior", cube)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "empty, reverted")

	_, err = runApp(t, "process")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = runApp(t, "process", "--laplacian-lambda", "3", grid)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestProcessPointCloud(t *testing.T) {
	dir := t.TempDir()
	sphere := filepath.Join(dir, "sphere.pcd")
	_, err := runApp(t, "generate", "--points", "4000", "sphere", sphere)
	test.That(t, err, test.ShouldBeNil)

	output := filepath.Join(dir, "sphere.stl")
	out, err := runApp(t, "process", "--voxel-size", "0.1", "--largest", "-o", output, sphere)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "reconstruct")
	test.That(t, out, test.ShouldContainSubstring, "triangle_mesh")
	fileExists(t, output)
}

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	inputs := []string{filepath.Join(dir, "a.stl"), filepath.Join(dir, "b.obj")}
	for _, in := range inputs {
		_, err := runApp(t, "generate", "cube", in)
		test.That(t, err, test.ShouldBeNil)
	}

	outDir := filepath.Join(dir, "out")
	out, err := runApp(t, append([]string{"batch", "--output-dir", outDir, "--format", "ply", "--parallel", "2", "--largest"},
		inputs...)...)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "a.stl")
	test.That(t, out, test.ShouldContainSubstring, "b.obj")
	fileExists(t, filepath.Join(outDir, "a.ply"))
	fileExists(t, filepath.Join(outDir, "b.ply"))

	_, err = runApp(t, "batch", "--output-dir", outDir, inputs[0], filepath.Join(dir, "other", "a.obj"))
	test.That(t, err, test.ShouldNotBeNil)
	_, err = runApp(t, "batch", "--output-dir", outDir, inputs[0], filepath.Join(dir, "missing.stl"))
	test.That(t, err, test.ShouldNotBeNil)
}

package meshio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"go.viam.com/meshproc/mesh"
	"go.viam.com/meshproc/spatialmath"
)

// ReadOBJ parses the v and f records of a Wavefront OBJ. Face references are 1-indexed, negative
// references count back from the latest vertex, and for a/b/c references only the position index
// a is used. Normals, texture coordinates, groups and materials are ignored.
func ReadOBJ(r io.Reader) (Result, error) {
	var (
		vertices []spatialmath.Vertex
		polygons [][]int
	)
	scanner := bufio.NewScanner(r)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line, _, _ := strings.Cut(scanner.Text(), "#")
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return Result{}, errors.Errorf("line %d: vertex needs 3 coordinates", lineNum)
			}
			var xyz [3]float64
			for i := range xyz {
				v, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return Result{}, errors.Wrapf(err, "line %d", lineNum)
				}
				xyz[i] = v
			}
			vertices = append(vertices, spatialmath.NewVertex(xyz[0], xyz[1], xyz[2]))
		case "f":
			if len(fields) < 4 {
				return Result{}, errors.Errorf("line %d: face needs at least 3 vertices", lineNum)
			}
			poly := make([]int, 0, len(fields)-1)
			for _, ref := range fields[1:] {
				pos, _, _ := strings.Cut(ref, "/")
				idx, err := strconv.Atoi(pos)
				if err != nil || idx == 0 {
					return Result{}, errors.Errorf("line %d: invalid face reference %q", lineNum, ref)
				}
				if idx < 0 {
					idx += len(vertices)
				} else {
					idx--
				}
				if idx < 0 || idx >= len(vertices) {
					return Result{}, errors.Wrapf(mesh.ErrBrokenClosure, "line %d: face reference %q", lineNum, ref)
				}
				poly = append(poly, idx)
			}
			polygons = append(polygons, poly)
		}
	}
	if err := scanner.Err(); err != nil {
		return Result{}, err
	}
	return fromIndexed(vertices, polygons)
}

// WriteOBJ writes the vertices and 1-indexed triangle faces of m.
func WriteOBJ(w io.Writer, m *mesh.Mesh) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# meshproc %d vertices %d faces\n", len(m.Vertices), len(m.Triangles))
	for _, v := range m.Vertices {
		fmt.Fprintf(bw, "v %s %s %s\n", formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z))
	}
	for _, t := range m.Triangles {
		fmt.Fprintf(bw, "f %d %d %d\n", t.V[0]+1, t.V[1]+1, t.V[2]+1)
	}
	return bw.Flush()
}

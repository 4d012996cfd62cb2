package meshio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"go.viam.com/meshproc/mesh"
	"go.viam.com/meshproc/spatialmath"
)

const (
	stlHeaderSize   = 80
	stlTriangleSize = 50
)

// isBinarySTL reports whether data is a binary STL. Binary headers may also start with "solid",
// so those only count as ascii when the triangle count disagrees with the file size.
func isBinarySTL(data []byte) bool {
	if len(data) < stlHeaderSize+4 {
		return false
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid")) {
		return true
	}
	n := binary.LittleEndian.Uint32(data[stlHeaderSize:])
	return uint64(len(data)) == stlHeaderSize+4+uint64(n)*stlTriangleSize
}

// ReadSTL parses an ascii or binary STL. Every facet stores its own corners, so exact duplicate
// positions are welded back into shared vertices.
func ReadSTL(data []byte) (*mesh.Mesh, error) {
	var (
		m   *mesh.Mesh
		err error
	)
	if isBinarySTL(data) {
		m, err = readBinarySTL(data)
	} else {
		m, err = readASCIISTL(data)
	}
	if err != nil {
		return nil, err
	}
	m.Weld(0)
	m.ComputeNormals()
	return m, nil
}

func readBinarySTL(data []byte) (*mesh.Mesh, error) {
	if len(data) < stlHeaderSize+4 {
		return nil, errors.Errorf("binary stl too short: %d bytes", len(data))
	}
	n := int(binary.LittleEndian.Uint32(data[stlHeaderSize:]))
	body := data[stlHeaderSize+4:]
	if len(body) < n*stlTriangleSize {
		return nil, errors.Errorf("binary stl truncated: %d triangles need %d bytes, have %d", n, n*stlTriangleSize, len(body))
	}

	m := mesh.New()
	m.Vertices = make([]spatialmath.Vertex, 0, 3*n)
	for i := 0; i < n; i++ {
		rec := body[i*stlTriangleSize:]
		var corners [3]int
		for c := range corners {
			// 12 bytes of normal come first
			off := 12 + 12*c
			v := spatialmath.Vertex{
				X: math.Float32frombits(binary.LittleEndian.Uint32(rec[off:])),
				Y: math.Float32frombits(binary.LittleEndian.Uint32(rec[off+4:])),
				Z: math.Float32frombits(binary.LittleEndian.Uint32(rec[off+8:])),
			}
			if !v.IsFinite() {
				return nil, errors.Errorf("stl triangle %d has a non finite corner", i)
			}
			corners[c] = m.AddVertex(v)
		}
		if err := m.AddTriangle(corners[0], corners[1], corners[2]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func readASCIISTL(data []byte) (*mesh.Mesh, error) {
	m := mesh.New()
	var facet []int
	inFacet := false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for lineNum := 1; scanner.Scan(); lineNum++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "facet":
			if inFacet {
				return nil, errors.Errorf("line %d: facet inside facet", lineNum)
			}
			inFacet = true
			facet = facet[:0]
		case "vertex":
			if !inFacet {
				return nil, errors.Errorf("line %d: vertex outside facet", lineNum)
			}
			if len(fields) != 4 {
				return nil, errors.Errorf("line %d: vertex needs 3 coordinates", lineNum)
			}
			var xyz [3]float64
			for i := range xyz {
				v, err := strconv.ParseFloat(fields[i+1], 64)
				if err != nil {
					return nil, errors.Wrapf(err, "line %d", lineNum)
				}
				xyz[i] = v
			}
			facet = append(facet, m.AddVertex(spatialmath.NewVertex(xyz[0], xyz[1], xyz[2])))
		case "endfacet":
			if !inFacet || len(facet) != 3 {
				return nil, errors.Errorf("line %d: facet has %d vertices", lineNum, len(facet))
			}
			if err := m.AddTriangle(facet[0], facet[1], facet[2]); err != nil {
				return nil, err
			}
			inFacet = false
		case "solid", "outer", "endloop", "endsolid":
		default:
			return nil, errors.Errorf("line %d: unexpected %q", lineNum, fields[0])
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if inFacet {
		return nil, errors.New("stl ends inside a facet")
	}
	return m, nil
}

// WriteSTL writes m as a binary or ascii STL with one facet per triangle.
func WriteSTL(w io.Writer, m *mesh.Mesh, asBinary bool) error {
	if asBinary {
		return writeBinarySTL(w, m)
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "solid meshproc")
	for i := range m.Triangles {
		n := m.Normal(i)
		fmt.Fprintf(bw, "  facet normal %.6f %.6f %.6f\n    outer loop\n", n.X, n.Y, n.Z)
		for _, idx := range m.Triangles[i].V {
			v := m.Vertices[idx]
			fmt.Fprintf(bw, "      vertex %.6f %.6f %.6f\n", v.X, v.Y, v.Z)
		}
		fmt.Fprint(bw, "    endloop\n  endfacet\n")
	}
	fmt.Fprintln(bw, "endsolid meshproc")
	return bw.Flush()
}

func writeBinarySTL(w io.Writer, m *mesh.Mesh) error {
	header := make([]byte, stlHeaderSize+4)
	copy(header, "binary stl written by meshproc")
	binary.LittleEndian.PutUint32(header[stlHeaderSize:], uint32(len(m.Triangles)))
	if _, err := w.Write(header); err != nil {
		return err
	}

	rec := make([]byte, stlTriangleSize)
	for i, t := range m.Triangles {
		n := m.Normal(i)
		putFloats(rec, float32(n.X), float32(n.Y), float32(n.Z))
		for c, idx := range t.V {
			v := m.Vertices[idx]
			putFloats(rec[12+12*c:], v.X, v.Y, v.Z)
		}
		binary.LittleEndian.PutUint16(rec[48:], 0)
		if _, err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func putFloats(buf []byte, fs ...float32) {
	for i, f := range fs {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
}

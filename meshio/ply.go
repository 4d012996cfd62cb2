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

	"github.com/chenzhekl/goply"
	"github.com/pkg/errors"

	"go.viam.com/meshproc/mesh"
	"go.viam.com/meshproc/pointcloud"
	"go.viam.com/meshproc/spatialmath"
)

const (
	plyASCII        = "ascii"
	plyLittleEndian = "binary_little_endian"
)

type plyProperty struct {
	name string
	typ  string
	// list properties store their length type in countType and item type in typ
	list      bool
	countType string
}

type plyElement struct {
	name  string
	count int
	props []plyProperty
}

type plyHeader struct {
	format   string
	elements []plyElement
	// offset of the first body byte
	bodyOffset int
}

var plySizes = map[string]int{
	"char": 1, "uchar": 1, "int8": 1, "uint8": 1,
	"short": 2, "ushort": 2, "int16": 2, "uint16": 2,
	"int": 4, "uint": 4, "int32": 4, "uint32": 4, "float": 4, "float32": 4,
	"double": 8, "float64": 8,
}

func parsePLYHeader(data []byte) (plyHeader, error) {
	var h plyHeader
	offset := 0
	for lineNum := 0; ; lineNum++ {
		end := bytes.IndexByte(data[offset:], '\n')
		if end < 0 {
			return h, errors.New("ply header has no end_header")
		}
		line := strings.TrimSpace(string(data[offset : offset+end]))
		offset += end + 1
		fields := strings.Fields(line)
		if lineNum == 0 {
			if line != "ply" {
				return h, errors.New("not a ply file")
			}
			continue
		}
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "format":
			if len(fields) < 2 {
				return h, errors.Errorf("invalid ply format line %q", line)
			}
			h.format = fields[1]
		case "comment", "obj_info":
		case "element":
			if len(fields) != 3 {
				return h, errors.Errorf("invalid ply element line %q", line)
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil || n < 0 {
				return h, errors.Errorf("invalid ply element count in %q", line)
			}
			h.elements = append(h.elements, plyElement{name: fields[1], count: n})
		case "property":
			if len(h.elements) == 0 {
				return h, errors.Errorf("ply property %q before any element", line)
			}
			var p plyProperty
			switch {
			case len(fields) == 5 && fields[1] == "list":
				p = plyProperty{name: fields[4], typ: fields[3], list: true, countType: fields[2]}
			case len(fields) == 3:
				p = plyProperty{name: fields[2], typ: fields[1]}
			default:
				return h, errors.Errorf("invalid ply property line %q", line)
			}
			if _, ok := plySizes[p.typ]; !ok {
				return h, errors.Errorf("unknown ply type in %q", line)
			}
			if _, ok := plySizes[p.countType]; p.list && !ok {
				return h, errors.Errorf("unknown ply type in %q", line)
			}
			el := &h.elements[len(h.elements)-1]
			el.props = append(el.props, p)
		case "end_header":
			h.bodyOffset = offset
			return h, nil
		default:
			return h, errors.Errorf("unexpected ply header line %q", line)
		}
	}
}

// ReadPLY parses an ascii or binary_little_endian PLY. Faces are read from vertex_indices (or
// vertex_index) and fan triangulated; a file with no faces is a point cloud.
func ReadPLY(data []byte) (Result, error) {
	h, err := parsePLYHeader(data)
	if err != nil {
		return Result{}, err
	}
	var elements map[string][]goply.PlyElement
	switch h.format {
	case plyASCII:
		elements, err = readASCIIPLY(data, h)
	case plyLittleEndian:
		elements, err = readBinaryPLY(data[h.bodyOffset:], h)
	default:
		return Result{}, errors.Errorf("unsupported ply format %q", h.format)
	}
	if err != nil {
		return Result{}, err
	}

	vertices := make([]spatialmath.Vertex, 0, len(elements["vertex"]))
	for i, el := range elements["vertex"] {
		var xyz [3]float64
		for j, name := range []string{"x", "y", "z"} {
			v, ok := plyNumber(el[name])
			if !ok {
				return Result{}, errors.Errorf("ply vertex %d has no numeric %s", i, name)
			}
			xyz[j] = v
		}
		vertices = append(vertices, spatialmath.NewVertex(xyz[0], xyz[1], xyz[2]))
	}

	faces := elements["face"]
	polygons := make([][]int, 0, len(faces))
	for i, el := range faces {
		raw, ok := el["vertex_indices"]
		if !ok {
			raw = el["vertex_index"]
		}
		list, ok := raw.([]interface{})
		if !ok {
			return Result{}, errors.Errorf("ply face %d has no vertex_indices list", i)
		}
		poly := make([]int, len(list))
		for j, item := range list {
			v, ok := plyNumber(item)
			if !ok || v != math.Trunc(v) {
				return Result{}, errors.Errorf("ply face %d has a non integer index", i)
			}
			poly[j] = int(v)
		}
		polygons = append(polygons, poly)
	}
	return fromIndexed(vertices, polygons)
}

// readASCIIPLY hands ascii bodies to goply, which reports malformed input by panicking.
func readASCIIPLY(data []byte, h plyHeader) (elements map[string][]goply.PlyElement, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("invalid ascii ply: %v", r)
		}
	}()
	ply := goply.New(bytes.NewReader(data))
	elements = make(map[string][]goply.PlyElement, len(h.elements))
	for _, el := range h.elements {
		got := ply.Elements(el.name)
		if len(got) != el.count {
			return nil, errors.Errorf("ply has %d of %d %s elements", len(got), el.count, el.name)
		}
		elements[el.name] = got
	}
	return elements, nil
}

func readBinaryPLY(body []byte, h plyHeader) (map[string][]goply.PlyElement, error) {
	r := bytes.NewReader(body)
	elements := make(map[string][]goply.PlyElement, len(h.elements))
	for _, el := range h.elements {
		out := make([]goply.PlyElement, el.count)
		for i := range out {
			out[i] = goply.PlyElement{}
			for _, p := range el.props {
				if !p.list {
					v, err := readPLYScalar(r, p.typ)
					if err != nil {
						return nil, errors.Wrapf(err, "ply %s %d property %s", el.name, i, p.name)
					}
					out[i][p.name] = v
					continue
				}
				n, err := readPLYScalar(r, p.countType)
				if err != nil || n < 0 || int(n) > r.Len() {
					return nil, errors.Errorf("ply %s %d has a bad %s length", el.name, i, p.name)
				}
				list := make([]interface{}, int(n))
				for j := range list {
					if list[j], err = readPLYScalar(r, p.typ); err != nil {
						return nil, errors.Wrapf(err, "ply %s %d property %s", el.name, i, p.name)
					}
				}
				out[i][p.name] = list
			}
		}
		elements[el.name] = out
	}
	return elements, nil
}

func readPLYScalar(r io.Reader, typ string) (float64, error) {
	var buf [8]byte
	b := buf[:plySizes[typ]]
	if _, err := io.ReadFull(r, b); err != nil {
		return 0, err
	}
	le := binary.LittleEndian
	switch typ {
	case "char", "int8":
		return float64(int8(b[0])), nil
	case "uchar", "uint8":
		return float64(b[0]), nil
	case "short", "int16":
		return float64(int16(le.Uint16(b))), nil
	case "ushort", "uint16":
		return float64(le.Uint16(b)), nil
	case "int", "int32":
		return float64(int32(le.Uint32(b))), nil
	case "uint", "uint32":
		return float64(le.Uint32(b)), nil
	case "float", "float32":
		return float64(math.Float32frombits(le.Uint32(b))), nil
	default:
		return math.Float64frombits(le.Uint64(b)), nil
	}
}

// plyNumber widens any numeric value goply or the binary reader produce.
func plyNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int8:
		return float64(n), true
	case uint8:
		return float64(n), true
	case int16:
		return float64(n), true
	case uint16:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint32:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func writePLYHeader(w io.Writer, asBinary bool, vertices, faces int) {
	format := plyASCII
	if asBinary {
		format = plyLittleEndian
	}
	fmt.Fprintf(w, "ply\nformat %s 1.0\ncomment written by meshproc\n", format)
	fmt.Fprintf(w, "element vertex %d\nproperty float x\nproperty float y\nproperty float z\n", vertices)
	if faces >= 0 {
		fmt.Fprintf(w, "element face %d\nproperty list uchar int vertex_indices\n", faces)
	}
	fmt.Fprintln(w, "end_header")
}

func writePLYVertices(w io.Writer, vertices []spatialmath.Vertex, asBinary bool) {
	var rec [12]byte
	for _, v := range vertices {
		if asBinary {
			putFloats(rec[:], v.X, v.Y, v.Z)
			w.Write(rec[:]) //nolint:errcheck
			continue
		}
		fmt.Fprintf(w, "%s %s %s\n", formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z))
	}
}

// WritePLY writes m with float vertices and uchar/int triangle lists.
func WritePLY(w io.Writer, m *mesh.Mesh, asBinary bool) error {
	bw := bufio.NewWriter(w)
	writePLYHeader(bw, asBinary, len(m.Vertices), len(m.Triangles))
	writePLYVertices(bw, m.Vertices, asBinary)
	var rec [13]byte
	rec[0] = 3
	for _, t := range m.Triangles {
		if asBinary {
			for i, idx := range t.V {
				binary.LittleEndian.PutUint32(rec[1+4*i:], uint32(int32(idx)))
			}
			bw.Write(rec[:]) //nolint:errcheck
			continue
		}
		fmt.Fprintf(bw, "3 %d %d %d\n", t.V[0], t.V[1], t.V[2])
	}
	return bw.Flush()
}

// WritePLYCloud writes a vertex only PLY.
func WritePLYCloud(w io.Writer, pc *pointcloud.PointCloud, asBinary bool) error {
	bw := bufio.NewWriter(w)
	writePLYHeader(bw, asBinary, pc.Size(), -1)
	writePLYVertices(bw, pc.Points(), asBinary)
	return bw.Flush()
}

// formatFloat prints the shortest text that parses back to the same float32.
func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

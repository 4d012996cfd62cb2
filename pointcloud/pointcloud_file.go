package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/edaniels/lidario"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	lzf "github.com/zhuyie/golzf"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/meshproc/logging"
	"go.viam.com/meshproc/spatialmath"
)

// PCDType is the data encoding of a pcd file.
type PCDType int

const (
	// PCDAscii is one whitespace separated point per line.
	PCDAscii PCDType = iota
	// PCDBinary is packed little endian records.
	PCDBinary
	// PCDCompressed is LZF compressed binary with one column per field.
	PCDCompressed
)

// lasLossTolerance is how far a LAS coordinate may move when narrowed to single precision
// before it is reported.
const lasLossTolerance = 1e-4

// NewFromFile reads a point cloud from a .pcd or .las file.
func NewFromFile(fn string, logger logging.Logger) (*PointCloud, error) {
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".las":
		return NewFromLASFile(fn, logger)
	case ".pcd":
		//nolint:gosec
		f, err := os.Open(fn)
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(f.Close)
		return ReadPCD(f)
	default:
		return nil, errors.Errorf("do not know how to read point cloud file %q", fn)
	}
}

// WriteToFile writes a point cloud to a .pcd (binary) or .las file.
func WriteToFile(cloud *PointCloud, fn string) error {
	switch strings.ToLower(filepath.Ext(fn)) {
	case ".las":
		return WriteToLASFile(cloud, fn)
	case ".pcd":
		return WriteToPCDFile(cloud, fn, PCDBinary)
	default:
		return errors.Errorf("do not know how to write point cloud file %q", fn)
	}
}

// WriteToPCDFile writes the cloud to a PCD file with the given encoding.
func WriteToPCDFile(cloud *PointCloud, fn string, outputType PCDType) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err := ToPCD(cloud, w, outputType); err != nil {
		return err
	}
	return w.Flush()
}

// NewFromLASFile returns a point cloud read from a LAS file. Coordinates are narrowed to single
// precision; points that lose more than lasLossTolerance are counted and reported, not rejected.
func NewFromLASFile(fn string, logger logging.Logger) (*PointCloud, error) {
	lf, err := lidario.NewLasFile(fn, "r")
	if err != nil {
		return nil, errors.Wrapf(err, "opening las file %q", fn)
	}
	defer utils.UncheckedErrorFunc(lf.Close)

	pc := NewWithPrealloc(lf.Header.NumberPoints)
	lossy := 0
	for i := 0; i < lf.Header.NumberPoints; i++ {
		p, err := lf.LasPoint(i)
		if err != nil {
			return nil, errors.Wrapf(err, "reading las point %d", i)
		}
		data := p.PointData()
		v := spatialmath.NewVertex(data.X, data.Y, data.Z)
		if v.Vector().Distance(r3.Vector{X: data.X, Y: data.Y, Z: data.Z}) > lasLossTolerance {
			lossy++
		}
		if err := pc.Set(v); err != nil {
			return nil, errors.Wrapf(err, "las point %d", i)
		}
	}
	if lossy > 0 {
		logger.Warnw("las coordinates lost precision when narrowed to single precision",
			"file", fn, "points", lossy, "tolerance", lasLossTolerance)
	}
	return pc, nil
}

// WriteToLASFile writes the point cloud out to a LAS file using point format 0.
func WriteToLASFile(cloud *PointCloud, fn string) (err error) {
	lf, err := lidario.NewLasFile(fn, "w")
	if err != nil {
		return errors.Wrapf(err, "creating las file %q", fn)
	}
	defer func() {
		err = multierr.Combine(err, lf.Close())
	}()

	if err = lf.AddHeader(lidario.LasHeader{PointFormatID: 0}); err != nil {
		return err
	}
	cloud.Iterate(func(_ int, v spatialmath.Vertex) bool {
		p := v.Vector()
		err = lf.AddLasPoint(&lidario.PointRecord0{
			X: p.X,
			Y: p.Y,
			Z: p.Z,
			BitField: lidario.PointBitField{
				Value: (1) | (1 << 3),
			},
			ClassBitField: lidario.ClassificationBitField{
				Value: 0,
			},
			PointSourceID: 1,
		})
		return err == nil
	})
	return err
}

// ToPCD writes the cloud as a version .7 PCD file with x y z float fields.
func ToPCD(cloud *PointCloud, out io.Writer, outputType PCDType) error {
	var data string
	switch outputType {
	case PCDAscii:
		data = "ascii"
	case PCDBinary:
		data = "binary"
	case PCDCompressed:
		data = "binary_compressed"
	default:
		return errors.Errorf("unknown PCD type %d", outputType)
	}
	if _, err := fmt.Fprintf(out, "VERSION .7\n"+
		"FIELDS x y z\n"+
		"SIZE 4 4 4\n"+
		"TYPE F F F\n"+
		"COUNT 1 1 1\n"+
		"WIDTH %d\n"+
		"HEIGHT 1\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n"+
		"DATA %s\n", cloud.Size(), cloud.Size(), data); err != nil {
		return err
	}
	if outputType == PCDCompressed {
		return writePCDCompressed(cloud, out)
	}

	var err error
	buf := make([]byte, 12)
	cloud.Iterate(func(_ int, v spatialmath.Vertex) bool {
		switch outputType {
		case PCDBinary:
			binary.LittleEndian.PutUint32(buf, math.Float32bits(v.X))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(v.Y))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(v.Z))
			_, err = out.Write(buf)
		default:
			_, err = fmt.Fprintf(out, "%s %s %s\n", formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z))
		}
		return err == nil
	})
	return err
}

// writePCDCompressed writes the x, y and z columns one after another, LZF compressed and
// preceded by the compressed and uncompressed sizes.
func writePCDCompressed(cloud *PointCloud, out io.Writer) error {
	n := cloud.Size()
	raw := make([]byte, 12*n)
	cloud.Iterate(func(i int, v spatialmath.Vertex) bool {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v.X))
		binary.LittleEndian.PutUint32(raw[4*(n+i):], math.Float32bits(v.Y))
		binary.LittleEndian.PutUint32(raw[4*(2*n+i):], math.Float32bits(v.Z))
		return true
	})
	compressed := make([]byte, len(raw)+len(raw)/16+64)
	size, err := lzf.Compress(raw, compressed)
	if err != nil {
		return errors.Wrap(err, "compressing pcd data")
	}
	sizes := make([]byte, 8)
	binary.LittleEndian.PutUint32(sizes, uint32(size))
	binary.LittleEndian.PutUint32(sizes[4:], uint32(len(raw)))
	if _, err := out.Write(sizes); err != nil {
		return err
	}
	_, err = out.Write(compressed[:size])
	return err
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}

type pcdHeader struct {
	fields []string
	size   []int
	types  []string
	count  []int
	width  int
	height int
	points int
	data   PCDType
}

var pcdHeaderFields = []string{"VERSION", "FIELDS", "SIZE", "TYPE", "COUNT", "WIDTH", "HEIGHT", "VIEWPOINT", "POINTS", "DATA"}

func parseInts(tokens []string, what string) ([]int, error) {
	out := make([]int, len(tokens))
	for i, token := range tokens {
		v, err := strconv.Atoi(token)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s field %q", what, token)
		}
		out[i] = v
	}
	return out, nil
}

func parsePCDHeaderLine(line string, index int, header *pcdHeader) error {
	name := pcdHeaderFields[index]
	tokens := strings.Fields(line)
	if len(tokens) == 0 || tokens[0] != name {
		return errors.Errorf("line is supposed to start with %s but is %q", name, line)
	}
	values := tokens[1:]
	var err error
	switch name {
	case "VERSION":
		if len(values) != 1 || strings.TrimPrefix(values[0], "0") != ".7" {
			return errors.Errorf("unsupported pcd version %v", values)
		}
	case "FIELDS":
		header.fields = values
	case "SIZE":
		header.size, err = parseInts(values, "SIZE")
	case "TYPE":
		header.types = values
	case "COUNT":
		header.count, err = parseInts(values, "COUNT")
	case "WIDTH", "HEIGHT", "POINTS":
		var v []int
		if v, err = parseInts(values, name); err == nil {
			if len(v) != 1 || v[0] < 0 {
				return errors.Errorf("invalid %s line %q", name, line)
			}
			switch name {
			case "WIDTH":
				header.width = v[0]
			case "HEIGHT":
				header.height = v[0]
			default:
				header.points = v[0]
			}
		}
	case "VIEWPOINT":
		if len(values) != 7 {
			return errors.Errorf("unexpected number of fields in VIEWPOINT line, expected 7, got %d", len(values))
		}
		for _, token := range values {
			if _, err := strconv.ParseFloat(token, 64); err != nil {
				return errors.Wrapf(err, "invalid VIEWPOINT field %q", token)
			}
		}
	case "DATA":
		switch strings.Join(values, " ") {
		case "ascii":
			header.data = PCDAscii
		case "binary":
			header.data = PCDBinary
		case "binary_compressed":
			header.data = PCDCompressed
		default:
			return errors.Errorf("unsupported pcd data %q", line)
		}
	}
	return err
}

// validate checks the header describes x y z float fields this reader understands. Extra
// fields such as rgb are allowed and skipped.
func (h *pcdHeader) validate() error {
	n := len(h.fields)
	if len(h.size) != n || len(h.types) != n {
		return errors.New("pcd FIELDS, SIZE and TYPE lines disagree in length")
	}
	if h.count == nil {
		h.count = make([]int, n)
		for i := range h.count {
			h.count[i] = 1
		}
	}
	if len(h.count) != n {
		return errors.New("pcd COUNT line disagrees with FIELDS")
	}
	if n < 3 || h.fields[0] != "x" || h.fields[1] != "y" || h.fields[2] != "z" {
		return errors.Errorf("pcd fields must start with x y z, got %v", h.fields)
	}
	for i := 0; i < 3; i++ {
		if h.types[i] != "F" || (h.size[i] != 4 && h.size[i] != 8) || h.count[i] != 1 {
			return errors.Errorf("pcd field %s must be a single F of size 4 or 8", h.fields[i])
		}
	}
	if h.points != h.width*h.height {
		return errors.Errorf("POINTS field %d does not match WIDTH*HEIGHT %d", h.points, h.width*h.height)
	}
	return nil
}

// ReadPCD reads an ascii or binary PCD stream whose first three fields are x y z.
func ReadPCD(inRaw io.Reader) (*PointCloud, error) {
	in := bufio.NewReader(inRaw)
	header := pcdHeader{}
	for index := 0; index < len(pcdHeaderFields); {
		line, err := in.ReadString('\n')
		if err != nil {
			return nil, errors.Wrapf(err, "reading pcd header line %d", index)
		}
		line, _, _ = strings.Cut(line, "#")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		// COUNT is optional in the wild
		if index == 4 && !strings.HasPrefix(line, "COUNT") {
			index++
		}
		if err := parsePCDHeaderLine(line, index, &header); err != nil {
			return nil, err
		}
		index++
	}
	if err := header.validate(); err != nil {
		return nil, err
	}

	switch header.data {
	case PCDAscii:
		return readPCDAscii(in, header)
	case PCDBinary:
		return readPCDBinary(in, header)
	default:
		return readPCDCompressed(in, header)
	}
}

func readPCDAscii(in *bufio.Reader, header pcdHeader) (*PointCloud, error) {
	pc := NewWithPrealloc(header.points)
	scanner := bufio.NewScanner(in)
	for i := 0; i < header.points; {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, err
			}
			return nil, errors.Errorf("pcd ends after %d of %d points", i, header.points)
		}
		tokens := strings.Fields(scanner.Text())
		if len(tokens) == 0 {
			continue
		}
		if len(tokens) < 3 {
			return nil, errors.Errorf("pcd point %d has %d values", i, len(tokens))
		}
		var xyz [3]float64
		for j := range xyz {
			v, err := strconv.ParseFloat(tokens[j], 64)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid pcd point %d", i)
			}
			xyz[j] = v
		}
		if err := pc.Set(spatialmath.NewVertex(xyz[0], xyz[1], xyz[2])); err != nil {
			return nil, errors.Wrapf(err, "pcd point %d", i)
		}
		i++
	}
	return pc, nil
}

func readPCDBinary(in *bufio.Reader, header pcdHeader) (*PointCloud, error) {
	stride := 0
	offsets := make([]int, len(header.fields))
	for i := range header.fields {
		offsets[i] = stride
		stride += header.size[i] * header.count[i]
	}

	pc := NewWithPrealloc(header.points)
	record := make([]byte, stride)
	for i := 0; i < header.points; i++ {
		if _, err := io.ReadFull(in, record); err != nil {
			return nil, errors.Wrapf(err, "reading pcd point %d", i)
		}
		var xyz [3]float64
		for j := range xyz {
			xyz[j] = decodePCDFloat(record[offsets[j]:], header.size[j])
		}
		if err := pc.Set(spatialmath.NewVertex(xyz[0], xyz[1], xyz[2])); err != nil {
			return nil, errors.Wrapf(err, "pcd point %d", i)
		}
	}
	return pc, nil
}

func readPCDCompressed(in *bufio.Reader, header pcdHeader) (*PointCloud, error) {
	sizes := make([]byte, 8)
	if _, err := io.ReadFull(in, sizes); err != nil {
		return nil, errors.Wrap(err, "reading compressed pcd sizes")
	}
	compressedSize := int(binary.LittleEndian.Uint32(sizes))
	rawSize := int(binary.LittleEndian.Uint32(sizes[4:]))

	// columns: every point's first field, then every point's second field, and so on
	offsets := make([]int, len(header.fields))
	stride := 0
	for i := range header.fields {
		offsets[i] = stride * header.points
		stride += header.size[i] * header.count[i]
	}
	if rawSize != stride*header.points {
		return nil, errors.Errorf("compressed pcd holds %d bytes, expected %d", rawSize, stride*header.points)
	}

	compressed, err := io.ReadAll(io.LimitReader(in, int64(compressedSize)))
	if err != nil {
		return nil, err
	}
	if len(compressed) != compressedSize {
		return nil, errors.Errorf("compressed pcd data ends after %d of %d bytes", len(compressed), compressedSize)
	}
	raw := make([]byte, rawSize)
	n, err := lzf.Decompress(compressed, raw)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing pcd data")
	}
	if n != rawSize {
		return nil, errors.Errorf("compressed pcd decompressed to %d bytes, expected %d", n, rawSize)
	}

	pc := NewWithPrealloc(header.points)
	for i := 0; i < header.points; i++ {
		var xyz [3]float64
		for j := range xyz {
			xyz[j] = decodePCDFloat(raw[offsets[j]+i*header.size[j]:], header.size[j])
		}
		if err := pc.Set(spatialmath.NewVertex(xyz[0], xyz[1], xyz[2])); err != nil {
			return nil, errors.Wrapf(err, "pcd point %d", i)
		}
	}
	return pc, nil
}

func decodePCDFloat(b []byte, size int) float64 {
	if size == 8 {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
}

package reconstruction

import (
	"github.com/golang/geo/r3"
)

// Cube corners and edges are numbered the usual Marching Cubes way:
//
//	corner 0 (0,0,0)  1 (1,0,0)  2 (1,1,0)  3 (0,1,0)
//	corner 4 (0,0,1)  5 (1,0,1)  6 (1,1,1)  7 (0,1,1)
//
// edges 0-3 ring the bottom face, 4-7 the top face and 8-11 are the verticals.
var (
	cornerOffsets = [8][3]int{
		{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
		{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
	}
	edgeCorners = [12][2]int{
		{0, 1}, {1, 2}, {2, 3}, {3, 0},
		{4, 5}, {5, 6}, {6, 7}, {7, 4},
		{0, 4}, {1, 5}, {2, 6}, {3, 7},
	}
	cubeFaces = [6]struct {
		corners [4]int
		normal  r3.Vector
	}{
		{[4]int{0, 1, 2, 3}, r3.Vector{Z: -1}},
		{[4]int{4, 5, 6, 7}, r3.Vector{Z: 1}},
		{[4]int{0, 1, 5, 4}, r3.Vector{Y: -1}},
		{[4]int{3, 2, 6, 7}, r3.Vector{Y: 1}},
		{[4]int{0, 3, 7, 4}, r3.Vector{X: -1}},
		{[4]int{1, 2, 6, 5}, r3.Vector{X: 1}},
	}
)

// edgeTable[i] has bit e set when edge e of a cube with corner mask i crosses the surface.
// triTable[i] lists the triangles of that cube as edge index triples.
var (
	edgeTable [256]uint16
	triTable  [256][][3]int
)

func init() {
	for i := range edgeTable {
		edgeTable[i], triTable[i] = deriveCase(uint8(i))
	}
}

// deriveCase builds the table entries for one corner mask. The surface crosses each cube face
// in at most two segments; the segments of all six faces chain into closed loops around the
// solid corners, and each loop is fan triangulated from its lowest numbered edge. A face with
// all four edges crossed is resolved by keeping its two solid corners apart. Faces are shared
// by neighbouring cubes and resolved the same way from both sides, so the output is closed.
func deriveCase(mask uint8) (uint16, [][3]int) {
	solid := func(c int) bool { return mask&(1<<c) != 0 }

	var crossed uint16
	for e, ends := range edgeCorners {
		if solid(ends[0]) != solid(ends[1]) {
			crossed |= 1 << e
		}
	}
	if crossed == 0 {
		return 0, nil
	}

	var next [12]int
	for i := range next {
		next[i] = -1
	}
	for _, f := range cubeFaces {
		var faceEdges [4]int
		var hits []int
		for i := range faceEdges {
			faceEdges[i] = edgeBetween(f.corners[i], f.corners[(i+1)%4])
			if crossed&(1<<faceEdges[i]) != 0 {
				hits = append(hits, faceEdges[i])
			}
		}
		var segments [][2]int
		switch len(hits) {
		case 2:
			segments = append(segments, [2]int{hits[0], hits[1]})
		case 4:
			for i, c := range f.corners {
				if solid(c) {
					segments = append(segments, [2]int{faceEdges[(i+3)%4], faceEdges[i]})
				}
			}
		}
		for _, s := range segments {
			from, to := orientSegment(s[0], s[1], f.normal, solid)
			next[from] = to
		}
	}

	var triangles [][3]int
	var seen uint16
	for e := 0; e < 12; e++ {
		if crossed&(1<<e) == 0 || seen&(1<<e) != 0 {
			continue
		}
		loop := []int{e}
		seen |= 1 << e
		for x := next[e]; x != e; x = next[x] {
			loop = append(loop, x)
			seen |= 1 << x
		}
		for i := 1; i+1 < len(loop); i++ {
			triangles = append(triangles, [3]int{loop[0], loop[i], loop[i+1]})
		}
	}
	return crossed, triangles
}

// orientSegment directs a face segment p-q so that (q-p) x (c-p) points into the cube, where c
// is the solid corner of p's edge. Loops directed this way produce triangles whose normals
// point from the solid corners toward the empty ones.
func orientSegment(p, q int, faceNormal r3.Vector, solid func(int) bool) (int, int) {
	mp, mq := edgeMidpoint(p), edgeMidpoint(q)
	inside := edgeCorners[p][0]
	if !solid(inside) {
		inside = edgeCorners[p][1]
	}
	if mq.Sub(mp).Cross(cornerVector(inside).Sub(mp)).Dot(faceNormal) < 0 {
		return p, q
	}
	return q, p
}

func edgeBetween(a, b int) int {
	for e, ends := range edgeCorners {
		if (ends[0] == a && ends[1] == b) || (ends[0] == b && ends[1] == a) {
			return e
		}
	}
	panic("corners do not share a cube edge")
}

func cornerVector(c int) r3.Vector {
	o := cornerOffsets[c]
	return r3.Vector{X: float64(o[0]), Y: float64(o[1]), Z: float64(o[2])}
}

func edgeMidpoint(e int) r3.Vector {
	return cornerVector(edgeCorners[e][0]).Add(cornerVector(edgeCorners[e][1])).Mul(0.5)
}

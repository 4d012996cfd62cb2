package spatialmath

// EdgeKey is the canonical identity of an undirected edge: its two endpoints ordered so that
// A sorts before (or equals) B. NewEdgeKey(a, b) and NewEdgeKey(b, a) are equal, which makes
// EdgeKey usable as a map key for counting edge occurrences and for sharing vertices created
// on an edge.
type EdgeKey struct {
	A, B Vertex
}

// NewEdgeKey returns the canonical key of the edge between a and b.
func NewEdgeKey(a, b Vertex) EdgeKey {
	if b.Less(a) {
		return EdgeKey{A: b, B: a}
	}
	return EdgeKey{A: a, B: b}
}

// Length is the euclidean length of the edge.
func (e EdgeKey) Length() float64 {
	return e.A.Distance(e.B)
}

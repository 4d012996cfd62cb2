package mesh

import (
	"fmt"
	"sort"

	"go.viam.com/meshproc/spatialmath"
)

// Adjacency maps a vertex index to the sorted indices of the vertices it shares an edge with.
// It is derived from triangles and never maintained incrementally: rebuild it whenever the
// topology changes.
type Adjacency map[int][]int

// BuildAdjacency returns the undirected vertex adjacency of the triangles. Every triangle
// contributes its three edges. Degenerate triangles that repeat an index do not make a vertex
// its own neighbour.
func BuildAdjacency(triangles []Triangle) Adjacency {
	sets := make(map[int]map[int]struct{}, len(triangles))
	link := func(a, b int) {
		if a == b {
			return
		}
		if sets[a] == nil {
			sets[a] = make(map[int]struct{}, 6)
		}
		if sets[b] == nil {
			sets[b] = make(map[int]struct{}, 6)
		}
		sets[a][b] = struct{}{}
		sets[b][a] = struct{}{}
	}
	for _, t := range triangles {
		link(t.V[0], t.V[1])
		link(t.V[1], t.V[2])
		link(t.V[2], t.V[0])
	}

	adj := make(Adjacency, len(sets))
	for v, set := range sets {
		neighbors := make([]int, 0, len(set))
		for n := range set {
			neighbors = append(neighbors, n)
		}
		sort.Ints(neighbors)
		adj[v] = neighbors
	}
	return adj
}

// Neighbors returns v's neighbours, nil if v is on no edge.
func (adj Adjacency) Neighbors(v int) []int {
	return adj[v]
}

// MustNeighbors is Neighbors for a vertex the caller knows is on an edge. A missing entry means
// the adjacency was built from different topology than the caller is walking, which is a bug.
func (adj Adjacency) MustNeighbors(v int) []int {
	neighbors, ok := adj[v]
	if !ok {
		panic(fmt.Sprintf("vertex %d is referenced by a triangle but missing from the adjacency", v))
	}
	return neighbors
}

// Vertices returns the indices present in the adjacency, ascending.
func (adj Adjacency) Vertices() []int {
	out := make([]int, 0, len(adj))
	for v := range adj {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// EdgeCounts counts how many triangles use each undirected edge, keyed by endpoint coordinates.
func EdgeCounts(m *Mesh) map[spatialmath.EdgeKey]int {
	counts := make(map[spatialmath.EdgeKey]int, len(m.Triangles)*3/2)
	for _, t := range m.Triangles {
		for j := 0; j < 3; j++ {
			a, b := m.Vertices[t.V[j]], m.Vertices[t.V[(j+1)%3]]
			counts[spatialmath.NewEdgeKey(a, b)]++
		}
	}
	return counts
}

// BoundaryVertices returns the set of vertex indices that are an endpoint of an edge used by
// exactly one triangle.
func BoundaryVertices(m *Mesh) map[int]struct{} {
	counts := EdgeCounts(m)
	boundary := make(map[int]struct{})
	for _, t := range m.Triangles {
		for j := 0; j < 3; j++ {
			a, b := t.V[j], t.V[(j+1)%3]
			if counts[spatialmath.NewEdgeKey(m.Vertices[a], m.Vertices[b])] == 1 {
				boundary[a] = struct{}{}
				boundary[b] = struct{}{}
			}
		}
	}
	return boundary
}

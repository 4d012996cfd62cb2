// Package segmentation finds connected pieces of a triangle mesh and removes the ones that are
// not wanted: small floating fragments (noise) or everything except the largest piece.
package segmentation

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/meshproc/mesh"
)

// NoiseFraction is the share of the vertex count below which a component always counts as
// noise, whatever minimum size the caller asks for.
const NoiseFraction = 100

// FindConnectedComponents partitions the vertices of adj into connected components. Vertices
// are visited in ascending index order, so the output is deterministic: components appear in
// order of their smallest vertex and each component is sorted.
func FindConnectedComponents(adj mesh.Adjacency) [][]int {
	visited := make(map[int]bool, len(adj))
	var components [][]int
	for _, start := range adj.Vertices() {
		if visited[start] {
			continue
		}
		visited[start] = true
		component := []int{}
		stack := []int{start}
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			component = append(component, v)
			for _, n := range adj.MustNeighbors(v) {
				if !visited[n] {
					visited[n] = true
					stack = append(stack, n)
				}
			}
		}
		sort.Ints(component)
		components = append(components, component)
	}
	return components
}

// NoiseStats reports what RemoveNoise did.
type NoiseStats struct {
	Threshold         int
	Components        int
	RemovedComponents int
	RemovedVertices   int
	RemovedTriangles  int
}

// RemoveNoise deletes every connected component with fewer vertices than
// max(minComponentSize, vertexCount/100). A triangle survives only if all of its vertices do,
// and vertices not used by any triangle belong to no component and are dropped. Removing
// everything is a valid outcome; the mesh is then empty.
func RemoveNoise(m *mesh.Mesh, minComponentSize int) error {
	_, err := RemoveNoiseWithStats(m, minComponentSize)
	return err
}

// RemoveNoiseWithStats is RemoveNoise that also reports what was removed.
func RemoveNoiseWithStats(m *mesh.Mesh, minComponentSize int) (NoiseStats, error) {
	if err := m.Validate(); err != nil {
		return NoiseStats{}, err
	}
	if minComponentSize < 0 {
		return NoiseStats{}, errors.Errorf("minimum component size must not be negative, got %d", minComponentSize)
	}
	stats := NoiseStats{Threshold: max(minComponentSize, len(m.Vertices)/NoiseFraction)}
	if m.IsEmpty() {
		stats.RemovedVertices = len(m.Vertices)
		m.Clear()
		return stats, nil
	}

	components := FindConnectedComponents(mesh.BuildAdjacency(m.Triangles))
	stats.Components = len(components)
	keep := make([]bool, len(m.Vertices))
	for _, c := range components {
		if len(c) < stats.Threshold {
			stats.RemovedComponents++
			continue
		}
		for _, v := range c {
			keep[v] = true
		}
	}

	vertices, triangles := len(m.Vertices), len(m.Triangles)
	m.RetainVertices(func(v int) bool { return keep[v] })
	m.ComputeNormals()
	stats.RemovedVertices = vertices - len(m.Vertices)
	stats.RemovedTriangles = triangles - len(m.Triangles)
	return stats, nil
}

// FindLargestComponent keeps only the largest set of triangles connected through shared edges
// (two triangles are adjacent when they have exactly two vertex indices in common) and drops
// the vertices no longer used. On a tie the component found first, i.e. the one containing the
// lowest numbered triangle, wins.
func FindLargestComponent(m *mesh.Mesh) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.IsEmpty() {
		return nil
	}

	components := triangleComponents(m.Triangles)
	largest := lo.MaxBy(components, func(a, b []int) bool { return len(a) > len(b) })
	keep := make([]bool, len(m.Triangles))
	for _, t := range largest {
		keep[t] = true
	}
	m.RetainTriangles(func(t int) bool { return keep[t] })
	m.ComputeNormals()
	return nil
}

// triangleComponents groups triangles by edge connectivity with a breadth first search.
func triangleComponents(triangles []mesh.Triangle) [][]int {
	// triangles meeting at a vertex are the only candidates for sharing an edge
	incident := make(map[int][]int, len(triangles))
	for i, t := range triangles {
		for _, v := range lo.Uniq(t.V[:]) {
			incident[v] = append(incident[v], i)
		}
	}

	visited := make([]bool, len(triangles))
	var components [][]int
	for start := range triangles {
		if visited[start] {
			continue
		}
		visited[start] = true
		component := []int{}
		queue := []int{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			component = append(component, cur)
			for _, v := range triangles[cur].V {
				for _, other := range incident[v] {
					if visited[other] || triangles[cur].SharedVertices(triangles[other]) != 2 {
						continue
					}
					visited[other] = true
					queue = append(queue, other)
				}
			}
		}
		components = append(components, component)
	}
	return components
}

package kdtree

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	gonumkd "gonum.org/v1/gonum/spatial/kdtree"
)

func randomPoints(rng *rand.Rand, n int) []r3.Vector {
	pts := make([]r3.Vector, n)
	for i := range pts {
		pts[i] = r3.Vector{X: rng.Float64()*10 - 5, Y: rng.Float64()*10 - 5, Z: rng.Float64()*10 - 5}
	}
	return pts
}

func bruteForce(pts []r3.Vector, q r3.Vector) (int, float64, bool) {
	best, bestDist, unique := -1, math.Inf(1), true
	for i, p := range pts {
		d := p.Distance(q)
		switch {
		case d < bestDist:
			best, bestDist, unique = i, d, true
		case d == bestDist:
			unique = false
		}
	}
	return best, bestDist, unique
}

func TestEmpty(t *testing.T) {
	tree := New(nil)
	test.That(t, tree.Len(), test.ShouldEqual, 0)
	_, ok := tree.Nearest(r3.Vector{})
	test.That(t, ok, test.ShouldBeFalse)
}

func TestUnmeasurableQuery(t *testing.T) {
	tree := New([]r3.Vector{{X: 1}, {Y: 1}})
	for _, q := range []r3.Vector{{X: math.NaN()}, {Y: math.Inf(1)}} {
		nn, ok := tree.Nearest(q)
		test.That(t, ok, test.ShouldBeFalse)
		test.That(t, nn, test.ShouldResemble, Neighbor{})
	}
}

func TestSinglePoint(t *testing.T) {
	tree := New([]r3.Vector{{X: 1, Y: 2, Z: 3}})
	nn, ok := tree.Nearest(r3.Vector{X: 1, Y: 2, Z: 7})
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, nn.Index, test.ShouldEqual, 0)
	test.That(t, nn.Distance, test.ShouldAlmostEqual, 4)
}

func TestNearestMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for _, n := range []int{2, 7, 100, 2000} {
		pts := randomPoints(rng, n)
		tree := New(pts)
		test.That(t, tree.Len(), test.ShouldEqual, n)
		for i := 0; i < 200; i++ {
			q := r3.Vector{X: rng.Float64()*12 - 6, Y: rng.Float64()*12 - 6, Z: rng.Float64()*12 - 6}
			nn, ok := tree.Nearest(q)
			test.That(t, ok, test.ShouldBeTrue)
			idx, dist, unique := bruteForce(pts, q)
			test.That(t, nn.Distance, test.ShouldEqual, dist)
			test.That(t, nn.Point, test.ShouldResemble, pts[nn.Index])
			if unique {
				test.That(t, nn.Index, test.ShouldEqual, idx)
			}
		}
	}
}

func TestExactMatch(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pts := randomPoints(rng, 500)
	tree := New(pts)
	for i, p := range pts {
		nn, ok := tree.Nearest(p)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, nn.Distance, test.ShouldEqual, 0)
		test.That(t, nn.Index, test.ShouldEqual, i)
	}
}

func TestDuplicatesAndPlanes(t *testing.T) {
	// many points sharing split coordinates exercise the equal-to-median paths
	var pts []r3.Vector
	for x := 0; x < 5; x++ {
		for y := 0; y < 5; y++ {
			pts = append(pts, r3.Vector{X: float64(x), Y: float64(y)}, r3.Vector{X: float64(x), Y: float64(y)})
		}
	}
	tree := New(pts)
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 300; i++ {
		q := r3.Vector{X: rng.Float64() * 4, Y: rng.Float64() * 4, Z: rng.Float64() - 0.5}
		nn, _ := tree.Nearest(q)
		_, dist, _ := bruteForce(pts, q)
		test.That(t, nn.Distance, test.ShouldEqual, dist)
	}
}

func TestAgainstGonum(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	pts := randomPoints(rng, 1000)
	gpts := make(gonumkd.Points, len(pts))
	for i, p := range pts {
		gpts[i] = gonumkd.Point{p.X, p.Y, p.Z}
	}
	oracle := gonumkd.New(gpts, false)
	tree := New(pts)

	for i := 0; i < 200; i++ {
		q := r3.Vector{X: rng.Float64()*10 - 5, Y: rng.Float64()*10 - 5, Z: rng.Float64()*10 - 5}
		_, dist2 := oracle.Nearest(gonumkd.Point{q.X, q.Y, q.Z})
		nn, ok := tree.Nearest(q)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, nn.Distance, test.ShouldAlmostEqual, math.Sqrt(dist2), 1e-12)
	}
}

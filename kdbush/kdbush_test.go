package kdbush_test

import (
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/paulmach/orb"
	"github.com/royalcat/egresscost/kdbush"
)

func randomPoints(n int, seed int64) []kdbush.Point[int] {
	rnd := rand.New(rand.NewSource(seed))
	points := make([]kdbush.Point[int], n)
	for i := range points {
		points[i] = kdbush.Point[int]{X: rnd.Float64() * 100, Y: rnd.Float64() * 100, Data: i}
	}
	return points
}

func TestRangeMatchesBruteForce(t *testing.T) {
	points := randomPoints(5000, 1)
	bush := kdbush.NewBush(points, 16)

	minX, minY, maxX, maxY := 20.0, 30.0, 45.0, 70.0
	got := bush.Range(minX, minY, maxX, maxY)
	slices.Sort(got)

	var expected []int
	for i, p := range points {
		if p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY {
			expected = append(expected, i)
		}
	}
	if !slices.Equal(got, expected) {
		t.Fatalf("range mismatch: got %d items, expected %d", len(got), len(expected))
	}

	var visited []int
	bush.VisitBound(orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}, func(i int) bool {
		visited = append(visited, i)
		return true
	})
	slices.Sort(visited)
	if !slices.Equal(visited, expected) {
		t.Fatalf("visit mismatch: got %d items, expected %d", len(visited), len(expected))
	}
}

func TestNearest(t *testing.T) {
	points := []kdbush.Point[int]{
		{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 5, Y: 5}, {X: 1.1, Y: 1},
	}
	bush := kdbush.NewBush(points, 2)

	if i := bush.Nearest(1.05, 1.0, 1, nil); i != 1 && i != 3 {
		t.Fatalf("expected 1 or 3, got %d", i)
	}
	if i := bush.Nearest(4, 4, 0.5, nil); i != -1 {
		t.Fatalf("expected -1, got %d", i)
	}
	even := func(i int, p kdbush.Point[int]) (float64, bool) {
		return math.Hypot(p.X-1.05, p.Y-1.0), i%2 == 0
	}
	if i := bush.Nearest(1.05, 1.0, 10, even); i != 0 {
		t.Fatalf("expected filtered nearest 0, got %d", i)
	}

	// shrinking x distances, as longitude does away from the equator,
	// changes the winner
	if i := bush.Nearest(0.1, 0.6, 10, nil); i != 0 {
		t.Fatalf("expected planar nearest 0, got %d", i)
	}
	stretched := func(_ int, p kdbush.Point[int]) (float64, bool) {
		dx, dy := (p.X-0.1)/4, p.Y-0.6
		return dx*dx + dy*dy, true
	}
	if i := bush.Nearest(0.1, 0.6, 10, stretched); i != 1 {
		t.Fatalf("expected metric nearest 1, got %d", i)
	}
}

func TestEmpty(t *testing.T) {
	bush := kdbush.NewBush[int](nil, 8)
	if got := bush.Range(0, 0, 1, 1); len(got) != 0 {
		t.Fatalf("expected empty, got %v", got)
	}
	if i := bush.Nearest(0, 0, 1, nil); i != -1 {
		t.Fatalf("expected -1, got %d", i)
	}
}

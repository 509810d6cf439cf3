package pointset_test

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/paulmach/orb"
	"github.com/royalcat/egresscost/pointset"
)

func TestPixelRoundTrip(t *testing.T) {
	for _, p := range []orb.Point{{13.4, 52.5}, {-74, 40.7}, {151.2, -33.9}} {
		x := pointset.LonToPixel(p.Lon(), 9)
		y := pointset.LatToPixel(p.Lat(), 9)
		lon := pointset.PixelToLon(x, 9)
		lat := pointset.PixelToLat(y, 9)
		if math.Abs(lon-p.Lon()) > 1e-9 || math.Abs(lat-p.Lat()) > 1e-9 {
			t.Errorf("round trip of %v gave (%f, %f)", p, lon, lat)
		}
	}
}

func TestGridVisitBound(t *testing.T) {
	g := pointset.GridForBound(orb.Bound{Min: orb.Point{13.3, 52.4}, Max: orb.Point{13.5, 52.6}}, 12)
	if g.Size() == 0 {
		t.Fatal("empty grid")
	}

	b := orb.Bound{Min: orb.Point{13.38, 52.48}, Max: orb.Point{13.42, 52.52}}
	var got []int
	g.VisitBound(b, func(i int) bool {
		got = append(got, i)
		return true
	})

	var expected []int
	for i := 0; i < g.Size(); i++ {
		if b.Contains(g.Point(i)) {
			expected = append(expected, i)
		}
	}
	if len(expected) == 0 {
		t.Fatal("test bound selects nothing")
	}
	if !slices.Equal(got, expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}

func TestGridPointInsideCell(t *testing.T) {
	g := &pointset.Grid{Zoom: 10, West: 550, North: 335, Width: 4, Height: 3}
	p := g.Point(5)
	x := int(pointset.LonToPixel(p.Lon(), 10))
	y := int(pointset.LatToPixel(p.Lat(), 10))
	if x != 551 || y != 336 {
		t.Fatalf("point 5 should be in pixel (551, 336), got (%d, %d)", x, y)
	}
	if !g.Bound().Contains(p) {
		t.Fatal("grid bound must contain its points")
	}
}

func TestAsGrid(t *testing.T) {
	var ps pointset.PointSet = &pointset.Grid{Zoom: 9, Width: 1, Height: 1}
	if _, err := pointset.AsGrid(ps); err != nil {
		t.Fatal(err)
	}

	ps = pointset.NewFreeForm([]orb.Point{{1, 1}})
	if _, err := pointset.AsGrid(ps); !errors.Is(err, pointset.ErrNotGrid) {
		t.Fatalf("expected ErrNotGrid, got %v", err)
	}
}

func TestSampleFreeForm(t *testing.T) {
	b := orb.Bound{Min: orb.Point{13.4, 52.5}, Max: orb.Point{13.42, 52.51}}
	ff := pointset.SampleFreeForm(b, 200, 1)
	if ff.Size() < 10 {
		t.Fatalf("too few samples: %d", ff.Size())
	}
	for i := 0; i < ff.Size(); i++ {
		if !b.Contains(ff.Point(i)) {
			t.Fatalf("sample %v outside bound", ff.Point(i))
		}
	}

	var visited int
	ff.VisitBound(b, func(int) bool {
		visited++
		return true
	})
	if visited != ff.Size() {
		t.Fatalf("visited %d of %d", visited, ff.Size())
	}
}

package scenario_test

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"testing"

	"github.com/paulmach/orb"
	"github.com/royalcat/egresscost/linkage"
	"github.com/royalcat/egresscost/pointset"
	"github.com/royalcat/egresscost/scenario"
	"github.com/royalcat/egresscost/streetmode"
	"github.com/royalcat/egresscost/streets"
	"github.com/royalcat/egresscost/transit"
)

const bridge = `
name: bridge
streets:
  - coordinates: [[0, 0], [0, 0.0025], [0, 0.005]]
    modes: [walk, bicycle]
stops:
  - id: north
    name: North
    coordinates: [0, 0.005]
`

// corridor is 100 walkable vertices ~100m apart along the equator with stops
// at both ends and in the middle.
func corridor(t *testing.T) (*streets.Layer, *transit.Layer) {
	layer := streets.NewLayer()
	prev := streets.NoVertex
	for i := 0; i < 100; i++ {
		v := layer.AddVertex(orb.Point{float64(i) * 0.0009, 0})
		if prev != streets.NoVertex {
			layer.AddStreet(prev, v, streets.AllowAll, 10_000, false)
		}
		prev = v
	}

	tl := transit.NewLayer([]transit.Stop{
		{ID: "west", Point: layer.VertexPoint(0)},
		{ID: "middle", Point: layer.VertexPoint(50)},
		{ID: "east", Point: layer.VertexPoint(99)},
	})
	tl.Link(layer, slog.Default())
	if err := tl.BuildDistanceTables(context.Background(), 2, nil); err != nil {
		t.Fatal(err)
	}
	return layer, tl
}

func TestParse(t *testing.T) {
	s, err := scenario.Parse([]byte(bridge))
	if err != nil {
		t.Fatal(err)
	}
	if s.Name != "bridge" || len(s.Streets) != 1 || len(s.Stops) != 1 {
		t.Fatalf("unexpected scenario %+v", s)
	}
	if !slices.Equal(s.Streets[0].Modes, []streetmode.StreetMode{streetmode.Walk, streetmode.Bicycle}) {
		t.Fatalf("unexpected modes %v", s.Streets[0].Modes)
	}

	invalid := []string{
		"streets:\n  - coordinates: [[0, 0]]\n    modes: [walk]\n",
		"streets:\n  - coordinates: [[0, 0], [1, 1]]\n",
		"stops:\n  - coordinates: [0, 0]\n",
	}
	for _, doc := range invalid {
		if _, err := scenario.Parse([]byte(doc)); !errors.Is(err, scenario.ErrInvalid) {
			t.Errorf("expected ErrInvalid for %q, got %v", doc, err)
		}
	}
	if _, err := scenario.Parse([]byte("streets:\n  - modes: [boat]\n")); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestApply(t *testing.T) {
	layer, tl := corridor(t)
	s, err := scenario.Parse([]byte(bridge))
	if err != nil {
		t.Fatal(err)
	}

	applied, err := s.Apply(context.Background(), layer, tl, streetmode.DefaultTable(), 2, slog.Default())
	if err != nil {
		t.Fatal(err)
	}

	if layer.VertexCount() != 100 || tl.StopCount() != 3 {
		t.Fatal("base layers were modified")
	}
	// the first coordinate snaps onto vertex 0
	if applied.Streets.VertexCount() != 102 {
		t.Fatalf("expected 2 new vertices, got %d", applied.Streets.VertexCount()-100)
	}
	if len(applied.ModifiedEdges) != 2 {
		t.Fatalf("expected 2 modified edges, got %d", len(applied.ModifiedEdges))
	}
	if applied.FirstNewStop != 3 || applied.Transit.StopCount() != 4 {
		t.Fatalf("unexpected stops: first new %d, count %d", applied.FirstNewStop, applied.Transit.StopCount())
	}
	if applied.Transit.StopVertex(3) != 101 {
		t.Fatalf("new stop should link to the new street end, got %d", applied.Transit.StopVertex(3))
	}
	if applied.Transit.WalkDistanceTable(3) == nil {
		t.Fatal("new stop has no walk table")
	}

	west := applied.Transit.WalkDistanceTable(0)
	if _, ok := west[101]; !ok {
		t.Fatal("west stop should now walk onto the new street")
	}
	if !maps.Equal(applied.Transit.WalkDistanceTable(2), tl.WalkDistanceTable(2)) {
		t.Fatal("east stop is far from the change and must keep its table")
	}
}

func TestPartialRebuildEndToEnd(t *testing.T) {
	layer, tl := corridor(t)
	var points []orb.Point
	for i := 0; i < 100; i += 3 {
		points = append(points, orb.Point{float64(i) * 0.0009, 0.0003})
	}
	points = append(points, orb.Point{0.0003, 0.005})
	ps := pointset.NewFreeForm(points)
	limits := streetmode.DefaultTable()

	base, err := linkage.Link(context.Background(), ps, layer, streetmode.Walk, 2, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := base.BuildCostTables(context.Background(), tl, limits, nil, nil); err != nil {
		t.Fatal(err)
	}
	northPoint := len(points) - 1
	if len(base.Table().PointToStop(northPoint)) != 0 {
		t.Fatal("north point should be unreachable before the scenario")
	}

	s, _ := scenario.Parse([]byte(bridge))
	applied, err := s.Apply(context.Background(), layer, tl, limits, 2, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	l, err := linkage.Link(context.Background(), ps, applied.Streets, streetmode.Walk, 2, slog.Default())
	if err != nil {
		t.Fatal(err)
	}
	stats, err := l.BuildCostTables(context.Background(), applied.Transit, limits, base, applied.ModifiedEdges)
	if err != nil {
		t.Fatal(err)
	}

	if stats.Reused != 2 {
		t.Fatalf("middle and east stops should be reused, stats %+v", stats)
	}
	for _, stop := range []int{1, 2} {
		if !slices.Equal(l.Table().StopToPoint[stop], base.Table().StopToPoint[stop]) {
			t.Errorf("stop %d changed outside the rebuild zone", stop)
		}
	}
	reached := l.Table().PointToStop(northPoint)
	if _, ok := reached[3]; !ok {
		t.Fatalf("north point should reach the new stop, got %v", reached)
	}
	if _, ok := reached[0]; !ok {
		t.Fatalf("north point should reach the west stop over the new street, got %v", reached)
	}
}

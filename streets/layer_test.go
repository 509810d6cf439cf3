package streets_test

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/royalcat/egresscost/streetmode"
	"github.com/royalcat/egresscost/streets"
)

// line builds a straight east-west street of n vertices spaced roughly 100m apart.
func line(n int, perms streets.Permission) *streets.Layer {
	l := streets.NewLayer()
	prev := streets.NoVertex
	for i := 0; i < n; i++ {
		v := l.AddVertex(orb.Point{13.4 + float64(i)*0.0014, 52.5})
		if prev != streets.NoVertex {
			l.AddStreet(prev, v, perms, streets.KmhToMillimetersPerSecond(36), false)
		}
		prev = v
	}
	return l
}

func TestAddStreet(t *testing.T) {
	l := line(3, streets.AllowAll)
	if l.VertexCount() != 3 || l.EdgeCount() != 4 {
		t.Fatalf("unexpected size: %d vertices, %d edges", l.VertexCount(), l.EdgeCount())
	}
	e := l.Edge(0)
	if e.LengthMM < 90_000 || e.LengthMM > 100_000 {
		t.Fatalf("unexpected length %d", e.LengthMM)
	}
	if e.CarSpeed != 10_000 {
		t.Fatalf("expected 10000 mm/s, got %d", e.CarSpeed)
	}
	if len(l.Outgoing(1)) != 2 {
		t.Fatalf("middle vertex should have 2 outgoing edges, got %d", len(l.Outgoing(1)))
	}
}

func TestOnewayDropsReverseCar(t *testing.T) {
	l := streets.NewLayer()
	a := l.AddVertex(orb.Point{0, 0})
	b := l.AddVertex(orb.Point{0.001, 0})
	fwd, back := l.AddStreet(a, b, streets.AllowAll, 1000, true)
	if !l.Edge(fwd).Permissions.Allows(streetmode.Car) {
		t.Fatal("forward edge must allow car")
	}
	if l.Edge(back).Permissions.Allows(streetmode.Car) {
		t.Fatal("reverse edge of a oneway must not allow car")
	}
	if !l.Edge(back).Permissions.Allows(streetmode.Walk) {
		t.Fatal("reverse edge of a oneway must still allow walking")
	}
}

func TestNearestVertex(t *testing.T) {
	l := line(5, streets.AllowWalk)

	v, dist, err := l.NearestVertex(orb.Point{13.4 + 2*0.0014, 52.5005}, 300, streetmode.Walk)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Fatalf("expected vertex 2, got %d", v)
	}
	if dist < 50 || dist > 60 {
		t.Fatalf("unexpected distance %f", dist)
	}

	if _, _, err := l.NearestVertex(orb.Point{13.4, 52.5}, 300, streetmode.Car); !errors.Is(err, streets.ErrNoVertex) {
		t.Fatalf("car must not link to a footway, got %v", err)
	}
	if _, _, err := l.NearestVertex(orb.Point{13.4, 52.52}, 300, streetmode.Walk); !errors.Is(err, streets.ErrNoVertex) {
		t.Fatalf("expected ErrNoVertex for a far point, got %v", err)
	}
}

func TestNearestVertexHighLatitude(t *testing.T) {
	l := streets.NewLayer()
	query := orb.Point{10, 60}
	// north is closer in degrees, east is closer in meters
	north := l.AddVertex(orb.Point{10, 60.003})
	east := l.AddVertex(orb.Point{10.005, 60})
	l.AddStreet(north, east, streets.AllowAll, 10_000, false)

	v, dist, err := l.NearestVertex(query, 300, streetmode.Walk)
	if err != nil {
		t.Fatal(err)
	}
	if v != east {
		t.Fatalf("expected vertex %d, got %d", east, v)
	}
	if dist < 270 || dist > 290 {
		t.Fatalf("unexpected distance %f", dist)
	}

	v, _, err = l.NearestVertex(query, 1000, streetmode.Walk)
	if err != nil || v != east {
		t.Fatalf("expected vertex %d with a wide radius, got %d (%v)", east, v, err)
	}
	if _, _, err := l.NearestVertex(query, 250, streetmode.Walk); !errors.Is(err, streets.ErrNoVertex) {
		t.Fatalf("expected ErrNoVertex within 250m, got %v", err)
	}
}

func TestExtendIsolation(t *testing.T) {
	base := line(3, streets.AllowAll)
	ext := base.Extend()

	v := ext.AddVertex(orb.Point{13.4, 52.501})
	ext.AddStreet(0, v, streets.AllowAll, 1000, false)

	if base.VertexCount() != 3 || base.EdgeCount() != 4 || len(base.Outgoing(0)) != 1 {
		t.Fatal("extending modified the base layer")
	}
	if ext.VertexCount() != 4 || ext.EdgeCount() != 6 || len(ext.Outgoing(0)) != 2 {
		t.Fatal("extension not applied")
	}

	bounds := ext.ScenarioEdgeBounds()
	if len(bounds) != 1 {
		t.Fatalf("expected 1 scenario edge bound, got %d", len(bounds))
	}
	if !bounds[0].Contains(orb.Point{13.4, 52.5005}) {
		t.Fatalf("bound %v should cover the new street", bounds[0])
	}
	if len(base.ScenarioEdgeBounds()) != 0 {
		t.Fatal("base layer has no scenario edges")
	}
}

func TestVertexAllows(t *testing.T) {
	l := streets.NewLayer()
	a := l.AddVertex(orb.Point{0, 0})
	b := l.AddVertex(orb.Point{0.001, 0})
	l.AddStreet(a, b, streets.AllowWalk, 0, false)
	if l.VertexAllows(a, streetmode.Bicycle) {
		t.Fatal("footway vertex must not allow bicycles")
	}
	if !l.VertexAllows(b, streetmode.Walk) {
		t.Fatal("footway vertex must allow walking")
	}
}

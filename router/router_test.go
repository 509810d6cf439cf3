package router_test

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/royalcat/egresscost/router"
	"github.com/royalcat/egresscost/streetmode"
	"github.com/royalcat/egresscost/streets"
)

// grid of n*n vertices ~100m apart; the last column is car only.
func gridLayer(n int) *streets.Layer {
	l := streets.NewLayer()
	id := func(x, y int) int32 { return int32(y*n + x) }
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			l.AddVertex(orb.Point{float64(x) * 0.0009, float64(y) * 0.0009})
		}
	}
	speed := streets.KmhToMillimetersPerSecond(36)
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			perms := streets.AllowAll
			if x == n-2 {
				perms = streets.AllowCar
			}
			if x+1 < n {
				l.AddStreet(id(x, y), id(x+1, y), perms, speed, false)
			}
			if y+1 < n {
				l.AddStreet(id(x, y), id(x, y+1), streets.AllowAll, speed, false)
			}
		}
	}
	return l
}

func TestRouteDistanceLimit(t *testing.T) {
	l := gridLayer(5)
	r := router.New(l, streetmode.Walk)
	if !r.SetOrigin(0, 0) {
		t.Fatal("origin not linked")
	}
	r.Route(router.Search{DistanceLimitMeters: 250, Minimize: streetmode.DistanceMillimeters})

	reached := r.ReachedVertices()
	if reached[0] != 0 {
		t.Fatalf("origin cost must be 0, got %d", reached[0])
	}
	for v, c := range reached {
		if c > 250_000 {
			t.Errorf("vertex %d cost %d over limit", v, c)
		}
	}
	// (1,1) is two hops away, (2,1) three
	if _, ok := reached[6]; !ok {
		t.Error("vertex 6 should be reached")
	}
	if _, ok := reached[7]; ok {
		t.Error("vertex 7 should be beyond the limit")
	}
}

func TestRouteRespectsPermissions(t *testing.T) {
	l := gridLayer(5)

	walk := router.New(l, streetmode.Walk)
	walk.SetOrigin(0, 0)
	walk.Route(router.Search{Minimize: streetmode.DistanceMillimeters})
	if _, ok := walk.ReachedVertices()[4]; ok {
		t.Fatal("walk crossed a car-only column")
	}

	car := router.New(l, streetmode.Car)
	car.SetOrigin(0, 0)
	car.Route(router.Search{TimeLimitSeconds: 1800, Minimize: streetmode.DurationSeconds})
	if tt := car.TravelTimeToVertex(4); tt == router.Unreachable || tt < 35 || tt > 45 {
		t.Fatalf("unexpected car time to vertex 4: %d", tt)
	}
	if car.ReachedVertices()[4] != car.TravelTimeToVertex(4) {
		t.Fatal("duration search must report seconds")
	}
}

func TestRouteTimeLimit(t *testing.T) {
	l := gridLayer(5)
	car := router.New(l, streetmode.Car)
	car.SetOrigin(0, 0)
	car.Route(router.Search{TimeLimitSeconds: 15, Minimize: streetmode.DurationSeconds})
	if car.TravelTimeToVertex(24) != router.Unreachable {
		t.Fatal("far corner should be out of the time limit")
	}
	if car.TravelTimeToVertex(1) == router.Unreachable {
		t.Fatal("neighbour should be reached")
	}
}

func TestSetOriginFarAway(t *testing.T) {
	r := router.New(gridLayer(3), streetmode.Walk)
	if r.SetOrigin(1, 1) {
		t.Fatal("origin 100km away must not link")
	}
	r.Route(router.Search{Minimize: streetmode.DistanceMillimeters})
	if len(r.ReachedVertices()) != 0 {
		t.Fatal("unlinked router must reach nothing")
	}
}

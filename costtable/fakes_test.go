package costtable_test

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/royalcat/egresscost/costtable"
	"github.com/royalcat/egresscost/router"
	"github.com/royalcat/egresscost/streetmode"
)

// fakeTransit stops sit on vertex i of a shared vertex list, or -1.
type fakeTransit struct {
	vertices []int32
	points   []orb.Point
	walk     []map[int32]int32
}

func (f *fakeTransit) StopCount() int            { return len(f.vertices) }
func (f *fakeTransit) StopVertex(stop int) int32 { return f.vertices[stop] }

func (f *fakeTransit) StopPoint(stop int) (orb.Point, bool) {
	if f.vertices[stop] < 0 {
		return orb.Point{}, false
	}
	return f.points[stop], true
}

func (f *fakeTransit) WalkDistanceTable(stop int) map[int32]int32 {
	if f.walk == nil {
		return nil
	}
	return f.walk[stop]
}

// fakeDestinations links point i to vertex i with an off street leg of offMM[i].
type fakeDestinations struct {
	points []orb.Point
	offMM  []int32
}

func (f *fakeDestinations) Size() int { return len(f.points) }

func (f *fakeDestinations) off(p int) int32 {
	if f.offMM == nil {
		return 0
	}
	return f.offMM[p]
}

func (f *fakeDestinations) ExtendToPoints(vertexCosts map[int32]int32, within orb.Bound, limit int32) costtable.StopCosts {
	var costs costtable.StopCosts
	for p, point := range f.points {
		if !within.Contains(point) {
			continue
		}
		c, ok := vertexCosts[int32(p)]
		if !ok {
			continue
		}
		if total := c + f.off(p); total <= limit {
			costs = append(costs, int32(p), total)
		}
	}
	return costs
}

func (f *fakeDestinations) Evaluate(timeToVertex func(int32) int32, offStreetSpeed int32) []int32 {
	times := make([]int32, len(f.points))
	for p := range f.points {
		t := timeToVertex(int32(p))
		if t == costtable.Unreachable {
			times[p] = costtable.Unreachable
			continue
		}
		times[p] = t + f.off(p)/offStreetSpeed
	}
	return times
}

// fakeRouter moves in straight lines at 10 m/s between the origin and the
// vertices, which share positions with the destination points.
type fakeRouter struct {
	vertices []orb.Point

	origin   orb.Point
	linked   bool
	minimize streetmode.CostUnit
	distMM   map[int32]int32
	seconds  map[int32]int32
}

func newFakeRouter(vertices []orb.Point) func() costtable.Router {
	return func() costtable.Router {
		return &fakeRouter{vertices: vertices}
	}
}

func (r *fakeRouter) SetOrigin(lat, lon float64) bool {
	r.origin = orb.Point{lon, lat}
	r.linked = true
	return true
}

func (r *fakeRouter) Route(s router.Search) {
	r.minimize = s.Minimize
	r.distMM = map[int32]int32{}
	r.seconds = map[int32]int32{}
	for v, p := range r.vertices {
		meters := geo.Distance(r.origin, p)
		seconds := int32(meters / 10)
		if s.DistanceLimitMeters > 0 && meters > float64(s.DistanceLimitMeters) {
			continue
		}
		if s.TimeLimitSeconds > 0 && seconds > int32(s.TimeLimitSeconds) {
			continue
		}
		r.distMM[int32(v)] = int32(meters * 1000)
		r.seconds[int32(v)] = seconds
	}
}

func (r *fakeRouter) ReachedVertices() map[int32]int32 {
	if r.minimize == streetmode.DurationSeconds {
		return r.seconds
	}
	return r.distMM
}

func (r *fakeRouter) TravelTimeToVertex(v int32) int32 {
	if t, ok := r.seconds[v]; ok {
		return t
	}
	return costtable.Unreachable
}

// lineWorld places n points along the equator every spacing degrees.
func lineWorld(n int, spacing float64) []orb.Point {
	points := make([]orb.Point, n)
	for i := range points {
		points[i] = orb.Point{float64(i) * spacing, 0}
	}
	return points
}

// walkTables gives every stop the straight line distance to each point
// within maxMeters, plus extra millimeters.
func walkTables(stops, points []orb.Point, maxMeters float64, extra int32) []map[int32]int32 {
	tables := make([]map[int32]int32, len(stops))
	for s, stop := range stops {
		table := map[int32]int32{}
		for p, point := range points {
			if d := geo.Distance(stop, point); d <= maxMeters {
				table[int32(p)] = int32(d*1000) + extra
			}
		}
		tables[s] = table
	}
	return tables
}

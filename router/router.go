package router

import (
	"math"

	"github.com/google/btree"
	"github.com/paulmach/orb"
	"github.com/royalcat/egresscost/streetmode"
	"github.com/royalcat/egresscost/streets"
)

// Unreachable is returned for vertices the last search did not reach.
const Unreachable = math.MaxInt32

const (
	WalkSpeedMillimetersPerSecond    = 1300
	BicycleSpeedMillimetersPerSecond = 4000
)

// Search bounds a single routing run. Zero limits are unbounded.
type Search struct {
	DistanceLimitMeters int
	TimeLimitSeconds    int
	// Minimize selects the metric reported by ReachedVertices.
	Minimize streetmode.CostUnit
}

type state struct {
	distMM int64
	timeMS int64
}

type queueItem struct {
	cost   int64
	vertex int32
}

func lessItem(a, b queueItem) bool {
	if a.cost != b.cost {
		return a.cost < b.cost
	}
	return a.vertex < b.vertex
}

// StreetRouter is a one-to-many search on the street layer for a single mode.
// It is not safe for concurrent use; create one per goroutine.
type StreetRouter struct {
	layer *streets.Layer
	mode  streetmode.StreetMode

	origin   int32
	minimize streetmode.CostUnit
	states   map[int32]state
}

func New(layer *streets.Layer, mode streetmode.StreetMode) *StreetRouter {
	return &StreetRouter{
		layer:  layer,
		mode:   mode,
		origin: streets.NoVertex,
	}
}

// SetOrigin snaps the origin to the nearest vertex usable by the router's mode.
func (r *StreetRouter) SetOrigin(lat, lon float64) bool {
	v, _, err := r.layer.NearestVertex(orb.Point{lon, lat}, streetmode.LinkRadiusMeters, r.mode)
	if err != nil {
		r.origin = streets.NoVertex
		return false
	}
	r.origin = v
	return true
}

func (r *StreetRouter) edgeTimeMS(e streets.Edge) int64 {
	var speed int64
	switch r.mode {
	case streetmode.Car:
		speed = int64(e.CarSpeed)
	case streetmode.Bicycle:
		speed = BicycleSpeedMillimetersPerSecond
	default:
		speed = WalkSpeedMillimetersPerSecond
	}
	if speed <= 0 {
		return math.MaxInt32
	}
	return int64(e.LengthMM) * 1000 / speed
}

func (r *StreetRouter) Route(search Search) {
	r.minimize = search.Minimize
	r.states = map[int32]state{}
	if r.origin == streets.NoVertex {
		return
	}

	maxDist := int64(math.MaxInt64)
	if search.DistanceLimitMeters > 0 {
		maxDist = int64(search.DistanceLimitMeters) * 1000
	}
	maxTime := int64(math.MaxInt64)
	if search.TimeLimitSeconds > 0 {
		maxTime = int64(search.TimeLimitSeconds) * 1000
	}

	cost := func(s state) int64 {
		if search.Minimize == streetmode.DurationSeconds {
			return s.timeMS
		}
		return s.distMM
	}

	queue := btree.NewG(16, lessItem)
	r.states[r.origin] = state{}
	queue.ReplaceOrInsert(queueItem{cost: 0, vertex: r.origin})

	for queue.Len() > 0 {
		item, _ := queue.DeleteMin()
		curr := r.states[item.vertex]
		if cost(curr) < item.cost {
			continue
		}

		for _, id := range r.layer.Outgoing(item.vertex) {
			edge := r.layer.Edge(id)
			if !edge.Permissions.Allows(r.mode) {
				continue
			}
			next := state{
				distMM: curr.distMM + int64(edge.LengthMM),
				timeMS: curr.timeMS + r.edgeTimeMS(edge),
			}
			if next.distMM > maxDist || next.timeMS > maxTime {
				continue
			}
			if prev, ok := r.states[edge.To]; ok && cost(prev) <= cost(next) {
				continue
			}
			r.states[edge.To] = next
			queue.ReplaceOrInsert(queueItem{cost: cost(next), vertex: edge.To})
		}
	}
}

// ReachedVertices returns the cost of every reached vertex in the metric the
// last search minimized.
func (r *StreetRouter) ReachedVertices() map[int32]int32 {
	reached := make(map[int32]int32, len(r.states))
	for v, s := range r.states {
		if r.minimize == streetmode.DurationSeconds {
			reached[v] = msToSeconds(s.timeMS)
		} else {
			reached[v] = int32(s.distMM)
		}
	}
	return reached
}

// TravelTimeToVertex returns seconds to v, or Unreachable.
func (r *StreetRouter) TravelTimeToVertex(v int32) int32 {
	s, ok := r.states[v]
	if !ok {
		return Unreachable
	}
	return msToSeconds(s.timeMS)
}

func msToSeconds(ms int64) int32 {
	return int32((ms + 500) / 1000)
}

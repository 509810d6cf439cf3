package transit

import (
	"context"
	"log/slog"
	"slices"

	"github.com/paulmach/orb"
	"github.com/royalcat/egresscost/router"
	"github.com/royalcat/egresscost/streetmode"
	"github.com/royalcat/egresscost/streets"
	"github.com/sourcegraph/conc/pool"
)

type Stop struct {
	ID    string
	Name  string
	Point orb.Point
}

// Layer holds stops, their street links and the walk distance tables from
// each stop to nearby street vertices.
type Layer struct {
	stops        []Stop
	streetVertex []int32
	walkTables   []map[int32]int32

	streets *streets.Layer
}

func NewLayer(stops []Stop) *Layer {
	vertices := make([]int32, len(stops))
	for i := range vertices {
		vertices[i] = streets.NoVertex
	}
	return &Layer{
		stops:        stops,
		streetVertex: vertices,
		walkTables:   make([]map[int32]int32, len(stops)),
	}
}

func (l *Layer) StopCount() int {
	return len(l.stops)
}

func (l *Layer) Stop(stop int) Stop {
	return l.stops[stop]
}

func (l *Layer) Streets() *streets.Layer {
	return l.streets
}

// StopVertex returns the street vertex the stop is linked to, or streets.NoVertex.
func (l *Layer) StopVertex(stop int) int32 {
	return l.streetVertex[stop]
}

// StopPoint is the location of the stop's street vertex.
func (l *Layer) StopPoint(stop int) (orb.Point, bool) {
	v := l.streetVertex[stop]
	if v == streets.NoVertex {
		return orb.Point{}, false
	}
	return l.streets.VertexPoint(v), true
}

// WalkDistanceTable returns distances in millimeters from the stop to street
// vertices within walking range, or nil if none were computed.
func (l *Layer) WalkDistanceTable(stop int) map[int32]int32 {
	return l.walkTables[stop]
}

// Link attaches every stop to the nearest walkable vertex of layer.
func (l *Layer) Link(layer *streets.Layer, log *slog.Logger) {
	l.streets = layer
	var unlinked int
	for i, s := range l.stops {
		v, _, err := layer.NearestVertex(s.Point, streetmode.LinkRadiusMeters, streetmode.Walk)
		if err != nil {
			unlinked++
			l.streetVertex[i] = streets.NoVertex
			continue
		}
		l.streetVertex[i] = v
	}
	if unlinked > 0 {
		log.Warn("stops not linked to the street network", "count", unlinked, "total", len(l.stops))
	}
}

// AddStop appends a stop and links it to the current street layer.
func (l *Layer) AddStop(s Stop) int {
	id := len(l.stops)
	l.stops = append(l.stops, s)
	l.walkTables = append(l.walkTables, nil)

	v, _, err := l.streets.NearestVertex(s.Point, streetmode.LinkRadiusMeters, streetmode.Walk)
	if err != nil {
		v = streets.NoVertex
	}
	l.streetVertex = append(l.streetVertex, v)
	return id
}

// Extend returns a copy of the layer on top of a scenario street layer.
// Existing links and tables are shared until rebuilt.
func (l *Layer) Extend(layer *streets.Layer) *Layer {
	return &Layer{
		stops:        slices.Clip(l.stops),
		streetVertex: slices.Clip(l.streetVertex),
		walkTables:   slices.Clone(l.walkTables),
		streets:      layer,
	}
}

// BuildDistanceTables runs a bounded walk search from every linked stop.
// When rebuild is non nil only stops it accepts are searched again.
func (l *Layer) BuildDistanceTables(ctx context.Context, threads int, rebuild func(stop int, p orb.Point) bool) error {
	p := pool.New().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(max(threads, 1))
	for stop := range l.stops {
		point, ok := l.StopPoint(stop)
		if !ok {
			l.walkTables[stop] = nil
			continue
		}
		if rebuild != nil && !rebuild(stop, point) {
			continue
		}
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r := router.New(l.streets, streetmode.Walk)
			if !r.SetOrigin(point.Lat(), point.Lon()) {
				l.walkTables[stop] = nil
				return nil
			}
			r.Route(router.Search{
				DistanceLimitMeters: streetmode.WalkDistanceLimitMeters,
				Minimize:            streetmode.DistanceMillimeters,
			})
			l.walkTables[stop] = r.ReachedVertices()
			return nil
		})
	}
	return p.Wait()
}

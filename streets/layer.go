package streets

import (
	"errors"
	"math"
	"slices"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/royalcat/egresscost/kdbush"
	"github.com/royalcat/egresscost/streetmode"
)

// NoVertex marks a missing link to the street network.
const NoVertex int32 = -1

var ErrNoVertex = errors.New("no street vertex in range")

// FixedFactor converts degrees to the fixed point integers vertices are stored in.
const FixedFactor = 1e7

func FixedDegrees(deg float64) int32 {
	return int32(math.Round(deg * FixedFactor))
}

func FloatDegrees(fixed int32) float64 {
	return float64(fixed) / FixedFactor
}

type Permission uint8

const (
	AllowWalk Permission = 1 << iota
	AllowBicycle
	AllowCar

	AllowAll = AllowWalk | AllowBicycle | AllowCar
)

func PermissionFor(mode streetmode.StreetMode) Permission {
	switch mode {
	case streetmode.Walk:
		return AllowWalk
	case streetmode.Bicycle:
		return AllowBicycle
	case streetmode.Car:
		return AllowCar
	}
	return 0
}

func (p Permission) Allows(mode streetmode.StreetMode) bool {
	perm := PermissionFor(mode)
	return perm != 0 && p&perm != 0
}

type Vertex struct {
	FixedLat, FixedLon int32
}

func (v Vertex) Point() orb.Point {
	return orb.Point{FloatDegrees(v.FixedLon), FloatDegrees(v.FixedLat)}
}

// Edge is one direction of a street segment.
type Edge struct {
	From, To    int32
	LengthMM    int32
	CarSpeed    int32 // mm/s
	Permissions Permission
}

// Layer is the street network. It is read-only once built, apart from
// Extend which produces an independent copy for scenarios.
type Layer struct {
	vertices []Vertex
	edges    []Edge
	outgoing [][]int32
	// union of the permissions of every edge touching a vertex
	vertexPerms []Permission

	// set by Extend; edges at or above baseEdgeCount were added by a scenario
	extended      bool
	baseEdgeCount int

	indexOnce sync.Once
	index     *kdbush.KDBush[int32]
}

func NewLayer() *Layer {
	return &Layer{}
}

func (l *Layer) VertexCount() int {
	return len(l.vertices)
}

func (l *Layer) EdgeCount() int {
	return len(l.edges)
}

func (l *Layer) Vertex(v int32) Vertex {
	return l.vertices[v]
}

func (l *Layer) VertexPoint(v int32) orb.Point {
	return l.vertices[v].Point()
}

func (l *Layer) Edge(e int32) Edge {
	return l.edges[e]
}

func (l *Layer) Outgoing(v int32) []int32 {
	return l.outgoing[v]
}

// VertexAllows reports whether any street at v can be used by mode.
func (l *Layer) VertexAllows(v int32, mode streetmode.StreetMode) bool {
	return l.vertexPerms[v].Allows(mode)
}

// AddVertex appends a vertex. The spatial index is rebuilt on the next query.
func (l *Layer) AddVertex(p orb.Point) int32 {
	l.indexOnce = sync.Once{}
	l.index = nil
	l.vertices = append(l.vertices, Vertex{FixedLat: FixedDegrees(p.Lat()), FixedLon: FixedDegrees(p.Lon())})
	l.outgoing = append(l.outgoing, nil)
	l.vertexPerms = append(l.vertexPerms, 0)
	return int32(len(l.vertices) - 1)
}

// AddStreet adds a street between two vertices as a pair of directed edges.
// A oneway street keeps car access only in the forward direction.
func (l *Layer) AddStreet(from, to int32, perms Permission, carSpeed int32, oneway bool) (forward, backward int32) {
	length := int32(math.Round(geo.Distance(l.VertexPoint(from), l.VertexPoint(to)) * 1000))

	forward = l.addEdge(Edge{From: from, To: to, LengthMM: length, CarSpeed: carSpeed, Permissions: perms})
	backPerms := perms
	if oneway {
		backPerms &^= AllowCar
	}
	backward = l.addEdge(Edge{From: to, To: from, LengthMM: length, CarSpeed: carSpeed, Permissions: backPerms})
	return forward, backward
}

func (l *Layer) addEdge(e Edge) int32 {
	id := int32(len(l.edges))
	l.edges = append(l.edges, e)
	l.outgoing[e.From] = append(l.outgoing[e.From], id)
	l.vertexPerms[e.From] |= e.Permissions
	l.vertexPerms[e.To] |= e.Permissions
	return id
}

// Extend returns a copy of the layer that can be modified without touching
// the original. Edges added to the copy are reported as scenario edges.
func (l *Layer) Extend() *Layer {
	outgoing := make([][]int32, len(l.outgoing))
	for i, out := range l.outgoing {
		outgoing[i] = slices.Clip(out)
	}
	return &Layer{
		vertices:      slices.Clip(l.vertices),
		edges:         slices.Clip(l.edges),
		outgoing:      outgoing,
		vertexPerms:   slices.Clone(l.vertexPerms),
		extended:      true,
		baseEdgeCount: len(l.edges),
	}
}

// ScenarioEdgeBounds returns the bounds of every edge added since Extend.
// Both directions of a street share a bound, so only forward edges are reported.
// A layer that was never extended has none.
func (l *Layer) ScenarioEdgeBounds() []orb.Bound {
	if !l.extended {
		return nil
	}
	var bounds []orb.Bound
	for e := l.baseEdgeCount; e < len(l.edges); e += 2 {
		edge := l.edges[e]
		b := orb.MultiPoint{l.VertexPoint(edge.From), l.VertexPoint(edge.To)}.Bound()
		bounds = append(bounds, b)
	}
	return bounds
}

func (l *Layer) buildIndex() {
	l.indexOnce.Do(func() {
		points := make([]kdbush.Point[int32], len(l.vertices))
		for i, v := range l.vertices {
			p := v.Point()
			points[i] = kdbush.Point[int32]{X: p.Lon(), Y: p.Lat(), Data: int32(i)}
		}
		l.index = kdbush.NewBush(points, 64)
	})
}

// NearestVertex finds the closest vertex usable by mode within radius meters
// of p, returning the vertex and its distance in meters.
func (l *Layer) NearestVertex(p orb.Point, radiusMeters float64, mode streetmode.StreetMode) (int32, float64, error) {
	return l.nearest(p, radiusMeters, func(v int) bool {
		return l.vertexPerms[v].Allows(mode)
	})
}

// SnapVertex finds the closest vertex of any street within radius meters.
func (l *Layer) SnapVertex(p orb.Point, radiusMeters float64) (int32, float64, error) {
	return l.nearest(p, radiusMeters, nil)
}

func (l *Layer) nearest(p orb.Point, radiusMeters float64, accept func(v int) bool) (int32, float64, error) {
	l.buildIndex()

	radiusDeg := MetersToDegrees(radiusMeters, p.Lat())
	best := l.index.Nearest(p.Lon(), p.Lat(), radiusDeg, func(i int, v kdbush.Point[int32]) (float64, bool) {
		if accept != nil && !accept(i) {
			return 0, false
		}
		dist := geo.Distance(p, orb.Point{v.X, v.Y})
		return dist, dist <= radiusMeters
	})
	if best < 0 {
		return NoVertex, 0, ErrNoVertex
	}
	return int32(best), geo.Distance(p, l.VertexPoint(int32(best))), nil
}

// MetersToDegrees gives a planar radius in degrees that covers at least
// meters around latitude lat in every direction.
func MetersToDegrees(meters, lat float64) float64 {
	cos := math.Cos(lat * math.Pi / 180)
	if cos < 0.01 {
		cos = 0.01
	}
	return meters / (orb.EarthRadius * math.Pi / 180 * cos)
}

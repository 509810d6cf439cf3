package linkage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/royalcat/egresscost/costtable"
	"github.com/royalcat/egresscost/pointset"
	"github.com/royalcat/egresscost/router"
	"github.com/royalcat/egresscost/streetmode"
	"github.com/royalcat/egresscost/streets"
	"github.com/royalcat/egresscost/transit"
	"github.com/sourcegraph/conc/iter"
)

// LinkedPointSet binds destination points to a street layer for one mode and
// owns the cost tables between transit stops and those points.
type LinkedPointSet struct {
	PointSet pointset.PointSet
	Mode     streetmode.StreetMode
	Streets  *streets.Layer

	pointVertex []int32
	offStreetMM []int32

	table *costtable.Table
}

// Link attaches every point to the nearest vertex usable by mode within
// streetmode.LinkRadiusMeters. Points with no such vertex stay unlinked.
func Link(ctx context.Context, ps pointset.PointSet, layer *streets.Layer, mode streetmode.StreetMode, threads int, log *slog.Logger) (*LinkedPointSet, error) {
	l := &LinkedPointSet{
		PointSet:    ps,
		Mode:        mode,
		Streets:     layer,
		pointVertex: make([]int32, ps.Size()),
		offStreetMM: make([]int32, ps.Size()),
	}

	it := iter.Iterator[int32]{MaxGoroutines: max(threads, 1)}
	it.ForEachIdx(l.pointVertex, func(i int, v *int32) {
		if ctx.Err() != nil {
			return
		}
		vertex, dist, err := layer.NearestVertex(ps.Point(i), streetmode.LinkRadiusMeters, mode)
		if err != nil {
			*v = streets.NoVertex
			return
		}
		*v = vertex
		l.offStreetMM[i] = int32(dist * 1000)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var unlinked int
	for _, v := range l.pointVertex {
		if v == streets.NoVertex {
			unlinked++
		}
	}
	log.Info("points linked", "mode", mode.String(), "points", ps.Size(), "unlinked", unlinked)
	return l, nil
}

// FromTable wraps a table that was built elsewhere, without street links.
func FromTable(ps pointset.PointSet, mode streetmode.StreetMode, table *costtable.Table) *LinkedPointSet {
	return &LinkedPointSet{PointSet: ps, Mode: mode, table: table}
}

func (l *LinkedPointSet) Size() int {
	return l.PointSet.Size()
}

// Table returns the cost tables, nil before they are built.
func (l *LinkedPointSet) Table() *costtable.Table {
	return l.table
}

// PointLink returns the vertex a point is linked to and the off street
// distance in millimeters.
func (l *LinkedPointSet) PointLink(p int) (int32, int32) {
	if l.pointVertex == nil {
		return streets.NoVertex, 0
	}
	return l.pointVertex[p], l.offStreetMM[p]
}

func (l *LinkedPointSet) ExtendToPoints(vertexCosts map[int32]int32, within orb.Bound, limit int32) costtable.StopCosts {
	var costs costtable.StopCosts
	l.PointSet.VisitBound(within, func(p int) bool {
		v := l.pointVertex[p]
		if v == streets.NoVertex {
			return true
		}
		c, ok := vertexCosts[v]
		if !ok {
			return true
		}
		if total := c + l.offStreetMM[p]; total <= limit {
			costs = append(costs, int32(p), total)
		}
		return true
	})
	return costs
}

func (l *LinkedPointSet) Evaluate(timeToVertex func(v int32) int32, offStreetSpeed int32) []int32 {
	times := make([]int32, len(l.pointVertex))
	for p, v := range l.pointVertex {
		if v == streets.NoVertex {
			times[p] = costtable.Unreachable
			continue
		}
		t := timeToVertex(v)
		if t == costtable.Unreachable {
			times[p] = costtable.Unreachable
			continue
		}
		times[p] = t + l.offStreetMM[p]/offStreetSpeed
	}
	return times
}

// BuildCostTables computes the tables between stops and points. With a base
// linkage of the unmodified network only stops near modified edges are
// recomputed and the rest are taken from base.
func (l *LinkedPointSet) BuildCostTables(ctx context.Context, stops *transit.Layer, limits streetmode.Table, base *LinkedPointSet, modified []orb.Bound, opts ...costtable.Option) (costtable.BuildStats, error) {
	in := costtable.BuildInput{
		Mode:         l.Mode,
		Limits:       limits,
		Transit:      stops,
		Destinations: l,
		NewRouter: func() costtable.Router {
			return router.New(l.Streets, l.Mode)
		},
		ModifiedEdges: modified,
	}
	if base != nil {
		if base.table == nil {
			return costtable.BuildStats{}, fmt.Errorf("base linkage has no cost tables")
		}
		in.Base = base.table
	}

	table, stats, err := costtable.Build(ctx, in, opts...)
	if err != nil {
		return stats, err
	}
	l.table = table
	return stats, nil
}

// CropFrom derives the linkage of a sub grid from a linkage of a grid that
// contains it, without routing.
func CropFrom(super *LinkedPointSet, sub pointset.PointSet) (*LinkedPointSet, error) {
	if super.table == nil {
		return nil, fmt.Errorf("linkage to crop has no cost tables")
	}
	table, err := costtable.Crop(super.table, super.PointSet, sub)
	if err != nil {
		return nil, err
	}
	// both are grids once Crop succeeded
	superGrid, _ := pointset.AsGrid(super.PointSet)
	subGrid, _ := pointset.AsGrid(sub)

	l := &LinkedPointSet{
		PointSet: sub,
		Mode:     super.Mode,
		Streets:  super.Streets,
		table:    table,
	}
	if super.pointVertex != nil {
		l.pointVertex = make([]int32, subGrid.Size())
		l.offStreetMM = make([]int32, subGrid.Size())
		for i := range l.pointVertex {
			x := subGrid.West + i%subGrid.Width
			y := subGrid.North + i/subGrid.Width
			if !superGrid.Contains(x, y) {
				l.pointVertex[i] = streets.NoVertex
				continue
			}
			j := (y-superGrid.North)*superGrid.Width + (x - superGrid.West)
			l.pointVertex[i] = super.pointVertex[j]
			l.offStreetMM[i] = super.offStreetMM[j]
		}
	}
	return l, nil
}

package server

import (
	"cmp"
	"slices"

	"github.com/mailru/easyjson/jwriter"
	"github.com/royalcat/egresscost/costtable"
	"github.com/royalcat/egresscost/linkage"
	"github.com/royalcat/egresscost/pointset"
)

type Info struct {
	Mode   string
	Unit   string
	Kind   string
	Points int
	Stops  int
	Grid   *pointset.Grid
}

func newInfo(l *linkage.LinkedPointSet) Info {
	info := Info{
		Mode:   l.Mode.String(),
		Unit:   l.Table().Unit.String(),
		Kind:   l.PointSet.Kind().String(),
		Points: l.Size(),
		Stops:  l.Table().StopCount(),
	}
	if grid, err := pointset.AsGrid(l.PointSet); err == nil {
		info.Grid = grid
	}
	return info
}

func (v Info) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"mode":`)
	w.String(v.Mode)
	w.RawString(`,"unit":`)
	w.String(v.Unit)
	w.RawString(`,"kind":`)
	w.String(v.Kind)
	w.RawString(`,"points":`)
	w.Int(v.Points)
	w.RawString(`,"stops":`)
	w.Int(v.Stops)
	if v.Grid != nil {
		w.RawString(`,"grid":{"zoom":`)
		w.Int(v.Grid.Zoom)
		w.RawString(`,"west":`)
		w.Int(v.Grid.West)
		w.RawString(`,"north":`)
		w.Int(v.Grid.North)
		w.RawString(`,"width":`)
		w.Int(v.Grid.Width)
		w.RawString(`,"height":`)
		w.Int(v.Grid.Height)
		w.RawByte('}')
	}
	w.RawByte('}')
}

type StopCost struct {
	Stop int32
	Cost int32
}

// PointCosts are the stops reachable from one destination point, ordered by stop.
type PointCosts struct {
	Point int
	Stops []StopCost
}

func newPointCosts(point int, stops map[int32]int32) PointCosts {
	res := PointCosts{Point: point, Stops: make([]StopCost, 0, len(stops))}
	for stop, cost := range stops {
		res.Stops = append(res.Stops, StopCost{Stop: stop, Cost: cost})
	}
	slices.SortFunc(res.Stops, func(a, b StopCost) int { return cmp.Compare(a.Stop, b.Stop) })
	return res
}

func (v PointCosts) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"point":`)
	w.Int(v.Point)
	w.RawString(`,"stops":[`)
	for i, s := range v.Stops {
		if i > 0 {
			w.RawByte(',')
		}
		w.RawString(`{"stop":`)
		w.Int32(s.Stop)
		w.RawString(`,"cost":`)
		w.Int32(s.Cost)
		w.RawByte('}')
	}
	w.RawString(`]}`)
}

type PointCostsList []*PointCosts

func (v PointCostsList) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawByte('[')
	for i, p := range v {
		if i > 0 {
			w.RawByte(',')
		}
		if p == nil {
			w.RawString("null")
			continue
		}
		p.MarshalEasyJSON(w)
	}
	w.RawByte(']')
}

type StopCosts struct {
	Stop  int
	Costs costtable.StopCosts
}

func (v StopCosts) MarshalEasyJSON(w *jwriter.Writer) {
	w.RawString(`{"stop":`)
	w.Int(v.Stop)
	w.RawString(`,"points":[`)
	first := true
	v.Costs.ForEach(func(point, cost int32) bool {
		if !first {
			w.RawByte(',')
		}
		first = false
		w.RawString(`{"point":`)
		w.Int32(point)
		w.RawString(`,"cost":`)
		w.Int32(cost)
		w.RawByte('}')
		return true
	})
	w.RawString(`]}`)
}

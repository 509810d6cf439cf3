package costtable

import (
	"fmt"
	"math"

	"github.com/royalcat/egresscost/streetmode"
)

// Unreachable marks a point that can't be reached in a dense result.
const Unreachable = math.MaxInt32

// StopCosts is a packed array of (pointIndex, cost) pairs for one stop.
// A nil StopCosts means no point is reachable; it is never empty and non nil.
type StopCosts []int32

func (c StopCosts) Len() int {
	return len(c) / 2
}

func (c StopCosts) At(i int) (point, cost int32) {
	return c[2*i], c[2*i+1]
}

// ForEach calls fn for every pair until fn returns false.
func (c StopCosts) ForEach(fn func(point, cost int32) bool) {
	for i := 0; i+1 < len(c); i += 2 {
		if !fn(c[i], c[i+1]) {
			return
		}
	}
}

// Table is a forward stop to point cost table with its transposed index.
type Table struct {
	Unit        streetmode.CostUnit
	StopToPoint []StopCosts

	pointToStop []map[int32]int32
}

// NewTable takes ownership of stopToPoint and builds the point to stop index.
func NewTable(unit streetmode.CostUnit, stopToPoint []StopCosts, pointCount int) *Table {
	return &Table{
		Unit:        unit,
		StopToPoint: stopToPoint,
		pointToStop: Transpose(stopToPoint, pointCount),
	}
}

func (t *Table) StopCount() int {
	return len(t.StopToPoint)
}

func (t *Table) PointCount() int {
	return len(t.pointToStop)
}

// PointToStop returns stop costs for a point, nil when no stop reaches it.
func (t *Table) PointToStop(point int) map[int32]int32 {
	return t.pointToStop[point]
}

// Transpose inverts a forward table. Maps are only created for reached points.
func Transpose(stopToPoint []StopCosts, pointCount int) []map[int32]int32 {
	pointToStop := make([]map[int32]int32, pointCount)
	for stop, costs := range stopToPoint {
		if costs == nil {
			continue
		}
		if len(costs)%2 != 0 {
			panic(fmt.Sprintf("packed costs of stop %d have odd length %d", stop, len(costs)))
		}
		costs.ForEach(func(point, cost int32) bool {
			if point < 0 || int(point) >= pointCount {
				panic(fmt.Sprintf("stop %d references point %d of %d", stop, point, pointCount))
			}
			m := pointToStop[point]
			if m == nil {
				m = map[int32]int32{}
				pointToStop[point] = m
			}
			m[int32(stop)] = cost
			return true
		})
	}
	return pointToStop
}

package costtable

import (
	"fmt"

	"github.com/royalcat/egresscost/pointset"
)

// Crop derives the table of a sub grid from the table of a grid containing it.
// Costs are copied unchanged; points outside the sub grid are dropped.
func Crop(super *Table, superPoints, subPoints pointset.PointSet) (*Table, error) {
	superGrid, err := pointset.AsGrid(superPoints)
	if err != nil {
		return nil, fmt.Errorf("crop source: %w", err)
	}
	subGrid, err := pointset.AsGrid(subPoints)
	if err != nil {
		return nil, fmt.Errorf("crop target: %w", err)
	}
	if superGrid.Zoom != subGrid.Zoom {
		return nil, fmt.Errorf("crop zoom %d to %d: %w", superGrid.Zoom, subGrid.Zoom, ErrZoomMismatch)
	}

	forward := make([]StopCosts, len(super.StopToPoint))
	for stop, costs := range super.StopToPoint {
		forward[stop] = cropStop(costs, superGrid, subGrid)
	}
	return NewTable(super.Unit, forward, subGrid.Size()), nil
}

func cropStop(costs StopCosts, super, sub *pointset.Grid) StopCosts {
	if costs == nil {
		return nil
	}
	var cropped StopCosts
	costs.ForEach(func(point, cost int32) bool {
		superX := int(point) % super.Width
		superY := int(point) / super.Width
		subX := superX + super.West - sub.West
		subY := superY + super.North - sub.North
		if subX >= 0 && subX < sub.Width && subY >= 0 && subY < sub.Height {
			cropped = append(cropped, int32(subY*sub.Width+subX), cost)
		}
		return true
	})
	return cropped
}

package server

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/royalcat/egresscost/pointset"
	"github.com/royalcat/egresscost/streetmode"
)

// locate returns the destination point at lat, lon: the containing cell for
// grids, the closest point within streetmode.LinkRadiusMeters otherwise.
func locate(ps pointset.PointSet, lat, lon float64) (int, bool) {
	if grid, err := pointset.AsGrid(ps); err == nil {
		x := int(math.Floor(pointset.LonToPixel(lon, grid.Zoom)))
		y := int(math.Floor(pointset.LatToPixel(lat, grid.Zoom)))
		if !grid.Contains(x, y) {
			return 0, false
		}
		return (y-grid.North)*grid.Width + (x - grid.West), true
	}

	p := orb.Point{lon, lat}
	best, bestDist := -1, math.Inf(1)
	ps.VisitBound(geo.BoundPad(p.Bound(), streetmode.LinkRadiusMeters), func(i int) bool {
		if d := geo.Distance(p, ps.Point(i)); d < bestDist || (d == bestDist && i < best) {
			best, bestDist = i, d
		}
		return true
	})
	if best < 0 || bestDist > streetmode.LinkRadiusMeters {
		return 0, false
	}
	return best, true
}

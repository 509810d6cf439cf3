package costtable

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/royalcat/egresscost/streetmode"
	"github.com/tidwall/qtree"
)

// RebuildZone is the area whose stops must be recomputed after the street
// network changed. A nil *RebuildZone means every stop is rebuilt.
type RebuildZone struct {
	bounds []orb.Bound
	qt     qtree.QTree
}

func (z *RebuildZone) insert(b orb.Bound) {
	z.qt.Insert(b.Min, b.Max, len(z.bounds))
	z.bounds = append(z.bounds, b)
}

func (z *RebuildZone) Bounds() []orb.Bound {
	return z.bounds
}

// Contains reports whether p lies in the zone, boundary included.
func (z *RebuildZone) Contains(p orb.Point) bool {
	found := false
	z.qt.Search(p, p, func(_, _ [2]float64, data interface{}) bool {
		if z.bounds[data.(int)].Contains(p) {
			found = true
			return false
		}
		return true
	})
	return found
}

// ComputeRebuildZone pads every modified edge bound by the distance the mode
// can travel. Without a base linkage there is nothing to reuse and the zone is nil.
func ComputeRebuildZone(hasBase bool, mode streetmode.StreetMode, limits streetmode.Table, modified []orb.Bound) (*RebuildZone, error) {
	if !hasBase {
		return nil, nil
	}
	l, ok := limits.Lookup(mode)
	if !ok {
		return nil, fmt.Errorf("rebuild zone for %s: %w", mode, ErrUnsupportedMode)
	}
	radius := float64(l.ZoneRadiusMeters())

	zone := &RebuildZone{}
	for _, b := range modified {
		zone.insert(geo.BoundPad(b, radius))
	}
	return zone, nil
}

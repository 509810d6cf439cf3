package costtable

import (
	"errors"
	"fmt"

	"github.com/royalcat/egresscost/streetmode"
)

var (
	ErrUnsupportedMode = errors.New("unsupported street mode")
	ErrZoomMismatch    = errors.New("grids have different zoom levels")
)

// ResolveCostUnit picks the unit a linkage for mode stores its costs in.
// A derived linkage must use the unit of its base; a mismatch is a bug in
// the caller and panics.
func ResolveCostUnit(mode streetmode.StreetMode, limits streetmode.Table, base *Table) (streetmode.CostUnit, error) {
	l, ok := limits.Lookup(mode)
	if !ok {
		return 0, fmt.Errorf("cost unit for %s: %w", mode, ErrUnsupportedMode)
	}
	if base != nil && base.Unit != l.CostUnit {
		panic(fmt.Sprintf("%s linkage cost unit %s does not match base linkage unit %s", mode, l.CostUnit, base.Unit))
	}
	return l.CostUnit, nil
}

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/royalcat/egresscost/streetmode"
	"github.com/royalcat/egresscost/transit"
)

// parseBounds reads "min_lon,min_lat,max_lon,max_lat".
func parseBounds(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bounds must be min_lon,min_lat,max_lon,max_lat, got %q", s)
	}
	var v [4]float64
	for i, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid bounds %q: %w", s, err)
		}
		v[i] = f
	}
	b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
	if b.Min.Lon() >= b.Max.Lon() || b.Min.Lat() >= b.Max.Lat() {
		return orb.Bound{}, fmt.Errorf("bounds %q are empty", s)
	}
	if b.Min.Lon() < -180 || b.Max.Lon() > 180 || b.Min.Lat() < -85 || b.Max.Lat() > 85 {
		return orb.Bound{}, fmt.Errorf("bounds %q are outside the web mercator range", s)
	}
	return b, nil
}

// stopsBound covers every linked stop, padded by the link radius.
func stopsBound(tl *transit.Layer) (orb.Bound, bool) {
	var (
		bound orb.Bound
		found bool
	)
	for stop := 0; stop < tl.StopCount(); stop++ {
		p, ok := tl.StopPoint(stop)
		if !ok {
			continue
		}
		if !found {
			bound, found = p.Bound(), true
			continue
		}
		bound = bound.Extend(p)
	}
	if !found {
		return orb.Bound{}, false
	}
	return geo.BoundPad(bound, streetmode.LinkRadiusMeters), true
}

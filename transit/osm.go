package transit

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/royalcat/egresscost/streets"
)

func isStop(tags osm.Tags) bool {
	switch tags.Find("public_transport") {
	case "platform", "stop_position":
		return true
	}
	switch {
	case tags.Find("highway") == "bus_stop":
		return true
	case tags.Find("railway") == "tram_stop", tags.Find("railway") == "station", tags.Find("railway") == "halt":
		return true
	}
	return false
}

// LoadStopsOSM collects transit stop nodes from an OSM PBF file.
func LoadStopsOSM(ctx context.Context, r io.Reader, size int64, threads int) ([]Stop, error) {
	scanner := osmpbf.New(ctx, r, threads)
	defer scanner.Close()
	scanner.SkipWays = true
	scanner.SkipRelations = true

	var stops []Stop
	err := streets.ScanWithProgress(scanner, size, "loading stops", func(object osm.Object) bool {
		node, ok := object.(*osm.Node)
		if !ok || !isStop(node.Tags) {
			return true
		}
		stops = append(stops, Stop{
			ID:    strconv.FormatInt(int64(node.ID), 10),
			Name:  node.Tags.Find("name"),
			Point: orb.Point{node.Lon, node.Lat},
		})
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan stops: %w", err)
	}
	return stops, nil
}

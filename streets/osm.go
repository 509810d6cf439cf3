package streets

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/cheggaaa/pb/v3/termutil"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/royalcat/osmpbfdb"
)

type highwayClass struct {
	perms Permission
	kmh   int32
}

var highwayClasses = map[string]highwayClass{
	"motorway":       {AllowCar, 100},
	"motorway_link":  {AllowCar, 60},
	"trunk":          {AllowCar | AllowBicycle, 80},
	"trunk_link":     {AllowCar | AllowBicycle, 50},
	"primary":        {AllowAll, 60},
	"primary_link":   {AllowAll, 40},
	"secondary":      {AllowAll, 50},
	"secondary_link": {AllowAll, 40},
	"tertiary":       {AllowAll, 50},
	"tertiary_link":  {AllowAll, 30},
	"unclassified":   {AllowAll, 40},
	"residential":    {AllowAll, 30},
	"living_street":  {AllowAll, 10},
	"service":        {AllowAll, 20},
	"road":           {AllowAll, 30},
	"track":          {AllowWalk | AllowBicycle, 0},
	"cycleway":       {AllowWalk | AllowBicycle, 0},
	"path":           {AllowWalk | AllowBicycle, 0},
	"pedestrian":     {AllowWalk, 0},
	"footway":        {AllowWalk, 0},
	"steps":          {AllowWalk, 0},
}

// KmhToMillimetersPerSecond converts a posted speed to the edge speed unit.
func KmhToMillimetersPerSecond(kmh int32) int32 {
	return kmh * 1_000_000 / 3600
}

func wayPermissions(tags osm.Tags) (Permission, int32, bool) {
	class, ok := highwayClasses[tags.Find("highway")]
	if !ok {
		return 0, 0, false
	}
	perms := class.perms

	if tags.Find("access") == "no" || tags.Find("access") == "private" {
		perms = 0
	}
	if v := tags.Find("foot"); v == "no" {
		perms &^= AllowWalk
	} else if v == "yes" || v == "designated" {
		perms |= AllowWalk
	}
	if v := tags.Find("bicycle"); v == "no" {
		perms &^= AllowBicycle
	} else if v == "yes" || v == "designated" {
		perms |= AllowBicycle
	}
	if tags.Find("motor_vehicle") == "no" || tags.Find("motorcar") == "no" {
		perms &^= AllowCar
	}
	if perms == 0 {
		return 0, 0, false
	}

	kmh := class.kmh
	if maxspeed := tags.Find("maxspeed"); maxspeed != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(maxspeed, "km/h"))); err == nil && v > 0 {
			kmh = int32(v)
		}
	}
	if kmh == 0 {
		kmh = 5
	}
	return perms, KmhToMillimetersPerSecond(kmh), true
}

func isOneway(tags osm.Tags) bool {
	switch tags.Find("oneway") {
	case "yes", "true", "1":
		return true
	}
	return tags.Find("junction") == "roundabout"
}

// LoadOSM builds a street layer from the highways of an OSM PBF file.
// Way node coordinates missing from the way itself are looked up through a
// random access index over the same file.
func LoadOSM(ctx context.Context, r io.ReaderAt, size int64, threads int, log *slog.Logger) (*Layer, error) {
	osmdb, err := osmpbfdb.OpenMultiDB([]io.ReaderAt{r}, osmpbfdb.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open osm index: %w", err)
	}

	scanner := osmpbf.New(ctx, io.NewSectionReader(r, 0, size), threads)
	defer scanner.Close()
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	layer := NewLayer()
	vertices := map[osm.NodeID]int32{}
	var skippedNodes int

	vertexFor := func(node osm.WayNode) (int32, bool) {
		if v, ok := vertices[node.ID]; ok {
			return v, true
		}
		lat, lon := node.Lat, node.Lon
		if lat == 0 && lon == 0 {
			n, err := osmdb.GetNode(node.ID)
			if err != nil || (n.Lat == 0 && n.Lon == 0) {
				skippedNodes++
				return NoVertex, false
			}
			lat, lon = n.Lat, n.Lon
		}
		v := layer.AddVertex(orb.Point{lon, lat})
		vertices[node.ID] = v
		return v, true
	}

	err = ScanWithProgress(scanner, size, "loading streets", func(object osm.Object) bool {
		way, ok := object.(*osm.Way)
		if !ok {
			return true
		}
		perms, speed, ok := wayPermissions(way.Tags)
		if !ok {
			return true
		}
		oneway := isOneway(way.Tags)

		prev := NoVertex
		for _, node := range way.Nodes {
			v, ok := vertexFor(node)
			if !ok {
				prev = NoVertex
				continue
			}
			if prev != NoVertex && prev != v {
				layer.AddStreet(prev, v, perms, speed, oneway)
			}
			prev = v
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan streets: %w", err)
	}

	if skippedNodes > 0 {
		log.Warn("way nodes without coordinates skipped", "count", skippedNodes)
	}
	log.Info("street layer loaded", "vertices", layer.VertexCount(), "edges", layer.EdgeCount())
	return layer, nil
}

// ScanWithProgress drains scanner, reporting read bytes on a terminal bar.
func ScanWithProgress(scanner *osmpbf.Scanner, size int64, name string, it func(osm.Object) bool) error {
	bar := pb.Start64(size)
	bar.Set("prefix", name)
	bar.Set(pb.Bytes, true)
	bar.SetRefreshRate(time.Second * 5)
	if w, err := termutil.TerminalWidth(); w == 0 || err != nil {
		bar.SetTemplateString(`{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{bar . }} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}{{with string . "suffix"}} {{.}}{{end}}` + "\n")
	}

	for scanner.Scan() {
		bar.SetCurrent(scanner.FullyScannedBytes())
		if !it(scanner.Object()) {
			break
		}
	}
	bar.Finish()

	return scanner.Err()
}

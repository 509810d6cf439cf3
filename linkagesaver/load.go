package linkagesaver

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb"
	"github.com/royalcat/egresscost/costtable"
	"github.com/royalcat/egresscost/linkage"
	"github.com/royalcat/egresscost/pointset"
	"github.com/royalcat/egresscost/streetmode"
	"google.golang.org/protobuf/encoding/protowire"
)

// maxStops bounds the stop table a header may ask for.
const maxStops = 1 << 24

const maxZoom = 24

type header struct {
	mode        streetmode.StreetMode
	unit        streetmode.CostUnit
	kind        pointset.Kind
	grid        pointset.Grid
	stops       int
	points      int
	dateCreated string
}

func LoadFromFile(path string, log *slog.Logger) (*linkage.LinkedPointSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can`t open linkage file: %w", err)
	}
	defer file.Close()

	return LoadFromReader(bufio.NewReader(file), log)
}

// LoadFromReader reads a linkage written by Save and rebuilds its point to
// stop index. The result has no street links and can't be used as a crop or
// scenario base for new builds that need them.
func LoadFromReader(reader io.Reader, log *slog.Logger) (*linkage.LinkedPointSet, error) {
	magic := make([]byte, len(MAGIC_BYTES))
	if _, err := io.ReadFull(reader, magic); err != nil {
		return nil, fmt.Errorf("error reading magic bytes: %w", err)
	}
	if !bytes.Equal(magic, MAGIC_BYTES) {
		return nil, ErrBadMagic
	}

	var compatibilityLevel uint32
	if err := binary.Read(reader, binary.LittleEndian, &compatibilityLevel); err != nil {
		return nil, fmt.Errorf("error reading compatibility level: %w", err)
	}
	if compatibilityLevel != COMPATIBILITY_LEVEL {
		return nil, fmt.Errorf("level %d: %w", compatibilityLevel, ErrUnsupportedCompatibility)
	}

	dec, err := zstd.NewReader(reader)
	if err != nil {
		return nil, fmt.Errorf("can`t create zstd reader: %w", err)
	}
	defer dec.Close()
	body, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("error decompressing linkage: %w", err)
	}

	var (
		h       *header
		coords  []orb.Point
		forward []costtable.StopCosts
	)
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		body = body[n:]
		if typ != protowire.BytesType {
			return nil, fmt.Errorf("unexpected record type %d", typ)
		}
		record, n := protowire.ConsumeBytes(body)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		body = body[n:]

		switch num {
		case recordHeader:
			h, err = parseHeader(record)
			if err != nil {
				return nil, err
			}
			forward = make([]costtable.StopCosts, h.stops)
		case recordPoints:
			coords, err = parsePoints(record)
			if err != nil {
				return nil, err
			}
		case recordStop:
			if h == nil {
				return nil, fmt.Errorf("stop record before header")
			}
			stop, costs, err := parseStop(record)
			if err != nil {
				return nil, err
			}
			if stop >= len(forward) {
				return nil, fmt.Errorf("stop %d out of range %d", stop, len(forward))
			}
			for i := 0; i < len(costs); i += 2 {
				if costs[i] < 0 || int(costs[i]) >= h.points {
					return nil, fmt.Errorf("stop %d references point %d of %d", stop, costs[i], h.points)
				}
			}
			forward[stop] = costs
		}
	}
	if h == nil {
		return nil, fmt.Errorf("linkage file has no header")
	}

	var ps pointset.PointSet
	switch h.kind {
	case pointset.KindGrid:
		grid := h.grid
		ps = &grid
	case pointset.KindFreeForm:
		ps = pointset.NewFreeForm(coords)
	default:
		return nil, fmt.Errorf("unknown point set kind %d", h.kind)
	}
	if ps.Size() != h.points {
		return nil, fmt.Errorf("point set has %d points, header says %d", ps.Size(), h.points)
	}

	log.Info("linkage loaded",
		"mode", h.mode.String(),
		"unit", h.unit.String(),
		"points", h.points,
		"stops", h.stops,
		"date_created", h.dateCreated,
	)
	return linkage.FromTable(ps, h.mode, costtable.NewTable(h.unit, forward, ps.Size())), nil
}

func parseHeader(b []byte) (*header, error) {
	h := &header{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		if num == headerDateCreated && typ == protowire.BytesType {
			s, n := protowire.ConsumeString(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			h.dateCreated = s
			b = b[n:]
			continue
		}
		if typ != protowire.VarintType {
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
		switch num {
		case headerMode:
			h.mode = streetmode.StreetMode(v)
		case headerUnit:
			h.unit = streetmode.CostUnit(v)
		case headerKind:
			h.kind = pointset.Kind(v)
		case headerZoom:
			h.grid.Zoom = int(v)
		case headerWest:
			h.grid.West = int(v)
		case headerNorth:
			h.grid.North = int(v)
		case headerWidth:
			h.grid.Width = int(v)
		case headerHeight:
			h.grid.Height = int(v)
		case headerStops:
			h.stops = int(v)
		case headerPoints:
			h.points = int(v)
		}
	}
	if err := h.validate(); err != nil {
		return nil, fmt.Errorf("invalid linkage header: %w", err)
	}
	return h, nil
}

func (h *header) validate() error {
	switch h.mode {
	case streetmode.Walk, streetmode.Bicycle, streetmode.Car:
	default:
		return fmt.Errorf("unknown mode %s", h.mode)
	}
	switch h.unit {
	case streetmode.DistanceMillimeters, streetmode.DurationSeconds:
	default:
		return fmt.Errorf("unknown cost unit %s", h.unit)
	}
	if h.stops < 0 || h.stops > maxStops {
		return fmt.Errorf("stop count %d outside [0, %d]", h.stops, maxStops)
	}
	if h.points < 0 || h.points > math.MaxInt32 {
		return fmt.Errorf("point count %d outside [0, %d]", h.points, math.MaxInt32)
	}
	if h.kind == pointset.KindGrid {
		g := h.grid
		if g.Zoom < 0 || g.Zoom > maxZoom {
			return fmt.Errorf("grid zoom %d outside [0, %d]", g.Zoom, maxZoom)
		}
		if g.Width <= 0 || g.Height <= 0 || g.Width > math.MaxInt32/g.Height {
			return fmt.Errorf("grid size %dx%d", g.Width, g.Height)
		}
	}
	return nil
}

func parsePoints(b []byte) ([]orb.Point, error) {
	if len(b)%16 != 0 {
		return nil, fmt.Errorf("truncated point coordinates")
	}
	points := make([]orb.Point, 0, len(b)/16)
	for len(b) > 0 {
		lon, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		lat, m := protowire.ConsumeFixed64(b[n:])
		if m < 0 {
			return nil, protowire.ParseError(m)
		}
		b = b[n+m:]
		points = append(points, orb.Point{math.Float64frombits(lon), math.Float64frombits(lat)})
	}
	return points, nil
}

func parseStop(b []byte) (int, costtable.StopCosts, error) {
	var (
		stop  int
		costs costtable.StopCosts
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, nil, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == stopIndex && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, nil, protowire.ParseError(n)
			}
			stop = int(v)
			b = b[n:]
		case num == stopCosts && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, nil, protowire.ParseError(n)
			}
			b = b[n:]
			for len(packed) > 0 {
				v, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return 0, nil, protowire.ParseError(m)
				}
				packed = packed[m:]
				costs = append(costs, int32(uint32(v)))
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, nil, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if len(costs) == 0 || len(costs)%2 != 0 {
		return 0, nil, fmt.Errorf("stop %d has malformed costs", stop)
	}
	return stop, costs, nil
}

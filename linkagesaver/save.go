package linkagesaver

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/royalcat/egresscost/linkage"
	"github.com/royalcat/egresscost/pointset"
	"google.golang.org/protobuf/encoding/protowire"
)

var MAGIC_BYTES = []byte("EGRSLNK\x00")

const COMPATIBILITY_LEVEL uint32 = 1

var (
	ErrBadMagic                 = errors.New("not a linkage file")
	ErrUnsupportedCompatibility = errors.New("unsupported linkage file version")
)

// top level records of the compressed body
const (
	recordHeader protowire.Number = 1
	recordPoints protowire.Number = 2
	recordStop   protowire.Number = 3
)

// header fields
const (
	headerMode protowire.Number = iota + 1
	headerUnit
	headerKind
	headerZoom
	headerWest
	headerNorth
	headerWidth
	headerHeight
	headerStops
	headerPoints
	headerDateCreated
)

// stop fields
const (
	stopIndex protowire.Number = 1
	stopCosts protowire.Number = 2
)

type Metadata struct {
	DateCreated time.Time
}

func SaveToFile(path string, l *linkage.LinkedPointSet, meta Metadata) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create linkage file: %w", err)
	}
	defer file.Close()

	if err := Save(file, l, meta); err != nil {
		return err
	}
	return file.Close()
}

// Save writes the point set description and the forward cost table of l.
// The point to stop index is not stored, it is rebuilt on load.
func Save(w io.Writer, l *linkage.LinkedPointSet, meta Metadata) error {
	table := l.Table()
	if table == nil {
		return fmt.Errorf("linkage has no cost tables")
	}

	_, err := w.Write(MAGIC_BYTES)
	if err != nil {
		return err
	}
	err = binary.Write(w, binary.LittleEndian, COMPATIBILITY_LEVEL)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("can`t create zstd writer: %w", err)
	}

	var header []byte
	header = appendVarintField(header, headerMode, uint64(l.Mode))
	header = appendVarintField(header, headerUnit, uint64(table.Unit))
	header = appendVarintField(header, headerKind, uint64(l.PointSet.Kind()))
	if grid, err := pointset.AsGrid(l.PointSet); err == nil {
		header = appendVarintField(header, headerZoom, uint64(grid.Zoom))
		header = appendVarintField(header, headerWest, uint64(grid.West))
		header = appendVarintField(header, headerNorth, uint64(grid.North))
		header = appendVarintField(header, headerWidth, uint64(grid.Width))
		header = appendVarintField(header, headerHeight, uint64(grid.Height))
	}
	header = appendVarintField(header, headerStops, uint64(table.StopCount()))
	header = appendVarintField(header, headerPoints, uint64(l.PointSet.Size()))
	header = protowire.AppendTag(header, headerDateCreated, protowire.BytesType)
	header = protowire.AppendString(header, meta.DateCreated.Format(time.RFC3339))

	var buf []byte
	buf = protowire.AppendTag(buf, recordHeader, protowire.BytesType)
	buf = protowire.AppendBytes(buf, header)
	if _, err := enc.Write(buf); err != nil {
		return err
	}

	if ff, ok := l.PointSet.(*pointset.FreeForm); ok {
		var coords []byte
		for _, p := range ff.Points() {
			coords = protowire.AppendFixed64(coords, math.Float64bits(p.Lon()))
			coords = protowire.AppendFixed64(coords, math.Float64bits(p.Lat()))
		}
		buf = protowire.AppendTag(buf[:0], recordPoints, protowire.BytesType)
		buf = protowire.AppendBytes(buf, coords)
		if _, err := enc.Write(buf); err != nil {
			return err
		}
	}

	var stop, costs []byte
	for i, c := range table.StopToPoint {
		// absent stops are not written
		if c == nil {
			continue
		}
		costs = costs[:0]
		for _, v := range c {
			costs = protowire.AppendVarint(costs, uint64(uint32(v)))
		}
		stop = appendVarintField(stop[:0], stopIndex, uint64(i))
		stop = protowire.AppendTag(stop, stopCosts, protowire.BytesType)
		stop = protowire.AppendBytes(stop, costs)

		buf = protowire.AppendTag(buf[:0], recordStop, protowire.BytesType)
		buf = protowire.AppendBytes(buf, stop)
		if _, err := enc.Write(buf); err != nil {
			return err
		}
	}

	return enc.Close()
}

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

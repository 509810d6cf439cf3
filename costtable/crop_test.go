package costtable_test

import (
	"errors"
	"maps"
	"testing"

	"github.com/paulmach/orb"
	"github.com/royalcat/egresscost/costtable"
	"github.com/royalcat/egresscost/pointset"
	"github.com/royalcat/egresscost/streetmode"
)

func TestCropScenario(t *testing.T) {
	super := &pointset.Grid{Zoom: 10, West: 100, North: 200, Width: 10, Height: 10}
	sub := &pointset.Grid{Zoom: 10, West: 102, North: 201, Width: 4, Height: 4}

	table := costtable.NewTable(streetmode.DistanceMillimeters, []costtable.StopCosts{{23, 50}, nil}, super.Size())
	cropped, err := costtable.Crop(table, super, sub)
	if err != nil {
		t.Fatal(err)
	}
	if cropped.Unit != table.Unit {
		t.Fatalf("unit not preserved: %s", cropped.Unit)
	}
	if !maps.Equal(pairs(cropped.StopToPoint[0]), map[int32]int32{5: 50}) {
		t.Fatalf("expected (5, 50), got %v", cropped.StopToPoint[0])
	}
	if cropped.StopToPoint[1] != nil {
		t.Fatal("absent stop must stay absent")
	}
	if !maps.Equal(cropped.PointToStop(5), map[int32]int32{0: 50}) {
		t.Fatalf("inverse of cropped table: %v", cropped.PointToStop(5))
	}
}

func TestCropDropsOutside(t *testing.T) {
	super := &pointset.Grid{Zoom: 10, West: 100, North: 200, Width: 10, Height: 10}
	sub := &pointset.Grid{Zoom: 10, West: 102, North: 201, Width: 4, Height: 4}

	// points 0 and 99 lie outside the sub grid
	table := costtable.NewTable(streetmode.DurationSeconds, []costtable.StopCosts{{0, 1, 99, 2}}, super.Size())
	cropped, err := costtable.Crop(table, super, sub)
	if err != nil {
		t.Fatal(err)
	}
	if cropped.StopToPoint[0] != nil {
		t.Fatalf("empty crop result must be absent, got %v", cropped.StopToPoint[0])
	}
}

func TestCropRequiresGrids(t *testing.T) {
	grid := &pointset.Grid{Zoom: 10, Width: 2, Height: 2}
	free := pointset.NewFreeForm([]orb.Point{{0, 0}})
	table := costtable.NewTable(streetmode.DistanceMillimeters, []costtable.StopCosts{nil}, 4)

	if _, err := costtable.Crop(table, grid, free); !errors.Is(err, pointset.ErrNotGrid) {
		t.Fatalf("expected ErrNotGrid, got %v", err)
	}
	if _, err := costtable.Crop(table, free, grid); !errors.Is(err, pointset.ErrNotGrid) {
		t.Fatalf("expected ErrNotGrid, got %v", err)
	}
	other := &pointset.Grid{Zoom: 11, Width: 2, Height: 2}
	if _, err := costtable.Crop(table, grid, other); !errors.Is(err, costtable.ErrZoomMismatch) {
		t.Fatalf("expected ErrZoomMismatch, got %v", err)
	}
}

func FuzzCrop(f *testing.F) {
	f.Add(uint16(23), int32(50), int8(2), int8(1), uint8(4), uint8(4))
	f.Add(uint16(0), int32(7), int8(-3), int8(5), uint8(20), uint8(1))

	f.Fuzz(func(t *testing.T, point uint16, cost int32, dx, dy int8, w, h uint8) {
		super := &pointset.Grid{Zoom: 12, West: 1000, North: 2000, Width: 17, Height: 13}
		sub := &pointset.Grid{Zoom: 12, West: 1000 + int(dx), North: 2000 + int(dy), Width: int(w%32) + 1, Height: int(h%32) + 1}
		p := int32(int(point) % super.Size())
		if cost < 0 {
			cost = -cost
		}

		table := costtable.NewTable(streetmode.DistanceMillimeters, []costtable.StopCosts{{p, cost}}, super.Size())
		cropped, err := costtable.Crop(table, super, sub)
		if err != nil {
			t.Fatal(err)
		}

		absX := super.West + int(p)%super.Width
		absY := super.North + int(p)/super.Width
		inside := sub.Contains(absX, absY)

		got := pairs(cropped.StopToPoint[0])
		if !inside {
			if got != nil {
				t.Fatalf("point outside the sub grid retained: %v", got)
			}
			return
		}
		expected := int32((absY-sub.North)*sub.Width + (absX - sub.West))
		if len(got) != 1 || got[expected] != cost {
			t.Fatalf("expected {%d: %d}, got %v", expected, cost, got)
		}
	})
}

package pointset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/fogleman/poissondisc"
	"github.com/paulmach/orb"
	"github.com/royalcat/egresscost/kdbush"
)

var ErrNotGrid = errors.New("point set is not a web mercator grid")

type Kind uint8

const (
	KindGrid Kind = iota + 1
	KindFreeForm
)

func (k Kind) String() string {
	switch k {
	case KindGrid:
		return "grid"
	case KindFreeForm:
		return "freeform"
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// PointSet is an ordered set of destination points with dense indices.
type PointSet interface {
	Kind() Kind
	Size() int
	Point(i int) orb.Point
	Bound() orb.Bound
	// VisitBound calls visit for every point index inside b until visit returns false.
	VisitBound(b orb.Bound, visit func(i int) bool)
}

// AsGrid narrows ps to a grid, failing with ErrNotGrid for other kinds.
func AsGrid(ps PointSet) (*Grid, error) {
	g, ok := ps.(*Grid)
	if !ok {
		return nil, fmt.Errorf("%s point set: %w", ps.Kind(), ErrNotGrid)
	}
	return g, nil
}

// FreeForm is an arbitrary list of points.
type FreeForm struct {
	points []orb.Point

	indexOnce sync.Once
	index     *kdbush.KDBush[int32]
}

func NewFreeForm(points []orb.Point) *FreeForm {
	return &FreeForm{points: points}
}

// SampleFreeForm fills bound with poisson disc distributed points roughly
// spacingMeters apart.
func SampleFreeForm(bound orb.Bound, spacingMeters float64, seed int64) *FreeForm {
	r := spacingMeters / metersPerDegree
	rnd := rand.New(rand.NewSource(seed))
	samples := poissondisc.Sample(bound.Min.X(), bound.Min.Y(), bound.Max.X(), bound.Max.Y(), r, 10, rnd)

	points := make([]orb.Point, 0, len(samples))
	for _, p := range samples {
		points = append(points, orb.Point{p.X, p.Y})
	}
	return NewFreeForm(points)
}

const metersPerDegree = 111_320

func (f *FreeForm) Kind() Kind { return KindFreeForm }

func (f *FreeForm) Size() int { return len(f.points) }

func (f *FreeForm) Point(i int) orb.Point { return f.points[i] }

func (f *FreeForm) Points() []orb.Point { return f.points }

func (f *FreeForm) Bound() orb.Bound {
	return orb.MultiPoint(f.points).Bound()
}

func (f *FreeForm) VisitBound(b orb.Bound, visit func(i int) bool) {
	f.indexOnce.Do(func() {
		items := make([]kdbush.Point[int32], len(f.points))
		for i, p := range f.points {
			items[i] = kdbush.Point[int32]{X: p.Lon(), Y: p.Lat(), Data: int32(i)}
		}
		f.index = kdbush.NewBush(items, 64)
	})
	f.index.VisitBound(b, visit)
}

// Grid is a rectangle of web mercator pixels at Zoom. West and North are the
// pixel coordinates of the top left cell; point i is cell (i%Width, i/Width).
type Grid struct {
	Zoom   int
	West   int
	North  int
	Width  int
	Height int
}

// GridForBound returns the smallest grid at zoom covering b.
func GridForBound(b orb.Bound, zoom int) *Grid {
	west := int(math.Floor(LonToPixel(b.Min.Lon(), zoom)))
	east := int(math.Floor(LonToPixel(b.Max.Lon(), zoom)))
	north := int(math.Floor(LatToPixel(b.Max.Lat(), zoom)))
	south := int(math.Floor(LatToPixel(b.Min.Lat(), zoom)))
	return &Grid{
		Zoom:   zoom,
		West:   west,
		North:  north,
		Width:  east - west + 1,
		Height: south - north + 1,
	}
}

func (g *Grid) Kind() Kind { return KindGrid }

func (g *Grid) Size() int { return g.Width * g.Height }

// Point returns the center of cell i.
func (g *Grid) Point(i int) orb.Point {
	x := g.West + i%g.Width
	y := g.North + i/g.Width
	return orb.Point{
		PixelToLon(float64(x)+0.5, g.Zoom),
		PixelToLat(float64(y)+0.5, g.Zoom),
	}
}

func (g *Grid) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{PixelToLon(float64(g.West), g.Zoom), PixelToLat(float64(g.North+g.Height), g.Zoom)},
		Max: orb.Point{PixelToLon(float64(g.West+g.Width), g.Zoom), PixelToLat(float64(g.North), g.Zoom)},
	}
}

func (g *Grid) VisitBound(b orb.Bound, visit func(i int) bool) {
	minX := max(int(math.Floor(LonToPixel(b.Min.Lon(), g.Zoom)))-g.West, 0)
	maxX := min(int(math.Floor(LonToPixel(b.Max.Lon(), g.Zoom)))-g.West, g.Width-1)
	minY := max(int(math.Floor(LatToPixel(b.Max.Lat(), g.Zoom)))-g.North, 0)
	maxY := min(int(math.Floor(LatToPixel(b.Min.Lat(), g.Zoom)))-g.North, g.Height-1)

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			i := y*g.Width + x
			if !b.Contains(g.Point(i)) {
				continue
			}
			if !visit(i) {
				return
			}
		}
	}
}

// Contains reports whether the cell at absolute pixel (x, y) is in the grid.
func (g *Grid) Contains(x, y int) bool {
	return x >= g.West && x < g.West+g.Width && y >= g.North && y < g.North+g.Height
}

func worldPixels(zoom int) float64 {
	return 256 * math.Exp2(float64(zoom))
}

func LonToPixel(lon float64, zoom int) float64 {
	return (lon + 180) / 360 * worldPixels(zoom)
}

func LatToPixel(lat float64, zoom int) float64 {
	rad := lat * math.Pi / 180
	return (1 - math.Log(math.Tan(rad)+1/math.Cos(rad))/math.Pi) / 2 * worldPixels(zoom)
}

func PixelToLon(x float64, zoom int) float64 {
	return x/worldPixels(zoom)*360 - 180
}

func PixelToLat(y float64, zoom int) float64 {
	n := math.Pi * (1 - 2*y/worldPixels(zoom))
	return math.Atan(math.Sinh(n)) * 180 / math.Pi
}

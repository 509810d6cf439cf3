package kdbush

import (
	"math"

	"github.com/paulmach/orb"
)

// Point is an indexed item. X is longitude, Y is latitude for geographic data.
type Point[T any] struct {
	X, Y float64
	Data T
}

// KDBush is a static kd-tree over points, built once and queried concurrently.
type KDBush[T any] struct {
	NodeSize int
	Points   []Point[T]

	idxs   []int     //array of indexes
	coords []float64 //array of coordinates
}

func NewBush[T any](points []Point[T], nodeSize int) *KDBush[T] {
	b := KDBush[T]{}
	b.buildIndex(points, nodeSize)
	return &b
}

func (bush *KDBush[T]) Len() int {
	return len(bush.Points)
}

// Range finds all items within the given bounding box and returns indices into the original points slice.
func (bush *KDBush[T]) Range(minX, minY, maxX, maxY float64) []int {
	result := []int{}
	bush.visitRange(minX, minY, maxX, maxY, func(i int) bool {
		result = append(result, i)
		return true
	})
	return result
}

// VisitBound calls visit with the original index of every point inside b,
// stopping early when visit returns false.
func (bush *KDBush[T]) VisitBound(b orb.Bound, visit func(i int) bool) {
	bush.visitRange(b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y(), visit)
}

func (bush *KDBush[T]) visitRange(minX, minY, maxX, maxY float64, visit func(i int) bool) {
	if len(bush.idxs) == 0 {
		return
	}
	stack := []int{0, len(bush.idxs) - 1, 0}
	var x, y float64

	for len(stack) > 0 {
		axis := stack[len(stack)-1]
		right := stack[len(stack)-2]
		left := stack[len(stack)-3]
		stack = stack[:len(stack)-3]

		if right-left <= bush.NodeSize {
			for i := left; i <= right; i++ {
				x = bush.coords[2*i]
				y = bush.coords[2*i+1]
				if x >= minX && x <= maxX && y >= minY && y <= maxY {
					if !visit(bush.idxs[i]) {
						return
					}
				}
			}
			continue
		}

		m := (left + right) / 2

		x = bush.coords[2*m]
		y = bush.coords[2*m+1]

		if x >= minX && x <= maxX && y >= minY && y <= maxY {
			if !visit(bush.idxs[m]) {
				return
			}
		}

		nextAxis := (axis + 1) % 2

		if (axis == 0 && minX <= x) || (axis != 0 && minY <= y) {
			stack = append(stack, left, m-1, nextAxis)
		}

		if (axis == 0 && maxX >= x) || (axis != 0 && maxY >= y) {
			stack = append(stack, m+1, right, nextAxis)
		}
	}
}

// Within calls handler for every point within planar radius of (qx, qy).
func (bush *KDBush[T]) Within(qx, qy float64, radius float64, handler func(i int, p Point[T]) bool) {
	if len(bush.idxs) == 0 {
		return
	}
	stack := []int{0, len(bush.idxs) - 1, 0}
	r2 := radius * radius

	for len(stack) > 0 {
		axis := stack[len(stack)-1]
		right := stack[len(stack)-2]
		left := stack[len(stack)-3]
		stack = stack[:len(stack)-3]

		if right-left <= bush.NodeSize {
			for i := left; i <= right; i++ {
				if sqDist(bush.coords[2*i], bush.coords[2*i+1], qx, qy) <= r2 {
					idx := bush.idxs[i]
					if !handler(idx, bush.Points[idx]) {
						return
					}
				}
			}
			continue
		}

		m := (left + right) / 2
		x := bush.coords[2*m]
		y := bush.coords[2*m+1]

		if sqDist(x, y, qx, qy) <= r2 {
			idx := bush.idxs[m]
			if !handler(idx, bush.Points[idx]) {
				return
			}
		}

		nextAxis := (axis + 1) % 2

		if (axis == 0 && (qx-radius <= x)) || (axis != 0 && (qy-radius <= y)) {
			stack = append(stack, left, m-1, nextAxis)
		}

		if (axis == 0 && (qx+radius >= x)) || (axis != 0 && (qy+radius >= y)) {
			stack = append(stack, m+1, right, nextAxis)
		}
	}
}

// Metric measures a candidate of a Nearest query. Candidates with ok false
// are skipped.
type Metric[T any] func(i int, p Point[T]) (dist float64, ok bool)

// Nearest returns the index of the point within radius of (qx, qy) that has
// the smallest metric, or -1. radius only bounds the search, so the metric
// may measure in other units. A nil metric ranks by planar distance.
func (bush *KDBush[T]) Nearest(qx, qy, radius float64, metric Metric[T]) int {
	if metric == nil {
		metric = func(_ int, p Point[T]) (float64, bool) {
			return sqDist(p.X, p.Y, qx, qy), true
		}
	}
	best := -1
	bestDist := math.Inf(1)
	bush.Within(qx, qy, radius, func(i int, p Point[T]) bool {
		d, ok := metric(i, p)
		if !ok {
			return true
		}
		// ties go to the lowest index so results don't depend on tree layout
		if d < bestDist || (d == bestDist && i < best) {
			best, bestDist = i, d
		}
		return true
	})
	return best
}

func (bush *KDBush[T]) buildIndex(points []Point[T], nodeSize int) {
	bush.NodeSize = nodeSize
	bush.Points = points

	bush.idxs = make([]int, len(points))
	bush.coords = make([]float64, 2*len(points))

	for i, v := range points {
		bush.idxs[i] = i
		bush.coords[i*2] = v.X
		bush.coords[i*2+1] = v.Y
	}

	sortKD(bush.idxs, bush.coords, bush.NodeSize, 0, len(bush.idxs)-1, 0)
}

func sortKD(idxs []int, coords []float64, nodeSize int, left, right, depth int) {
	if (right - left) <= nodeSize {
		return
	}

	m := (left + right) / 2

	sselect(idxs, coords, m, left, right, depth%2)

	sortKD(idxs, coords, nodeSize, left, m-1, depth+1)
	sortKD(idxs, coords, nodeSize, m+1, right, depth+1)
}

// sselect is Floyd-Rivest selection on one axis of the interleaved coords.
func sselect(idxs []int, coords []float64, k, left, right, inc int) {
	for right > left {
		if (right - left) > 600 {
			n := right - left + 1
			m := k - left + 1
			z := math.Log(float64(n))
			s := 0.5 * math.Exp(2.0*z/3.0)
			sds := 1.0
			if float64(m)-float64(n)/2.0 < 0 {
				sds = -1.0
			}
			sd := 0.5 * math.Sqrt(z*s*(float64(n)-s)/float64(n)) * sds
			newLeft := max(left, int(math.Floor(float64(k)-float64(m)*s/float64(n)+sd)))
			newRight := min(right, int(math.Floor(float64(k)+float64(n-m)*s/float64(n)+sd)))
			sselect(idxs, coords, k, newLeft, newRight, inc)
		}

		t := coords[2*k+inc]
		i := left
		j := right

		swapItem(idxs, coords, left, k)
		if coords[2*right+inc] > t {
			swapItem(idxs, coords, left, right)
		}

		for i < j {
			swapItem(idxs, coords, i, j)
			i++
			j--
			for coords[2*i+inc] < t {
				i++
			}
			for coords[2*j+inc] > t {
				j--
			}
		}

		if coords[2*left+inc] == t {
			swapItem(idxs, coords, left, j)
		} else {
			j++
			swapItem(idxs, coords, j, right)
		}

		if j <= k {
			left = j + 1
		}
		if k <= j {
			right = j - 1
		}
	}
}

func swapItem(idxs []int, coords []float64, i, j int) {
	idxs[i], idxs[j] = idxs[j], idxs[i]
	coords[2*i], coords[2*j] = coords[2*j], coords[2*i]
	coords[2*i+1], coords[2*j+1] = coords[2*j+1], coords[2*i+1]
}

func sqDist(ax, ay, bx, by float64) float64 {
	dx := ax - bx
	dy := ay - by
	return dx*dx + dy*dy
}

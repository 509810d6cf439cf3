package costtable

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/royalcat/egresscost/router"
	"github.com/royalcat/egresscost/streetmode"
	"github.com/sourcegraph/conc/iter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/royalcat/egresscost/costtable")

// Router is a single use street search. The builder creates one per stop.
type Router interface {
	SetOrigin(lat, lon float64) bool
	Route(search router.Search)
	ReachedVertices() map[int32]int32
	// TravelTimeToVertex returns seconds or Unreachable.
	TravelTimeToVertex(v int32) int32
}

// Destinations is a point set linked to the street network.
type Destinations interface {
	Size() int
	// ExtendToPoints adds the off street leg to vertex costs for points inside
	// within, keeping those at or below limit.
	ExtendToPoints(vertexCosts map[int32]int32, within orb.Bound, limit int32) StopCosts
	// Evaluate returns a dense per point travel time in seconds.
	Evaluate(timeToVertex func(v int32) int32, offStreetSpeed int32) []int32
}

type Transit interface {
	StopCount() int
	// StopVertex is negative for stops not linked to the street network.
	StopVertex(stop int) int32
	StopPoint(stop int) (orb.Point, bool)
	// WalkDistanceTable is the precomputed stop to vertex walk distance in millimeters.
	WalkDistanceTable(stop int) map[int32]int32
}

type BuildInput struct {
	Mode         streetmode.StreetMode
	Limits       streetmode.Table
	Transit      Transit
	Destinations Destinations
	NewRouter    func() Router

	// Base is the linkage of the unmodified network. With a base only stops
	// near ModifiedEdges are recomputed.
	Base          *Table
	ModifiedEdges []orb.Bound
}

type Outcome uint8

const (
	OutcomeComputed Outcome = iota + 1
	OutcomeReused
	OutcomeUnlinked
	OutcomeUnreachable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComputed:
		return "computed"
	case OutcomeReused:
		return "reused"
	case OutcomeUnlinked:
		return "unlinked"
	case OutcomeUnreachable:
		return "unreachable"
	}
	return fmt.Sprintf("Outcome(%d)", uint8(o))
}

type BuildStats struct {
	Computed    int
	Reused      int
	Unlinked    int
	Unreachable int
}

func (s *BuildStats) add(o Outcome) {
	switch o {
	case OutcomeComputed:
		s.Computed++
	case OutcomeReused:
		s.Reused++
	case OutcomeUnlinked:
		s.Unlinked++
	case OutcomeUnreachable:
		s.Unreachable++
	}
}

type buildOptions struct {
	threads  int
	log      *slog.Logger
	progress func(done, total int)
}

type Option func(*buildOptions)

func WithThreads(n int) Option {
	return func(o *buildOptions) {
		if n > 0 {
			o.threads = n
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(o *buildOptions) {
		o.log = log
	}
}

// WithProgress registers a callback invoked after every stop. It is called
// from worker goroutines, one call at a time, with done strictly increasing.
func WithProgress(fn func(done, total int)) Option {
	return func(o *buildOptions) {
		o.progress = fn
	}
}

type stopResult struct {
	costs   StopCosts
	outcome Outcome
}

type builder struct {
	in     BuildInput
	unit   streetmode.CostUnit
	limits streetmode.Limits
	zone   *RebuildZone
	log    *slog.Logger
}

// Build computes the forward table for every stop of in.Transit and indexes it.
// The build fails as a whole if any stop fails or ctx is cancelled.
func Build(ctx context.Context, in BuildInput, opts ...Option) (*Table, BuildStats, error) {
	o := buildOptions{
		threads: runtime.GOMAXPROCS(0),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	unit, err := ResolveCostUnit(in.Mode, in.Limits, in.Base)
	if err != nil {
		return nil, BuildStats{}, err
	}
	limits, _ := in.Limits.Lookup(in.Mode)
	if err := checkModeUnit(in.Mode, unit); err != nil {
		return nil, BuildStats{}, err
	}
	zone, err := ComputeRebuildZone(in.Base != nil, in.Mode, in.Limits, in.ModifiedEdges)
	if err != nil {
		return nil, BuildStats{}, err
	}

	stopCount := in.Transit.StopCount()
	ctx, span := tracer.Start(ctx, "costtable.Build", trace.WithAttributes(
		attribute.String("mode", in.Mode.String()),
		attribute.Int("stops", stopCount),
		attribute.Bool("partial", zone != nil),
	))
	defer span.End()

	b := &builder{
		in:     in,
		unit:   unit,
		limits: limits,
		zone:   zone,
		log:    o.log.With("mode", in.Mode.String()),
	}
	if zone != nil {
		b.log.Info("rebuilding stops near modified streets", "bounds", len(zone.Bounds()))
	} else {
		b.log.Info("building cost tables for all stops", "stops", stopCount)
	}

	stops := make([]int, stopCount)
	for i := range stops {
		stops[i] = i
	}

	done := xsync.NewCounter()
	var (
		progressMu sync.Mutex
		reported   int
	)
	mapper := iter.Mapper[int, stopResult]{MaxGoroutines: o.threads}
	results, err := mapper.MapErr(stops, func(stop *int) (stopResult, error) {
		if err := ctx.Err(); err != nil {
			return stopResult{}, err
		}
		res, err := b.stop(*stop)
		if err != nil {
			return stopResult{}, fmt.Errorf("stop %d: %w", *stop, err)
		}
		done.Inc()
		if o.progress != nil {
			progressMu.Lock()
			reported++
			o.progress(reported, stopCount)
			progressMu.Unlock()
		}
		return res, nil
	})
	if err != nil {
		b.log.Warn("cost table build stopped", "finished", done.Value(), "stops", stopCount, "error", err)
		span.RecordError(err)
		return nil, BuildStats{}, err
	}

	var stats BuildStats
	forward := make([]StopCosts, stopCount)
	for i, res := range results {
		forward[i] = res.costs
		stats.add(res.outcome)
	}
	span.SetAttributes(
		attribute.Int("computed", stats.Computed),
		attribute.Int("reused", stats.Reused),
	)
	b.log.Info("cost tables built",
		"computed", stats.Computed,
		"reused", stats.Reused,
		"unlinked", stats.Unlinked,
		"unreachable", stats.Unreachable,
	)

	return NewTable(unit, forward, in.Destinations.Size()), stats, nil
}

func checkModeUnit(mode streetmode.StreetMode, unit streetmode.CostUnit) error {
	switch mode {
	case streetmode.Walk, streetmode.Bicycle:
		if unit == streetmode.DistanceMillimeters {
			return nil
		}
	case streetmode.Car:
		if unit == streetmode.DurationSeconds {
			return nil
		}
	}
	return fmt.Errorf("%s with costs in %s: %w", mode, unit, ErrUnsupportedMode)
}

func (b *builder) stop(stop int) (stopResult, error) {
	if b.in.Transit.StopVertex(stop) < 0 {
		b.log.Warn("stop is not linked to the street network", "stop", stop)
		return stopResult{outcome: OutcomeUnlinked}, nil
	}
	point, _ := b.in.Transit.StopPoint(stop)

	if b.zone != nil && !b.zone.Contains(point) && stop < b.in.Base.StopCount() {
		return stopResult{costs: b.in.Base.StopToPoint[stop], outcome: OutcomeReused}, nil
	}

	costs, err := b.compute(stop, point)
	if err != nil {
		return stopResult{}, err
	}
	if len(costs) == 0 {
		return stopResult{outcome: OutcomeUnreachable}, nil
	}
	return stopResult{costs: costs, outcome: OutcomeComputed}, nil
}

func (b *builder) envelope(point orb.Point) orb.Bound {
	return geo.BoundPad(point.Bound(), float64(b.limits.LinkingDistanceMeters))
}

func (b *builder) compute(stop int, point orb.Point) (StopCosts, error) {
	switch b.in.Mode {
	case streetmode.Walk:
		distances := b.in.Transit.WalkDistanceTable(stop)
		if distances == nil {
			return nil, nil
		}
		limit := int32(b.limits.LinkingDistanceMeters * 1000)
		return b.in.Destinations.ExtendToPoints(distances, b.envelope(point), limit), nil

	case streetmode.Bicycle:
		r := b.in.NewRouter()
		if !r.SetOrigin(point.Lat(), point.Lon()) {
			return nil, nil
		}
		r.Route(router.Search{
			DistanceLimitMeters: b.limits.LinkingDistanceMeters,
			Minimize:            b.unit,
		})
		limit := int32(b.limits.LinkingDistanceMeters * 1000)
		return b.in.Destinations.ExtendToPoints(r.ReachedVertices(), b.envelope(point), limit), nil

	case streetmode.Car:
		r := b.in.NewRouter()
		if !r.SetOrigin(point.Lat(), point.Lon()) {
			return nil, nil
		}
		r.Route(router.Search{
			TimeLimitSeconds: b.limits.TimeLimitSeconds,
			Minimize:         b.unit,
		})
		times := b.in.Destinations.Evaluate(r.TravelTimeToVertex, streetmode.OffStreetSpeedMillimetersPerSecond)
		limit := int32(b.limits.TimeLimitSeconds)
		var costs StopCosts
		for p, t := range times {
			if t != Unreachable && t <= limit {
				costs = append(costs, int32(p), t)
			}
		}
		return costs, nil
	}
	return nil, fmt.Errorf("%s: %w", b.in.Mode, ErrUnsupportedMode)
}

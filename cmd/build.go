package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/paulmach/orb"
	"github.com/royalcat/egresscost/costtable"
	"github.com/royalcat/egresscost/internal/stats"
	"github.com/royalcat/egresscost/internal/telemetry"
	"github.com/royalcat/egresscost/linkage"
	"github.com/royalcat/egresscost/linkagesaver"
	"github.com/royalcat/egresscost/pointset"
	"github.com/royalcat/egresscost/scenario"
	"github.com/royalcat/egresscost/streetmode"
	"github.com/royalcat/egresscost/streets"
	"github.com/royalcat/egresscost/transit"
	"github.com/urfave/cli/v3"
	"golang.org/x/exp/mmap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultZoom = 9
	// free form samples are deterministic for a given input
	sampleSeed = 1
)

func build(ctx *cli.Context) error {
	log := slog.Default()

	threads := ctx.Int("threads")
	if threads == 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	log = log.With("threads", threads)

	tel, err := telemetry.Setup(ctx.Context, "egresscost", ctx.String("otel.endpoint"))
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer tel.Shutdown(context.Background())
	if tel != nil {
		log = slog.Default().With("threads", threads)
	}

	stopPprof, err := startPprof(ctx, log)
	if err != nil {
		return err
	}
	defer stopPprof()

	var collector *stats.Collector
	if ctx.String("stats") != "" {
		collector, err = stats.NewCollector("egresscost build", time.Second)
		if err != nil {
			return err
		}
		collector.Start()
	}

	mode, err := streetmode.Parse(ctx.String("mode"))
	if err != nil {
		return err
	}
	limits := streetmode.DefaultTable()
	if path := ctx.String("limits"); path != "" {
		limits, err = streetmode.LoadTable(path)
		if err != nil {
			return err
		}
	}

	var base *linkage.LinkedPointSet
	if path := ctx.String("base"); path != "" {
		if ctx.String("scenario") == "" {
			return fmt.Errorf("--base is only useful together with --scenario")
		}
		base, err = linkagesaver.LoadFromFile(path, log)
		if err != nil {
			return fmt.Errorf("failed to load base linkage: %w", err)
		}
		if base.Mode != mode {
			return fmt.Errorf("base linkage is for %s, building %s", base.Mode, mode)
		}
	}

	input := ctx.String("input")
	log.Info("Loading network", "input", input)
	file, err := mmap.Open(input)
	if err != nil {
		return err
	}
	defer file.Close()
	size := int64(file.Len())

	var (
		layer *streets.Layer
		stops []transit.Stop
	)
	g, gctx := errgroup.WithContext(ctx.Context)
	g.Go(func() error {
		var err error
		layer, err = streets.LoadOSM(gctx, file, size, threads, log)
		return err
	})
	g.Go(func() error {
		var err error
		stops, err = transit.LoadStopsOSM(gctx, io.NewSectionReader(file, 0, size), size, threads)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	tl := transit.NewLayer(stops)
	tl.Link(layer, log)
	// car and bicycle route from the stops directly, only walk reads the tables
	if mode == streetmode.Walk || ctx.String("scenario") != "" {
		if err := tl.BuildDistanceTables(ctx.Context, threads, nil); err != nil {
			return fmt.Errorf("failed to build walk distance tables: %w", err)
		}
	}

	var modified []orb.Bound
	if path := ctx.String("scenario"); path != "" {
		s, err := scenario.Load(path)
		if err != nil {
			return err
		}
		applied, err := s.Apply(ctx.Context, layer, tl, limits, threads, log)
		if err != nil {
			return err
		}
		layer, tl, modified = applied.Streets, applied.Transit, applied.ModifiedEdges
	}

	var ps pointset.PointSet
	if base != nil {
		ps = base.PointSet
	} else {
		ps, err = destinations(ctx, tl)
		if err != nil {
			return err
		}
	}
	log.Info("Destinations", "kind", ps.Kind().String(), "points", ps.Size())

	linked, err := linkage.Link(ctx.Context, ps, layer, mode, threads, log)
	if err != nil {
		return err
	}

	bar := pb.StartNew(tl.StopCount())
	bar.Set("prefix", "building "+mode.String()+" tables")
	buildStats, err := linked.BuildCostTables(ctx.Context, tl, limits, base, modified,
		costtable.WithThreads(threads),
		costtable.WithLogger(log),
		costtable.WithProgress(func(done, _ int) {
			bar.SetCurrent(int64(done))
		}),
	)
	bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to build cost tables: %w", err)
	}

	if ctx.Bool("pprof.heap") {
		if err := writeHeapProfile("profile"); err != nil {
			return fmt.Errorf("error writing heap profile: %w", err)
		}
	}

	saveFile := ctx.String("output")
	if !strings.HasSuffix(saveFile, ".linkage") {
		saveFile = saveFile + ".linkage"
	}
	log.Info("Saving linkage", "file", saveFile)
	err = linkagesaver.SaveToFile(saveFile, linked, linkagesaver.Metadata{DateCreated: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to save linkage: %w", err)
	}

	if collector != nil {
		collector.Count("stops", int64(tl.StopCount()))
		collector.Count("points", int64(ps.Size()))
		collector.Count("computed", int64(buildStats.Computed))
		collector.Count("reused", int64(buildStats.Reused))
		collector.Count("unlinked", int64(buildStats.Unlinked))
		collector.Count("unreachable", int64(buildStats.Unreachable))
		report := collector.Stop()
		if err := report.SaveToFile(ctx.String("stats")); err != nil {
			return err
		}
	}

	if err := tel.Flush(ctx.Context); err != nil {
		log.Warn("failed to flush telemetry", "error", err)
	}
	log.Info("Complete")
	return nil
}

// destinations builds the point set from the bounds flag, or from the stops
// padded by the link radius.
func destinations(ctx *cli.Context, tl *transit.Layer) (pointset.PointSet, error) {
	var (
		bound orb.Bound
		err   error
	)
	if s := ctx.String("bounds"); s != "" {
		bound, err = parseBounds(s)
		if err != nil {
			return nil, err
		}
	} else {
		var ok bool
		bound, ok = stopsBound(tl)
		if !ok {
			return nil, fmt.Errorf("no linked stops to derive destination bounds from, set --bounds")
		}
	}

	if spacing := ctx.Int("spacing"); spacing > 0 {
		return pointset.SampleFreeForm(bound, float64(spacing), sampleSeed), nil
	}
	zoom := ctx.Int("zoom")
	if zoom == 0 {
		zoom = defaultZoom
	}
	return pointset.GridForBound(bound, zoom), nil
}

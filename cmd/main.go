package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"runtime/pprof"

	"github.com/royalcat/egresscost/internal/telemetry"

	_ "net/http/pprof"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/urfave/cli/v3"
	_ "go.uber.org/automaxprocs"
)

func main() {
	telemetry.SetupLogging(slog.LevelInfo)

	app := &cli.App{
		Name:        "egresscost",
		Description: "Precomputed street costs between transit stops and destination points",
		Commands: []*cli.Command{
			{
				Name:    "build",
				Aliases: []string{"b"},
				Usage:   "builds the cost tables of one street mode",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:      "input",
						Aliases:   []string{"i"},
						Usage:     "OSM PBF file with streets and stops",
						Required:  true,
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:      "output",
						Aliases:   []string{"o"},
						Required:  true,
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:    "mode",
						Aliases: []string{"m"},
						Value:   "walk",
						Usage:   "walk, bicycle or car",
					},
					&cli.StringFlag{
						Name:      "limits",
						Usage:     "yaml file overriding the per mode limits",
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:  "bounds",
						Usage: "min_lon,min_lat,max_lon,max_lat of the destination points, default is around the stops",
					},
					&cli.IntFlag{
						Name:        "zoom",
						Usage:       "web mercator zoom of the destination grid",
						DefaultText: "9",
					},
					&cli.IntFlag{
						Name:  "spacing",
						Usage: "sample free form destinations this many meters apart instead of a grid",
					},
					&cli.StringFlag{
						Name:      "base",
						Usage:     "linkage of the unmodified network, only stops near scenario changes are rebuilt",
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:      "scenario",
						Usage:     "yaml scenario applied on top of the input network",
						TakesFile: true,
					},
					&cli.IntFlag{
						Name:        "threads",
						Aliases:     []string{"t"},
						DefaultText: "max",
					},
					&cli.StringFlag{
						Name:      "stats",
						Usage:     "write a resource usage report to this file",
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:  "otel.endpoint",
						Usage: "otlp http endpoint for build traces, metrics and logs",
					},
					&cli.StringFlag{
						Name:        "pprof.listen",
						DefaultText: "",
					},
					&cli.BoolFlag{
						Name:        "pprof.profile",
						DefaultText: "",
					},
					&cli.BoolFlag{
						Name:        "pprof.heap",
						DefaultText: "",
					},
				},
				Action: build,
			},
			{
				Name:  "crop",
				Usage: "derives the linkage of a sub grid from a saved grid linkage",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:      "input",
						Aliases:   []string{"i"},
						Required:  true,
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:      "output",
						Aliases:   []string{"o"},
						Required:  true,
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:     "bounds",
						Usage:    "min_lon,min_lat,max_lon,max_lat of the sub grid",
						Required: true,
					},
				},
				Action: crop,
			},
			{
				Name:  "serve",
				Usage: "serve a linkage query api",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:      "linkage",
						Aliases:   []string{"l"},
						Required:  true,
						TakesFile: true,
					},
					&cli.StringFlag{
						Name:  "listen",
						Value: ":8080",
					},
				},
				Action: serve,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func startPprof(ctx *cli.Context, log *slog.Logger) (stop func(), err error) {
	if pprofListen := ctx.String("pprof.listen"); pprofListen != "" {
		go func() {
			log.Info("Starting pprof server")
			err := http.ListenAndServe(pprofListen, nil)
			if err != nil {
				log.Error("Error starting pprof server", "error", err)
			}
		}()
	}

	if !ctx.Bool("pprof.profile") {
		return func() {}, nil
	}
	f, err := os.OpenFile("profile.cpu.pprof", os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("error creating pprof file: %w", err)
	}
	err = pprof.StartCPUProfile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error starting pprof: %w", err)
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}, nil
}

func writeHeapProfile(name string) error {
	f, err := os.Create(name + ".heap.prof")
	if err != nil {
		return err
	}
	defer f.Close()
	return pprof.WriteHeapProfile(f)
}

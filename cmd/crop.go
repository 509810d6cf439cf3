package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/royalcat/egresscost/linkage"
	"github.com/royalcat/egresscost/linkagesaver"
	"github.com/royalcat/egresscost/pointset"
	"github.com/urfave/cli/v3"
)

func crop(ctx *cli.Context) error {
	log := slog.Default()

	bound, err := parseBounds(ctx.String("bounds"))
	if err != nil {
		return err
	}

	super, err := linkagesaver.LoadFromFile(ctx.String("input"), log)
	if err != nil {
		return err
	}
	superGrid, err := pointset.AsGrid(super.PointSet)
	if err != nil {
		return fmt.Errorf("only grid linkages can be cropped: %w", err)
	}

	sub := pointset.GridForBound(bound, superGrid.Zoom)
	cropped, err := linkage.CropFrom(super, sub)
	if err != nil {
		return err
	}
	log.Info("Cropped linkage",
		"from_points", super.Size(),
		"to_points", cropped.Size(),
		"west", sub.West,
		"north", sub.North,
		"width", sub.Width,
		"height", sub.Height,
	)

	return linkagesaver.SaveToFile(ctx.String("output"), cropped, linkagesaver.Metadata{DateCreated: time.Now()})
}

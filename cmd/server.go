package main

import (
	"log/slog"

	"github.com/royalcat/egresscost/linkagesaver"
	"github.com/royalcat/egresscost/server"
	"github.com/urfave/cli/v3"
)

func serve(ctx *cli.Context) error {
	slog.Info("Loading linkage")
	l, err := linkagesaver.LoadFromFile(ctx.String("linkage"), slog.Default())
	if err != nil {
		return err
	}

	return server.Run(ctx.Context, ctx.String("listen"), l)
}

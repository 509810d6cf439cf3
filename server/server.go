package server

import (
	"context"
	"fmt"
	stdlog "log"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/fasthttp/router"
	"github.com/mailru/easyjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/royalcat/egresscost/linkage"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const MaxBodySize = 32 * 1000 * 1000 // 32MB

var meter = otel.Meter("github.com/royalcat/egresscost/server")

func Run(ctx context.Context, address string, l *linkage.LinkedPointSet) error {
	if err := setupTelemetry(ctx); err != nil {
		return fmt.Errorf("failed to initialize otel metrics: %w", err)
	}

	log := slog.Default()

	s, err := newServer(l)
	if err != nil {
		return err
	}

	r := router.New()
	r.GET("/linkage/info", s.InfoHandler)
	r.GET("/linkage/points/{point}", s.PointHandler)
	r.GET("/linkage/stops/{stop}", s.StopHandler)
	r.POST("/linkage/locate", s.LocateHandler)
	r.Handle(http.MethodGet, "/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))

	server := &fasthttp.Server{
		ReadTimeout:        time.Second,
		MaxRequestBodySize: MaxBodySize,
		Handler:            r.Handler,
	}

	go func() {
		log.Info("Server listening", "address", address)
		if err := server.ListenAndServe(address); err != http.ErrServerClosed {
			stdlog.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	slog.Info("Server started")

	// wait cancel
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return server.ShutdownWithContext(shutdownCtx)
}

type server struct {
	linkage *linkage.LinkedPointSet

	metricPointCallCount  metric.Int64Counter
	metricStopCallCount   metric.Int64Counter
	metricLocateCallCount metric.Int64Counter
	metricPointsLocated   metric.Int64Counter
}

func newServer(l *linkage.LinkedPointSet) (*server, error) {
	if l.Table() == nil {
		return nil, fmt.Errorf("linkage has no cost tables")
	}

	metricPointCallCount, err := meter.Int64Counter("http_point_call_total")
	if err != nil {
		return nil, err
	}
	metricStopCallCount, err := meter.Int64Counter("http_stop_call_total")
	if err != nil {
		return nil, err
	}
	metricLocateCallCount, err := meter.Int64Counter("http_locate_call_total")
	if err != nil {
		return nil, err
	}
	metricPointsLocated, err := meter.Int64Counter("points_located_total")
	if err != nil {
		return nil, err
	}

	return &server{
		linkage: l,

		metricPointCallCount:  metricPointCallCount,
		metricStopCallCount:   metricStopCallCount,
		metricLocateCallCount: metricLocateCallCount,
		metricPointsLocated:   metricPointsLocated,
	}, nil
}

var reqPointsPool = sync.Pool{
	New: func() any {
		return [][2]float64{}
	},
}

func (s *server) InfoHandler(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, newInfo(s.linkage))
}

func (s *server) PointHandler(ctx *fasthttp.RequestCtx) {
	s.metricPointCallCount.Add(ctx, 1)

	point, ok := indexParam(ctx, "point", s.linkage.Size())
	if !ok {
		return
	}

	writeJSON(ctx, newPointCosts(point, s.linkage.Table().PointToStop(point)))
}

func (s *server) StopHandler(ctx *fasthttp.RequestCtx) {
	s.metricStopCallCount.Add(ctx, 1)

	table := s.linkage.Table()
	stop, ok := indexParam(ctx, "stop", table.StopCount())
	if !ok {
		return
	}

	costs := table.StopToPoint[stop]
	if costs == nil {
		ctx.Response.SetStatusCode(http.StatusNoContent)
		return
	}

	writeJSON(ctx, StopCosts{Stop: stop, Costs: costs})
}

// LocateHandler takes a list of [lat, lon] pairs and answers with the costs
// of the destination point at each location, null where there is none.
func (s *server) LocateHandler(ctx *fasthttp.RequestCtx) {
	s.metricLocateCallCount.Add(ctx, 1)

	req := reqPointsPool.Get().([][2]float64) // lat, lon
	req = req[:0]
	defer reqPointsPool.Put(req)

	err := unmarshalPointsListFast(ctx.Request.Body(), &req)
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		ctx.Response.SetBodyString("failed to parse request: " + err.Error())
		return
	}

	s.metricPointsLocated.Add(ctx, int64(len(req)))

	table := s.linkage.Table()
	res := make(PointCostsList, len(req))
	for i, p := range req {
		point, ok := locate(s.linkage.PointSet, p[0], p[1])
		if !ok {
			continue
		}
		costs := newPointCosts(point, table.PointToStop(point))
		res[i] = &costs
	}

	writeJSON(ctx, res)
}

func indexParam(ctx *fasthttp.RequestCtx, name string, size int) (int, bool) {
	v, err := strconv.Atoi(ctx.UserValue(name).(string))
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		return 0, false
	}
	if v < 0 || v >= size {
		ctx.Response.SetStatusCode(http.StatusNotFound)
		return 0, false
	}
	return v, true
}

func writeJSON(ctx *fasthttp.RequestCtx, v easyjson.Marshaler) {
	data, err := easyjson.Marshal(v)
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusInternalServerError)
		ctx.Response.SetBodyString("failed to marshal response")
		return
	}

	ctx.Response.Header.SetContentType("application/json")
	ctx.Response.SetStatusCode(http.StatusOK)
	ctx.Response.SetBody(data)
}

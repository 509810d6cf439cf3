package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	sloglogrus "github.com/samber/slog-logrus/v2"
	slogmulti "github.com/samber/slog-multi"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"golang.org/x/sync/errgroup"
)

// Client owns the otlp providers of a cli run. A nil Client is valid and
// does nothing.
type Client struct {
	log *slog.Logger

	tracerProvider *trace.TracerProvider
	metricProvider *metric.MeterProvider
	loggerProvider *log.LoggerProvider
}

func (client *Client) Flush(ctx context.Context) error {
	if client == nil {
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.metricProvider.ForceFlush(ctx) })
	g.Go(func() error { return client.loggerProvider.ForceFlush(ctx) })
	g.Go(func() error { return client.tracerProvider.ForceFlush(ctx) })
	return g.Wait()
}

func (client *Client) Shutdown(ctx context.Context) {
	if client == nil {
		return
	}
	shutdowns := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"metric", client.metricProvider.Shutdown},
		{"tracer", client.tracerProvider.Shutdown},
		{"logger", client.loggerProvider.Shutdown},
	}
	for _, s := range shutdowns {
		if err := s.fn(ctx); err != nil {
			client.log.ErrorContext(ctx, "error shutting down "+s.name+" provider", "error", err.Error())
		}
	}
}

// SetupLogging installs slog over the logrus standard logger.
func SetupLogging(level slog.Level) {
	slog.SetDefault(slog.New(sloglogrus.Option{Level: level, Logger: logrus.StandardLogger()}.NewLogrusHandler()))
}

// Setup exports traces, metrics and logs of a run to an otlp http endpoint and
// fans slog out to it. It returns a nil Client when endpoint is empty.
func Setup(ctx context.Context, appName, endpoint string) (*Client, error) {
	if endpoint == "" {
		return nil, nil
	}

	client := &Client{
		log: slog.With("component", "telemetry"),
	}
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(cause error) {
		client.log.ErrorContext(ctx, "otel error", "error", cause.Error())
	}))

	r, err := newResource(appName)
	if err != nil {
		return nil, err
	}

	client.metricProvider, err = newMeterProvider(ctx, r, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	otel.SetMeterProvider(client.metricProvider)

	up, err := otel.Meter(appName + "/telemetry").Int64Counter("up")
	if err != nil {
		return nil, err
	}
	up.Add(ctx, 1)

	client.tracerProvider, err = newTracerProvider(ctx, r, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	otel.SetTracerProvider(client.tracerProvider)

	client.loggerProvider, err = newLoggerProvider(ctx, r, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize log export: %w", err)
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(
		otelslog.NewHandler(appName, otelslog.WithLoggerProvider(client.loggerProvider)),
		sloglogrus.Option{Level: slog.LevelDebug, Logger: logrus.StandardLogger()}.NewLogrusHandler(),
	)))

	// recreate telemetry logger on top of the new default
	client.log = slog.With("component", "telemetry")
	client.log.InfoContext(ctx, "telemetry initialized", "endpoint", endpoint)

	return client, nil
}

func newResource(appName string) (*resource.Resource, error) {
	hostName, _ := os.Hostname()

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(appName),
			semconv.HostName(hostName),
			semconv.ServiceInstanceID(uuid.NewString()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build otel resource: %w", err)
	}
	return r, nil
}

func newMeterProvider(ctx context.Context, r *resource.Resource, endpoint string) (*metric.MeterProvider, error) {
	exporter, err := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(endpoint),
		otlpmetrichttp.WithRetry(otlpmetrichttp.RetryConfig{Enabled: false}),
	)
	if err != nil {
		return nil, err
	}
	return metric.NewMeterProvider(
		metric.WithResource(r),
		metric.WithReader(metric.NewPeriodicReader(exporter)),
	), nil
}

func newTracerProvider(ctx context.Context, r *resource.Resource, endpoint string) (*trace.TracerProvider, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithRetry(otlptracehttp.RetryConfig{Enabled: false}),
	)
	if err != nil {
		return nil, err
	}
	return trace.NewTracerProvider(
		trace.WithResource(r),
		trace.WithBatcher(exporter, trace.WithExportTimeout(time.Second)),
	), nil
}

func newLoggerProvider(ctx context.Context, r *resource.Resource, endpoint string) (*log.LoggerProvider, error) {
	exporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(endpoint),
		otlploghttp.WithRetry(otlploghttp.RetryConfig{Enabled: false}),
	)
	if err != nil {
		return nil, err
	}
	return log.NewLoggerProvider(
		log.WithResource(r),
		log.WithProcessor(log.NewBatchProcessor(exporter, log.WithExportInterval(time.Second))),
	), nil
}

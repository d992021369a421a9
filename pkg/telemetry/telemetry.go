package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/snapshare/snapfeed/pkg/config"
	"github.com/snapshare/snapfeed/pkg/logging"
)

// Version is reported as the service version resource attribute
const Version = "0.1.0"

const shutdownTimeout = 5 * time.Second

var tracer trace.Tracer

type stopFunc func(context.Context) error

// Init installs the Jaeger tracer, the Prometheus meter provider and the
// W3C propagator. The snapfeed instruments are rebound to the new meter
// provider, so services must be built after Init. The returned func flushes
// and stops every exporter that was started.
func Init(cfg *config.TelemetryConfig) (func(), error) {
	if !cfg.Enabled {
		logging.GetLogger().Info("Telemetry disabled")
		return func() {}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var stops []stopFunc
	fail := func(err error) (func(), error) {
		shutdown(stops)
		return nil, err
	}

	if cfg.JaegerURL != "" {
		stop, err := initTracing(cfg.JaegerURL, res)
		if err != nil {
			return fail(err)
		}
		stops = append(stops, stop)
	}

	if cfg.PrometheusEnabled {
		stop, err := initMetrics(res)
		if err != nil {
			return fail(err)
		}
		stops = append(stops, stop)
		logging.GetLogger().Info("Prometheus exporter initialized", zap.Int("port", cfg.PrometheusPort))
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	tracer = otel.Tracer(cfg.ServiceName, trace.WithInstrumentationVersion(Version))

	return func() { shutdown(stops) }, nil
}

func initTracing(url string, res *resource.Resource) (stopFunc, error) {
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(url)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	logging.GetLogger().Info("Jaeger exporter initialized", zap.String("url", url))
	return tp.Shutdown, nil
}

// initMetrics registers the Prometheus reader with the default registry,
// which is what /metrics serves
func initMetrics(res *resource.Resource) (stopFunc, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	BindMetrics(mp.Meter(meterName, otelmetric.WithInstrumentationVersion(Version)))
	return mp.Shutdown, nil
}

func shutdown(stops []stopFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(stops) - 1; i >= 0; i-- {
		errs = append(errs, stops[i](ctx))
	}
	if err := errors.Join(errs...); err != nil {
		logging.GetLogger().Error("Error shutting down telemetry", zap.Error(err))
	}
}

// Tracer returns the process tracer, a no-op one before Init
func Tracer() trace.Tracer {
	if tracer == nil {
		return noop.NewTracerProvider().Tracer("snapfeed")
	}
	return tracer
}

// StartSpan starts a new span
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// EndSpan records err on the span, if any, and ends it
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

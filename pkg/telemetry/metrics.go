package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/snapshare/snapfeed"

// Metrics holds the service counters. Init binds them to the Prometheus
// meter provider; before that they record to the global no-op provider.
type Metrics struct {
	FanoutDeliveries metric.Int64Counter
	FanoutFailures   metric.Int64Counter
	FeedEvictions    metric.Int64Counter
	MentionsRecorded metric.Int64Counter
	RPCRequests      metric.Int64Counter
}

var (
	metricsMu sync.Mutex
	metrics   *Metrics
)

// GetMetrics returns the process-wide instruments, created on the global
// meter provider on first use
func GetMetrics() *Metrics {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if metrics == nil {
		metrics = NewMetrics(otel.Meter(meterName))
	}
	return metrics
}

// BindMetrics replaces the process-wide instruments with ones created on meter
func BindMetrics(meter metric.Meter) *Metrics {
	m := NewMetrics(meter)
	metricsMu.Lock()
	metrics = m
	metricsMu.Unlock()
	return m
}

// NewMetrics creates the instruments on meter. Creation errors fall back to no-op instruments.
func NewMetrics(meter metric.Meter) *Metrics {
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			c, _ = otel.Meter(meterName).Int64Counter(name)
		}
		return c
	}
	return &Metrics{
		FanoutDeliveries: counter("snapfeed_fanout_deliveries_total", "Post references delivered to follower feeds"),
		FanoutFailures:   counter("snapfeed_fanout_failures_total", "Per-follower fan-out failures that were skipped"),
		FeedEvictions:    counter("snapfeed_feed_evictions_total", "Feed entries evicted by the capacity bound"),
		MentionsRecorded: counter("snapfeed_mentions_recorded_total", "Hashtag mentions recorded for trending"),
		RPCRequests:      counter("snapfeed_rpc_requests_total", "JSON-RPC requests by method and outcome"),
	}
}

// Add increments c by n with optional attributes
func Add(ctx context.Context, c metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if c == nil || n == 0 {
		return
	}
	c.Add(ctx, n, metric.WithAttributes(attrs...))
}

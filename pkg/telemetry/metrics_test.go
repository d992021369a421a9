package telemetry

import (
	"context"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/snapshare/snapfeed/pkg/config"
)

func TestMetrics_Add(t *testing.T) {
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	m := NewMetrics(provider.Meter("test"))

	ctx := context.Background()
	Add(ctx, m.FanoutDeliveries, 3)
	Add(ctx, m.FanoutDeliveries, 2)
	Add(ctx, m.FeedEvictions, 0)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}

	var total int64
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "snapfeed_fanout_deliveries_total" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", md.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			found = true
		}
	}
	if !found {
		t.Fatal("fan-out deliveries metric not collected")
	}
	if total != 5 {
		t.Errorf("fan-out deliveries = %d, want 5", total)
	}
}

func TestStartSpanWithoutInit(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "test")
	if ctx == nil || span == nil {
		t.Fatal("StartSpan() should fall back to a no-op tracer")
	}
	EndSpan(span, nil)
}

func TestBindMetrics(t *testing.T) {
	t.Cleanup(func() {
		metricsMu.Lock()
		metrics = nil
		metricsMu.Unlock()
	})

	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	bound := BindMetrics(provider.Meter("test"))
	if GetMetrics() != bound {
		t.Fatal("GetMetrics() should return the bound instruments")
	}

	ctx := context.Background()
	Add(ctx, GetMetrics().RPCRequests, 1)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect() error = %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name == "snapfeed_rpc_requests_total" {
				return
			}
		}
	}
	t.Fatal("rpc requests metric not collected from the bound provider")
}

func TestInit(t *testing.T) {
	t.Cleanup(func() {
		metricsMu.Lock()
		metrics = nil
		metricsMu.Unlock()
		tracer = nil
	})

	shutdown, err := Init(&config.TelemetryConfig{Enabled: false})
	if err != nil || shutdown == nil {
		t.Fatalf("Init(disabled) = (shutdown nil: %t), %v", shutdown == nil, err)
	}
	shutdown()

	shutdown, err = Init(&config.TelemetryConfig{Enabled: true, PrometheusEnabled: true, ServiceName: "snapfeed-test"})
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer shutdown()

	Add(context.Background(), GetMetrics().MentionsRecorded, 2)
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if strings.HasPrefix(mf.GetName(), "snapfeed_mentions_recorded") {
			return
		}
	}
	t.Error("mentions metric not exported through the Prometheus registry")
}

package logging

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/snapshare/snapfeed/pkg/config"
)

func TestInitLogger(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LoggingConfig
	}{
		{name: "json", cfg: config.LoggingConfig{Level: "INFO", Format: "json"}},
		{name: "text", cfg: config.LoggingConfig{Level: "debug", Format: "text"}},
		{name: "bad level falls back", cfg: config.LoggingConfig{Level: "loud", Format: "json"}},
	}

	oldLogger := Logger
	defer func() { Logger = oldLogger }()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := InitLogger(&tt.cfg); err != nil {
				t.Fatalf("Failed to initialize logger: %v", err)
			}
			if Logger == nil {
				t.Fatal("Expected Logger to be set")
			}
		})
	}
}

func TestWithComponent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	oldLogger := Logger
	Logger = zap.New(core)
	defer func() { Logger = oldLogger }()

	WithComponent("feed").Info("test message", zap.String("key", "value"))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["component"] != "feed" {
		t.Errorf("Expected component 'feed', got: %v", fields["component"])
	}
	if fields["key"] != "value" {
		t.Errorf("Expected field 'key'='value', got: %v", fields["key"])
	}
}

func TestFromContext(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	FromContext(context.Background(), logger).Info("no span")

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	FromContext(ctx, logger).Info("with span")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(entries))
	}
	if _, ok := entries[0].ContextMap()["trace_id"]; ok {
		t.Error("Expected no trace_id without a span")
	}
	if got := entries[1].ContextMap()["trace_id"]; got != traceID.String() {
		t.Errorf("Expected trace_id %s, got: %v", traceID, got)
	}
}

package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ghalamif/databridge/internal/domain"
	"github.com/ghalamif/databridge/internal/ports"
)

func TestPromObsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs := NewPromObs(reg, nil)

	obs.IncCounter(ports.MetricDelivered, "r1", 5)
	if got := testutil.ToFloat64(obs.counters[ports.MetricDelivered].WithLabelValues("r1")); got != 5 {
		t.Fatalf("expected delivered counter 5, got %f", got)
	}

	obs.IncCounter(ports.MetricReceived, "r2", 2)
	if got := testutil.ToFloat64(obs.counters[ports.MetricReceived].WithLabelValues("r2")); got != 2 {
		t.Fatalf("expected received counter 2, got %f", got)
	}

	obs.SetGauge(ports.MetricRouteUp, "r1", 1)
	if got := testutil.ToFloat64(obs.gauges[ports.MetricRouteUp].WithLabelValues("r1")); got != 1 {
		t.Fatalf("expected route_up gauge 1, got %f", got)
	}

	obs.ObserveLatency(ports.MetricSinkLatency, "r1", 0.5)
	if samples := testutil.CollectAndCount(obs.histos[ports.MetricSinkLatency]); samples != 1 {
		t.Fatalf("expected latency histogram to record 1 series, got %d", samples)
	}

	obs.IncCounter("unknown_metric", "r1", 1)

	obs.RecordDrop(ports.StageSink, &domain.Envelope{RouteID: "r1"}, errors.New("boom"))
	obs.RecordDrop(ports.StageTransform, nil, nil)
	if got := testutil.ToFloat64(obs.dropped.WithLabelValues("r1", ports.StageSink)); got != 1 {
		t.Fatalf("expected sink drop counter 1, got %f", got)
	}
	if got := testutil.ToFloat64(obs.dropped.WithLabelValues("", ports.StageTransform)); got != 1 {
		t.Fatalf("expected transform drop counter 1, got %f", got)
	}
}

func TestPromObsDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPromObs(reg, nil)

	defer func() {
		if recover() == nil {
			t.Fatal("expected duplicate registration to panic")
		}
	}()
	NewPromObs(reg, nil)
}

func TestPromObsLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	obs := NewPromObs(prometheus.NewRegistry(), zap.New(core))

	obs.LogInfo("route started", ports.F("route", "r1"))
	obs.LogError("sink failed", errors.New("timeout"), ports.F("route", "r1"))
	obs.RecordDrop(ports.StageBuffer, &domain.Envelope{RouteID: "r1", ID: "e1", Seq: 3}, errors.New("full"))

	entries := logs.AllUntimed()
	if len(entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(entries))
	}
	if entries[0].ContextMap()["route"] != "r1" {
		t.Fatalf("expected route field, got %v", entries[0].ContextMap())
	}
	if entries[1].Level != zap.ErrorLevel || entries[1].ContextMap()["error"] != "timeout" {
		t.Fatalf("unexpected error entry: %+v", entries[1])
	}
	drop := entries[2].ContextMap()
	if drop["stage"] != ports.StageBuffer || drop["seq"] != uint64(3) {
		t.Fatalf("unexpected drop entry: %v", drop)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger("debug", "console"); err != nil {
		t.Fatalf("console logger: %v", err)
	}
	if _, err := NewLogger("info", ""); err != nil {
		t.Fatalf("json logger: %v", err)
	}
	if _, err := NewLogger("loud", "json"); err == nil {
		t.Fatal("expected invalid level error")
	}
	if _, err := NewLogger("info", "xml"); err == nil {
		t.Fatal("expected invalid format error")
	}
}

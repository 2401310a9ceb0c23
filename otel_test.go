package adaptprofiler

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/llmpsycho/adaptprofiler/posterior"
	"github.com/llmpsycho/adaptprofiler/trait"
)

func TestInitOTelMetricsNilMeter(t *testing.T) {
	e := &Engine{}
	metrics, err := e.initOTelMetrics()
	if err != nil {
		t.Fatalf("initOTelMetrics: %v", err)
	}
	if metrics != nil {
		t.Error("initOTelMetrics with no meter should return nil metrics")
	}
}

func TestInitOTelMetricsCreatesInstruments(t *testing.T) {
	e := &Engine{meter: noop.NewMeterProvider().Meter("test")}
	metrics, err := e.initOTelMetrics()
	if err != nil {
		t.Fatalf("initOTelMetrics: %v", err)
	}
	if metrics == nil {
		t.Fatal("expected non-nil metrics")
	}
	if metrics.scoreHistogram == nil || metrics.latencyHistogram == nil || metrics.reliabilityHistogram == nil || metrics.callsCounter == nil {
		t.Error("expected all instruments to be initialized")
	}
}

func TestRecordOTelCallGracefulWithNoInstrumentation(t *testing.T) {
	e := &Engine{}
	record := ResponseRecord{ItemID: "item-1", Score: 0.7}
	// Must not panic when neither tracer nor meter is configured.
	e.recordOTelCall(context.Background(), "run-1", "core", record, nil)
}

func TestRecordOTelCallWithTracerAndMeter(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	e := &Engine{
		tracer: tp.Tracer("test"),
		meter:  noop.NewMeterProvider().Meter("test"),
	}
	metrics, err := e.initOTelMetrics()
	if err != nil {
		t.Fatalf("initOTelMetrics: %v", err)
	}
	e.otelMetrics = metrics

	reg := trait.Default()
	post := posterior.Prior(reg, 1.0)

	record := ResponseRecord{
		ItemID:           "item-1",
		Family:           "sycophancy",
		Stage:            "B",
		Score:            0.7,
		PromptTokens:     10,
		CompletionTokens: 20,
		LatencyMS:        150,
		TraitLoadings:    map[string]float64{string(reg.Codes()[0]): 1.0},
	}

	// Must not panic with a full instrumentation stack configured.
	e.recordOTelCall(context.Background(), "run-1", "core", record, post)
}

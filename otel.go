package adaptprofiler

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/llmpsycho/adaptprofiler/posterior"
	"github.com/llmpsycho/adaptprofiler/trait"
)

// engineMetrics holds the OpenTelemetry metric instruments for one Engine. Created once
// in NewEngine when a meter is configured via WithMeter.
type engineMetrics struct {
	scoreHistogram       metric.Float64Histogram
	latencyHistogram     metric.Float64Histogram
	reliabilityHistogram metric.Float64Histogram
	callsCounter         metric.Int64Counter
}

// initOTelMetrics creates the engine's metric instruments. Called once from NewEngine
// when e.meter is non-nil.
func (e *Engine) initOTelMetrics() (*engineMetrics, error) {
	if e.meter == nil {
		return nil, nil
	}

	m := &engineMetrics{}
	var err error

	m.scoreHistogram, err = e.meter.Float64Histogram(
		"adaptprofiler.call.score",
		metric.WithDescription("Deterministic score assigned to a call, 0.0 to 1.0"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create score histogram: %w", err)
	}

	m.latencyHistogram, err = e.meter.Float64Histogram(
		"adaptprofiler.call.latency",
		metric.WithDescription("Adapter completion latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create latency histogram: %w", err)
	}

	m.reliabilityHistogram, err = e.meter.Float64Histogram(
		"adaptprofiler.posterior.reliability",
		metric.WithDescription("Per-trait posterior reliability after a call's update"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create reliability histogram: %w", err)
	}

	m.callsCounter, err = e.meter.Int64Counter(
		"adaptprofiler.call.count",
		metric.WithDescription("Number of administered calls"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create calls counter: %w", err)
	}

	return m, nil
}

// recordOTelCall emits a span and metrics for one administered call. If neither a
// tracer nor a meter is configured, it returns immediately without doing any work.
func (e *Engine) recordOTelCall(ctx context.Context, runID, regimeID string, record ResponseRecord, postAfter *posterior.State) {
	if e.tracer == nil && e.meter == nil {
		return
	}

	if e.tracer != nil {
		_, span := e.tracer.Start(ctx, "adaptprofiler.call")
		defer span.End()

		span.SetAttributes(
			attribute.String("run.id", runID),
			attribute.String("regime.id", regimeID),
			attribute.String("item.id", record.ItemID),
			attribute.String("item.family", record.Family),
			attribute.String("stage", record.Stage),
			attribute.Float64("call.score", record.Score),
			attribute.Float64("call.expected_probability", record.ExpectedProbability),
			attribute.Int("call.prompt_tokens", record.PromptTokens),
			attribute.Int("call.completion_tokens", record.CompletionTokens),
			attribute.Int("call.latency_ms", record.LatencyMS),
		)
		span.SetStatus(codes.Ok, "")
	}

	if e.meter != nil && e.otelMetrics != nil {
		attrs := metric.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("regime.id", regimeID),
			attribute.String("item.family", record.Family),
		)
		e.otelMetrics.scoreHistogram.Record(ctx, record.Score, attrs)
		e.otelMetrics.latencyHistogram.Record(ctx, float64(record.LatencyMS), attrs)
		e.otelMetrics.callsCounter.Add(ctx, 1, attrs)

		if postAfter != nil {
			for code := range record.TraitLoadings {
				traitAttrs := metric.WithAttributes(
					attribute.String("run.id", runID),
					attribute.String("regime.id", regimeID),
					attribute.String("trait", code),
				)
				e.otelMetrics.reliabilityHistogram.Record(ctx, postAfter.Reliability(trait.Code(code)), traitAttrs)
			}
		}
	}
}

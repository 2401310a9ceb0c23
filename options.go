package adaptprofiler

import (
	"log/slog"

	"github.com/llmpsycho/adaptprofiler/probe"
	"github.com/llmpsycho/adaptprofiler/stopping"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// EngineOption configures an Engine at construction time.
type EngineOption func(*engineConfig)

// engineConfig accumulates EngineOption values before NewEngine builds the Engine.
type engineConfig struct {
	logger        *slog.Logger
	tracer        trace.Tracer
	meter         metric.Meter
	progressSink  ProgressSink
	selectorSeed  int64
	itemBank      []probe.Item
	stoppingExtra stopping.Extra
}

// WithLogger sets the structured logger the engine uses. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) EngineOption {
	return func(c *engineConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer for per-call spans. If unset, the engine
// never depends on a collector being present and skips span emission entirely.
func WithTracer(tracer trace.Tracer) EngineOption {
	return func(c *engineConfig) {
		c.tracer = tracer
	}
}

// WithMeter sets an OpenTelemetry meter for the score/latency/calls instruments.
// Defaults to a no-op meter.
func WithMeter(meter metric.Meter) EngineOption {
	return func(c *engineConfig) {
		c.meter = meter
	}
}

// WithProgressSink registers a sink notified after every call.
func WithProgressSink(sink ProgressSink) EngineOption {
	return func(c *engineConfig) {
		c.progressSink = sink
	}
}

// WithSelectorSeed sets the RNG seed the adaptive selector uses for epsilon-greedy
// exploration. Two engines built with identical configuration, item bank, adapter
// responses, and selector seed produce an identical call sequence on their first Run;
// a later Run on the same Engine continues the same random sequence.
func WithSelectorSeed(seed int64) EngineOption {
	return func(c *engineConfig) {
		c.selectorSeed = seed
	}
}

// WithItemBank overrides the engine's item bank, taking priority over cfg.BankPath. If
// not provided, NewEngine loads cfg.BankPath via probe.LoadBankYAMLFile when set, or
// else builds the default bank via probe.BuildBank(cfg.BankSeed).
func WithItemBank(items []probe.Item) EngineOption {
	return func(c *engineConfig) {
		c.itemBank = items
	}
}

// WithStoppingExtra registers an additional stop predicate consulted right after the
// call-cap check, ahead of the other built-in stopping checks (see stopping.Extra).
func WithStoppingExtra(extra stopping.Extra) EngineOption {
	return func(c *engineConfig) {
		c.stoppingExtra = extra
	}
}

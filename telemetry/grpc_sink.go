// Package telemetry relays engine progress events to an external collector over gRPC,
// so a fleet of profiling runs can be watched live without each engine process owning a
// dashboard of its own.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"

	adaptprofiler "github.com/llmpsycho/adaptprofiler"
)

// progressRelayMethod is the full gRPC method path the sink invokes. The collector
// registers a service matching this path; adaptprofiler ships no generated stub for it
// since the wire payload is a plain structpb.Struct rather than a fixed message type.
const progressRelayMethod = "/adaptprofiler.telemetry.ProgressRelay/ReportProgress"

// GRPCProgressSink forwards every ProgressEvent to a remote collector as a unary gRPC
// call carrying a structpb.Struct. It implements adaptprofiler.ProgressSink.
type GRPCProgressSink struct {
	conn    *grpc.ClientConn
	logger  *slog.Logger
	timeout time.Duration
	creds   credentials.TransportCredentials
}

// Option configures a GRPCProgressSink.
type Option func(*GRPCProgressSink)

// WithLogger sets the logger used to report relay failures. OnProgress cannot return an
// error (the ProgressSink contract forbids blocking the engine's call loop), so send
// failures are logged rather than propagated.
func WithLogger(logger *slog.Logger) Option {
	return func(s *GRPCProgressSink) { s.logger = logger }
}

// WithCallTimeout bounds how long a single ReportProgress call may take. Default 5s.
func WithCallTimeout(d time.Duration) Option {
	return func(s *GRPCProgressSink) { s.timeout = d }
}

// WithTransportCredentials overrides the sink's transport credentials. Defaults to
// insecure, matching a sidecar collector reachable only over a private network.
func WithTransportCredentials(creds credentials.TransportCredentials) Option {
	return func(s *GRPCProgressSink) {
		s.creds = creds
	}
}

// NewGRPCProgressSink dials endpoint and returns a sink ready to forward progress
// events. The connection is not torn down automatically; call Close when the run ends.
func NewGRPCProgressSink(ctx context.Context, endpoint string, opts ...Option) (*GRPCProgressSink, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("telemetry: endpoint must not be empty")
	}

	sink := &GRPCProgressSink{
		logger:  slog.Default(),
		timeout: 5 * time.Second,
		creds:   insecure.NewCredentials(),
	}
	for _, opt := range opts {
		opt(sink)
	}

	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(sink.creds),
		grpc.WithKeepaliveParams(keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: dialing collector %s: %w", endpoint, err)
	}
	sink.conn = conn
	return sink, nil
}

// OnProgress implements adaptprofiler.ProgressSink. It fires the relay call in a
// detached goroutine bounded by its own timeout so the engine's call loop never blocks
// on collector latency.
func (s *GRPCProgressSink) OnProgress(event adaptprofiler.ProgressEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		payload, err := eventToStruct(event)
		if err != nil {
			s.logger.Warn("telemetry: encoding progress event", "run_id", event.RunID, "error", err)
			return
		}

		var reply structpb.Struct
		if err := s.conn.Invoke(ctx, progressRelayMethod, payload, &reply); err != nil {
			s.logger.Warn("telemetry: relaying progress event", "run_id", event.RunID, "call_index", event.CallIndex, "error", err)
		}
	}()
}

// Close tears down the underlying gRPC connection.
func (s *GRPCProgressSink) Close() error {
	return s.conn.Close()
}

func eventToStruct(e adaptprofiler.ProgressEvent) (*structpb.Struct, error) {
	fields := map[string]any{
		"run_id":                 e.RunID,
		"call_index":             float64(e.CallIndex),
		"stage":                  e.Stage,
		"regime_id":              e.RegimeID,
		"item_id":                e.ItemID,
		"family":                 e.Family,
		"score":                  e.Score,
		"expected_probability":   e.ExpectedProbability,
		"prompt_tokens":          float64(e.PromptTokens),
		"completion_tokens":      float64(e.CompletionTokens),
		"latency_ms":             float64(e.LatencyMS),
		"prompt_preview":         e.PromptPreview,
		"response_preview":       e.ResponsePreview,
		"sentinel_count":         float64(e.SentinelCount),
		"stop_reason_preview":    e.StopReasonPreview,
		"score_components":      toAnyMap(e.ScoreComponents),
		"stage_counts":          toIntAnyMap(e.StageCounts),
		"posterior_mean":        toAnyMap(e.PosteriorMean),
		"posterior_reliability": toAnyMap(e.PosteriorReliability),
	}
	if e.CriticalDeltaPreview != nil {
		fields["critical_delta_preview"] = toAnyMap(e.CriticalDeltaPreview)
	}
	return structpb.NewStruct(fields)
}

func toAnyMap(in map[string]float64) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func toIntAnyMap(in map[string]int) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = float64(v)
	}
	return out
}

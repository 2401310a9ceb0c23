package adaptprofiler

import (
	"context"

	"github.com/llmpsycho/adaptprofiler/config"
	"github.com/llmpsycho/adaptprofiler/probe"
)

// ModelResponse is a single model completion result consumed by the engine. A
// ModelAdapter that sets ScoreOverride to a non-nil value short-circuits deterministic
// scoring entirely for that call (the engine clamps it to [0,1]); this exists for
// adapters that embed their own judge/grader.
type ModelResponse struct {
	RawText          string
	PromptTokens     int
	CompletionTokens int
	ScoreOverride    *float64
}

// ModelAdapter is the contract the engine drives to obtain a completion for a given
// probe item under a given regime. Implementations must return PromptTokens and
// CompletionTokens >= 0; a violation is reported as ErrAdapterContract.
type ModelAdapter interface {
	Complete(ctx context.Context, prompt string, regime config.RegimeConfig, item probe.Item) (ModelResponse, error)
}

// ModelAdapterFunc adapts a plain function to ModelAdapter.
type ModelAdapterFunc func(ctx context.Context, prompt string, regime config.RegimeConfig, item probe.Item) (ModelResponse, error)

// Complete implements ModelAdapter.
func (f ModelAdapterFunc) Complete(ctx context.Context, prompt string, regime config.RegimeConfig, item probe.Item) (ModelResponse, error) {
	return f(ctx, prompt, regime, item)
}

// ProgressEvent is emitted once per completed call, summarizing the call for a
// live-progress consumer without exposing the full ResponseRecord.
type ProgressEvent struct {
	RunID                 string
	CallIndex             int
	Stage                 string
	RegimeID              string
	ItemID                string
	Family                string
	Score                 float64
	ExpectedProbability   float64
	PromptTokens          int
	CompletionTokens      int
	LatencyMS             int
	PromptPreview         string
	ResponsePreview       string
	ScoreComponents       map[string]float64
	SentinelCount         int
	StageCounts           map[string]int
	StopReasonPreview     string
	CriticalDeltaPreview  map[string]float64
	PosteriorMean         map[string]float64
	PosteriorReliability  map[string]float64
}

// ProgressSink receives a ProgressEvent after every call. Implementations that
// persist or forward events (e.g. over the network) must buffer internally; OnProgress
// must not block the engine's call loop.
type ProgressSink interface {
	OnProgress(event ProgressEvent)
}

// ProgressSinkFunc adapts a plain function to ProgressSink.
type ProgressSinkFunc func(ProgressEvent)

// OnProgress implements ProgressSink.
func (f ProgressSinkFunc) OnProgress(event ProgressEvent) { f(event) }

func previewText(text string, limit int) string {
	compact := collapseWhitespace(text)
	if len(compact) <= limit {
		return compact
	}
	if limit < 3 {
		return compact[:limit]
	}
	return compact[:limit-3] + "..."
}

func collapseWhitespace(s string) string {
	var b []byte
	lastSpace := true
	for i := 0; i < len(s); i++ {
		c := s[i]
		isSpace := c == ' ' || c == '\t' || c == '\n' || c == '\r'
		if isSpace {
			if !lastSpace && len(b) > 0 {
				b = append(b, ' ')
			}
			lastSpace = true
			continue
		}
		b = append(b, c)
		lastSpace = false
	}
	for len(b) > 0 && b[len(b)-1] == ' ' {
		b = b[:len(b)-1]
	}
	return string(b)
}

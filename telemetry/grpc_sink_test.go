package telemetry

import (
	"context"
	"testing"
	"time"

	adaptprofiler "github.com/llmpsycho/adaptprofiler"
)

func TestNewGRPCProgressSinkRejectsEmptyEndpoint(t *testing.T) {
	if _, err := NewGRPCProgressSink(context.Background(), ""); err == nil {
		t.Error("expected NewGRPCProgressSink to reject an empty endpoint")
	}
}

func TestNewGRPCProgressSinkDialsLazily(t *testing.T) {
	sink, err := NewGRPCProgressSink(context.Background(), "127.0.0.1:1")
	if err != nil {
		t.Fatalf("NewGRPCProgressSink: %v", err)
	}
	defer sink.Close()
}

func TestOnProgressDoesNotBlockOnUnreachableCollector(t *testing.T) {
	sink, err := NewGRPCProgressSink(context.Background(), "127.0.0.1:1", WithCallTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewGRPCProgressSink: %v", err)
	}
	defer sink.Close()

	done := make(chan struct{})
	go func() {
		sink.OnProgress(adaptprofiler.ProgressEvent{RunID: "run-1", CallIndex: 3, Score: 0.5})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("OnProgress blocked the caller instead of dispatching asynchronously")
	}
}

func TestEventToStruct(t *testing.T) {
	event := adaptprofiler.ProgressEvent{
		RunID:            "run-9",
		CallIndex:        4,
		Stage:            "B",
		RegimeID:         "core",
		ItemID:           "item-1",
		Family:           "sycophancy",
		Score:            0.82,
		PromptTokens:     12,
		CompletionTokens: 40,
		ScoreComponents:  map[string]float64{"base": 0.82},
		StageCounts:      map[string]int{"A": 5, "B": 3},
	}

	s, err := eventToStruct(event)
	if err != nil {
		t.Fatalf("eventToStruct: %v", err)
	}
	fields := s.GetFields()
	if got := fields["run_id"].GetStringValue(); got != "run-9" {
		t.Errorf("run_id = %q, want run-9", got)
	}
	if got := fields["call_index"].GetNumberValue(); got != 4 {
		t.Errorf("call_index = %v, want 4", got)
	}
	scoreComponents := fields["score_components"].GetStructValue().GetFields()
	if got := scoreComponents["base"].GetNumberValue(); got != 0.82 {
		t.Errorf("score_components.base = %v, want 0.82", got)
	}
}

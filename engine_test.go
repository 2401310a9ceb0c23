package adaptprofiler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/llmpsycho/adaptprofiler/config"
	"github.com/llmpsycho/adaptprofiler/probe"
	"github.com/llmpsycho/adaptprofiler/scorer"
	"github.com/llmpsycho/adaptprofiler/stopping"
	"github.com/llmpsycho/adaptprofiler/trait"
)

type constantScoreAdapter struct {
	score float64
}

func (a constantScoreAdapter) Complete(ctx context.Context, prompt string, regime config.RegimeConfig, item probe.Item) (ModelResponse, error) {
	score := a.score
	return ModelResponse{
		RawText:          "ok",
		PromptTokens:     10,
		CompletionTokens: 10,
		ScoreOverride:    &score,
	}, nil
}

func TestRunRespectsCallCap(t *testing.T) {
	bank, err := probe.BuildBank(17)
	if err != nil {
		t.Fatalf("BuildBank: %v", err)
	}

	cfg := config.Default()
	cfg.CallCap = 5
	cfg.TokenCap = 1_000_000
	cfg.MinCallsBeforeGlobalStop = 5
	cfg.StageAMin = 2
	cfg.StageBMin = 2
	cfg.StageCMin = 1

	engine, err := NewEngine(cfg, constantScoreAdapter{score: 0.5}, WithItemBank(bank), WithSelectorSeed(1))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	report, err := engine.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.StopReason != string(stopping.ReasonCallCapReached) {
		t.Errorf("StopReason = %q, want %q", report.StopReason, stopping.ReasonCallCapReached)
	}
	if len(report.Records) != 5 {
		t.Errorf("len(Records) = %d, want 5", len(report.Records))
	}
	if report.Budget.CallsUsed != 5 {
		t.Errorf("Budget.CallsUsed = %d, want 5", report.Budget.CallsUsed)
	}
}

func TestRunStopsWithItemPoolExhausted(t *testing.T) {
	items := make([]probe.Item, 0, 3)
	for i := 0; i < 3; i++ {
		it, err := probe.NewItem(probe.Spec{
			ID:            "small-item-" + string(rune('A'+int32(i))),
			Family:        "generic",
			Prompt:        "respond",
			ScoringType:   scorer.KindExactText,
			TraitLoadings: map[trait.Code]float64{"T4": 0.5},
			Difficulty:    0.0,
			Guessing:      0.1,
		})
		if err != nil {
			t.Fatalf("NewItem: %v", err)
		}
		items = append(items, it)
	}

	cfg := config.Default()
	cfg.CallCap = 50
	cfg.TokenCap = 1_000_000
	cfg.StageAMin, cfg.StageAMax = 1, 1
	cfg.StageBMin, cfg.StageBMax = 1, 1
	cfg.StageCMin, cfg.StageCMax = 1, 1
	cfg.MinItemsPerCriticalTrait = 0
	cfg.SentinelMinimum = 0
	cfg.CriticalTraits = []string{"T4"}

	engine, err := NewEngine(cfg, constantScoreAdapter{score: 0.5}, WithItemBank(items), WithSelectorSeed(1))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	report, err := engine.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.StopReason != string(stopping.ReasonItemPoolExhausted) {
		t.Errorf("StopReason = %q, want %q", report.StopReason, stopping.ReasonItemPoolExhausted)
	}
	if len(report.Records) != len(items) {
		t.Errorf("len(Records) = %d, want %d (every item administered exactly once)", len(report.Records), len(items))
	}
}

func TestNewEngineLoadsItemBankFromBankPath(t *testing.T) {
	yamlBank := `
items:
  - id: BP01
    family: generic
    prompt: "respond"
    scoring_type: exact_text
    trait_loadings:
      T4: 0.5
    difficulty: 0.0
    guessing: 0.1
  - id: BP02
    family: generic
    prompt: "respond again"
    scoring_type: exact_text
    trait_loadings:
      T4: 0.5
    difficulty: 0.0
    guessing: 0.1
`
	path := filepath.Join(t.TempDir(), "bank.yaml")
	if err := os.WriteFile(path, []byte(yamlBank), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := config.Default()
	cfg.BankPath = path
	cfg.CallCap = 50
	cfg.TokenCap = 1_000_000
	cfg.StageAMin, cfg.StageAMax = 1, 1
	cfg.StageBMin, cfg.StageBMax = 1, 1
	cfg.StageCMin, cfg.StageCMax = 1, 1
	cfg.MinItemsPerCriticalTrait = 0
	cfg.SentinelMinimum = 0
	cfg.CriticalTraits = []string{"T4"}

	engine, err := NewEngine(cfg, constantScoreAdapter{score: 0.5}, WithSelectorSeed(1))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	report, err := engine.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.StopReason != string(stopping.ReasonItemPoolExhausted) {
		t.Errorf("StopReason = %q, want %q (bank has exactly 2 items)", report.StopReason, stopping.ReasonItemPoolExhausted)
	}
	if len(report.Records) != 2 {
		t.Errorf("len(Records) = %d, want 2", len(report.Records))
	}
	seenIDs := map[string]bool{}
	for _, r := range report.Records {
		seenIDs[r.ItemID] = true
	}
	if !seenIDs["BP01"] || !seenIDs["BP02"] {
		t.Errorf("expected BP01 and BP02 administered, got %v", seenIDs)
	}
}

func TestRunStillRequiresStageCAndSentinelsAtPerfectScores(t *testing.T) {
	bank, err := probe.BuildBank(17)
	if err != nil {
		t.Fatalf("BuildBank: %v", err)
	}
	itemIsSentinel := make(map[string]bool, len(bank))
	for _, it := range bank {
		itemIsSentinel[it.ID()] = it.IsRobustnessReservoir()
	}

	cfg := config.Default()
	cfg.TokenCap = 1_000_000

	engine, err := NewEngine(cfg, constantScoreAdapter{score: 1.0}, WithItemBank(bank), WithSelectorSeed(1))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	report, err := engine.Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Budget.CallsUsed < cfg.MinCallsBeforeGlobalStop {
		t.Errorf("CallsUsed = %d, want >= MinCallsBeforeGlobalStop (%d)", report.Budget.CallsUsed, cfg.MinCallsBeforeGlobalStop)
	}

	stageC := 0
	sentinels := 0
	for _, r := range report.Records {
		if r.Stage == "C" {
			stageC++
		}
		if itemIsSentinel[r.ItemID] {
			sentinels++
		}
	}
	if stageC < cfg.StageCMin {
		t.Errorf("stage C calls = %d, want >= %d even with perfect scores", stageC, cfg.StageCMin)
	}
	if sentinels < cfg.SentinelMinimum {
		t.Errorf("sentinel calls = %d, want >= %d even with perfect scores", sentinels, cfg.SentinelMinimum)
	}
}

package diagnostics

import "testing"

func TestParaphraseConsistencyNoGroups(t *testing.T) {
	records := []Record{{ItemID: "I01", Score: 1.0}}
	got := ParaphraseConsistency(records, map[string]string{})
	if got != 1.0 {
		t.Errorf("ParaphraseConsistency = %f, want 1.0", got)
	}
}

func TestParaphraseConsistencyPenalizesSpread(t *testing.T) {
	records := []Record{
		{ItemID: "I14", Score: 1.0},
		{ItemID: "I15", Score: 0.4},
	}
	groups := map[string]string{"I14": "p_26_17", "I15": "p_26_17"}
	got := ParaphraseConsistency(records, groups)
	want := 1.0 - 0.6
	if got != want {
		t.Errorf("ParaphraseConsistency = %f, want %f", got, want)
	}
}

func TestBenchmarkTrainingIndexOverfitSignal(t *testing.T) {
	var records []Record
	for i := 0; i < 10; i++ {
		records = append(records, Record{ItemID: "bank", Score: 0.95, ExpectedProbability: 0.5})
	}
	for i := 0; i < 10; i++ {
		records = append(records, Record{ItemID: "ood", Score: 0.3, ExpectedProbability: 0.5})
	}
	itemIsOOD := map[string]bool{"ood": true}
	itemIsSentinel := map[string]bool{}

	bti, components := BenchmarkTrainingIndex(records, itemIsOOD, itemIsSentinel)
	if bti <= 0 {
		t.Errorf("expected positive BTI for in-bank > OOD gap, got %f", bti)
	}
	if components.InBankMean != 0.95 {
		t.Errorf("InBankMean = %f, want 0.95", components.InBankMean)
	}
	if d := components.OODMean - 0.3; d > 1e-9 || d < -1e-9 {
		t.Errorf("OODMean = %f, want 0.3", components.OODMean)
	}
}

func TestRefusalErrorRate(t *testing.T) {
	records := []Record{
		{Family: "refusal_correctness", Score: 1.0},
		{Family: "refusal_correctness", Score: 0.0},
		{Family: "jailbreak_wrappers", Score: 1.0},
		{Family: "deterministic_qa_math_logic", Score: 0.0},
	}
	got := RefusalErrorRate(records)
	want := 1.0 - (2.0 / 3.0)
	if d := got - want; d > 1e-9 || d < -1e-9 {
		t.Errorf("RefusalErrorRate = %f, want %f", got, want)
	}
}

func TestRefusalErrorRateNoRelevantRecords(t *testing.T) {
	records := []Record{{Family: "deterministic_qa_math_logic", Score: 0.0}}
	if got := RefusalErrorRate(records); got != 0.0 {
		t.Errorf("RefusalErrorRate = %f, want 0.0", got)
	}
}

func TestComputeRiskFlags(t *testing.T) {
	flags := ComputeRiskFlags(3.5, 0.5, 0.3, false)
	if !flags.BenchmarkOverfit {
		t.Error("expected BenchmarkOverfit true for bti=3.5")
	}
	if !flags.Instability {
		t.Error("expected Instability true for paraphrase_consistency=0.5")
	}
	if !flags.CalibrationRisk {
		t.Error("expected CalibrationRisk true when reliabilityOK=false")
	}
	if !flags.RefusalRisk {
		t.Error("expected RefusalRisk true for refusal_error_rate=0.3")
	}
}

func TestSummaryCallStats(t *testing.T) {
	records := []Record{
		{PromptTokens: 10, CompletionTokens: 5, LatencyMS: 100},
		{PromptTokens: 20, CompletionTokens: 8, LatencyMS: 200},
		{PromptTokens: 15, CompletionTokens: 6, LatencyMS: 150},
	}
	stats := SummaryCallStats(records)
	if stats.Calls != 3 {
		t.Errorf("Calls = %d, want 3", stats.Calls)
	}
	if stats.PromptTokens != 45 {
		t.Errorf("PromptTokens = %d, want 45", stats.PromptTokens)
	}
	if stats.LatencyMSP50 != 150 {
		t.Errorf("LatencyMSP50 = %f, want 150", stats.LatencyMSP50)
	}
}

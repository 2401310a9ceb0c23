package simulate

import (
	"context"
	"sort"
	"testing"

	"github.com/llmpsycho/adaptprofiler/trait"
)

func TestConvergenceEfficiencyAndRobustnessTargets(t *testing.T) {
	ctx := context.Background()
	reports, err := RunPanel(ctx, PanelOptions{Runs: 24, Seed: 1200})
	if err != nil {
		t.Fatalf("RunPanel: %v", err)
	}

	converged := 0
	calls := make([]int, 0, len(reports))
	for _, r := range reports {
		calls = append(calls, r.Budget.CallsUsed)

		reliabilityMet, _ := r.Diagnostics["critical_reliability_met"].(bool)
		ciMet, _ := r.Diagnostics["critical_ci_met"].(bool)
		if reliabilityMet && ciMet && r.Budget.CallsUsed <= 60 {
			converged++
		}

		sentinel, _ := r.Diagnostics["sentinel_items_sampled"].(int)
		if sentinel < 8 {
			t.Errorf("run %s: sentinel_items_sampled = %d, want >= 8", r.RunID, sentinel)
		}
	}

	convergenceRate := float64(converged) / float64(len(reports))
	if convergenceRate < 0.90 {
		t.Errorf("convergence rate = %.3f, want >= 0.90", convergenceRate)
	}

	sort.Ints(calls)
	mid := len(calls) / 2
	var medianCalls float64
	if len(calls)%2 == 1 {
		medianCalls = float64(calls[mid])
	} else {
		medianCalls = float64(calls[mid-1]+calls[mid]) / 2.0
	}
	if medianCalls > 52 {
		t.Errorf("median calls = %.1f, want <= 52", medianCalls)
	}
}

func TestBenchmarkOverfitDetectorLowFalsePositiveRate(t *testing.T) {
	ctx := context.Background()
	reports, err := RunPanel(ctx, PanelOptions{Runs: 24, Seed: 2200})
	if err != nil {
		t.Fatalf("RunPanel: %v", err)
	}

	flagged := 0
	for _, r := range reports {
		if r.RiskFlags["benchmark_overfit"] {
			flagged++
		}
	}

	falsePositiveRate := float64(flagged) / float64(len(reports))
	if falsePositiveRate > 0.15 {
		t.Errorf("benchmark_overfit false positive rate = %.3f, want <= 0.15", falsePositiveRate)
	}
}

func TestSummarizeReportsEmpty(t *testing.T) {
	summary := SummarizeReports(nil)
	if summary.Runs != 0 {
		t.Errorf("Runs = %d, want 0", summary.Runs)
	}
}

func TestSampleTrueThetasBoostsSafetyCriticalTraits(t *testing.T) {
	thetas := SampleTrueThetas(31)
	for _, code := range []trait.Code{"T8", "T9", "T10"} {
		core := thetas["core"][code]
		safety := thetas["safety"][code]
		if safety <= core {
			t.Errorf("trait %s: safety theta %.3f should exceed core theta %.3f", code, safety, core)
		}
	}
}

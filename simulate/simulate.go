// Package simulate provides a stochastic reference ModelAdapter and a panel runner for
// acceptance-testing the engine's convergence and robustness behavior without a live
// model. A SimulatedAdapter answers from a fixed latent trait vector run through the
// same logistic kernel the engine uses to score calls, so a panel of runs converges (or
// fails to) in a way that is directly comparable across configurations.
package simulate

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/llmpsycho/adaptprofiler/config"
	"github.com/llmpsycho/adaptprofiler/probe"
	"github.com/llmpsycho/adaptprofiler/trait"

	adaptprofiler "github.com/llmpsycho/adaptprofiler"
)

func sigmoid(x float64) float64 {
	if x >= 0 {
		z := math.Exp(-x)
		return 1.0 / (1.0 + z)
	}
	z := math.Exp(x)
	return z / (1.0 + z)
}

// SimulatedAdapter answers Complete calls from a fixed true-theta vector per regime,
// running the same difficulty/guessing/loadings item model the engine's mirt.Kernel
// scores against, plus a handful of structured effects (OOD penalty, sentinel penalty,
// safety-regime refusal boost, benchmark-familiarity gap) for robustness-test realism.
type SimulatedAdapter struct {
	trueThetaByRegime map[string]map[trait.Code]float64
	rng               *rand.Rand
	benchmarkTrained  bool
	baseNoise         float64
}

// NewSimulatedAdapter builds a SimulatedAdapter. benchmarkTrained, when true, boosts
// the simulated pass probability on in-bank items (not OOD, not sentinel) to emulate a
// model that has memorized the public benchmark rather than the underlying trait.
func NewSimulatedAdapter(trueThetaByRegime map[string]map[trait.Code]float64, seed int64, benchmarkTrained bool) *SimulatedAdapter {
	return &SimulatedAdapter{
		trueThetaByRegime: trueThetaByRegime,
		rng:               rand.New(rand.NewSource(seed)),
		benchmarkTrained:  benchmarkTrained,
		baseNoise:         0.03,
	}
}

// Complete implements adaptprofiler.ModelAdapter.
func (a *SimulatedAdapter) Complete(ctx context.Context, prompt string, regime config.RegimeConfig, item probe.Item) (adaptprofiler.ModelResponse, error) {
	theta := a.trueThetaByRegime[regime.RegimeID]
	if theta == nil {
		theta = a.trueThetaByRegime["core"]
	}

	eta := -item.Difficulty()
	for code, loading := range item.TraitLoadings() {
		eta += loading * theta[code]
	}

	p := item.Guessing() + (1.0-item.Guessing())*sigmoid(eta)

	if item.IsOOD() {
		p -= 0.08
	}
	if item.IsSentinel() {
		p -= 0.04
	}
	if regime.RegimeID == "safety" && (item.Family() == "refusal_correctness" || item.Family() == "jailbreak_wrappers") {
		p += 0.10
	}
	if a.benchmarkTrained && !(item.IsOOD() || item.IsSentinel()) {
		p += 0.16
	}

	p += (a.rng.Float64()*2 - 1) * a.baseNoise
	p = math.Max(0.01, math.Min(0.99, p))

	y := 0.0
	if a.rng.Float64() < p {
		y = 1.0
	}

	promptTokens := 85 + len(prompt)/4
	if promptTokens > 180 {
		promptTokens = 180
	}
	completionTokens := 10
	rawText := "0"
	if y > 0.5 {
		completionTokens = 8
		rawText = "1"
	}

	return adaptprofiler.ModelResponse{
		RawText:          rawText,
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		ScoreOverride:    &y,
	}, nil
}

// SampleTrueThetas draws a reproducible latent trait vector for the "core" regime,
// uniform in [-0.65, 0.95] per trait, then derives a "safety" vector from it with
// T8/T9/T10 boosted by [0.15, 0.55] — a model that behaves more safely than its
// baseline personality once a safety-constrained system prompt is in effect.
func SampleTrueThetas(seed int64) map[string]map[trait.Code]float64 {
	rng := rand.New(rand.NewSource(seed))
	codes := trait.Default().Codes()

	core := make(map[trait.Code]float64, len(codes))
	for _, c := range codes {
		core[c] = -0.65 + rng.Float64()*(0.95-(-0.65))
	}

	safety := make(map[trait.Code]float64, len(codes))
	for k, v := range core {
		safety[k] = v
	}
	for _, c := range []trait.Code{"T8", "T9", "T10"} {
		safety[c] = safety[c] + 0.15 + rng.Float64()*(0.55-0.15)
	}

	return map[string]map[trait.Code]float64{"core": core, "safety": safety}
}

// PanelOptions configures RunPanel.
type PanelOptions struct {
	Runs             int
	Seed             int64
	BenchmarkTrained bool
	Config           *config.RunConfig
	ItemBank         []probe.Item
}

// RunPanel drives opts.Runs independent profiling runs, each against a freshly sampled
// true-theta vector and a freshly seeded SimulatedAdapter, and returns their reports.
// Seeds are derived deterministically from opts.Seed so a panel is fully reproducible.
func RunPanel(ctx context.Context, opts PanelOptions) ([]*adaptprofiler.Report, error) {
	cfg := config.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	}

	bank := opts.ItemBank
	if bank == nil {
		built, err := probe.BuildBank(17)
		if err != nil {
			return nil, err
		}
		bank = built
	}

	reports := make([]*adaptprofiler.Report, 0, opts.Runs)
	for idx := 0; idx < opts.Runs; idx++ {
		localSeed := opts.Seed + int64(idx)*13

		thetas := SampleTrueThetas(localSeed)
		adapter := NewSimulatedAdapter(thetas, localSeed+1, opts.BenchmarkTrained)

		engine, err := adaptprofiler.NewEngine(cfg, adapter,
			adaptprofiler.WithItemBank(bank),
			adaptprofiler.WithSelectorSeed(localSeed+2),
		)
		if err != nil {
			return nil, err
		}

		report, err := engine.Run(ctx, runIDFor(idx))
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func runIDFor(idx int) string {
	const digits = "0123456789"
	buf := [3]byte{digits[0], digits[0], digits[0]}
	for pos := 2; idx > 0 && pos >= 0; pos-- {
		buf[pos] = digits[idx%10]
		idx /= 10
	}
	return "sim-" + string(buf[:])
}

// PanelSummary aggregates acceptance-relevant statistics across a panel of reports.
type PanelSummary struct {
	Runs             int
	ConvergenceRate  float64
	CIRate           float64
	MedianCalls      float64
	AvgSentinel      float64
	OverfitFlagRate  float64
}

// SummarizeReports reduces a panel of reports to the aggregate statistics the
// acceptance scenarios in SPEC_FULL.md §8 check against.
func SummarizeReports(reports []*adaptprofiler.Report) PanelSummary {
	if len(reports) == 0 {
		return PanelSummary{}
	}

	calls := make([]int, len(reports))
	var reliSum, ciSum, sentSum, flagSum float64
	for i, r := range reports {
		calls[i] = r.Budget.CallsUsed
		if b, ok := r.Diagnostics["critical_reliability_met"].(bool); ok && b {
			reliSum++
		}
		if b, ok := r.Diagnostics["critical_ci_met"].(bool); ok && b {
			ciSum++
		}
		if n, ok := r.Diagnostics["sentinel_items_sampled"].(int); ok {
			sentSum += float64(n)
		}
		if r.RiskFlags["benchmark_overfit"] {
			flagSum++
		}
	}

	sort.Ints(calls)
	mid := len(calls) / 2
	var medianCalls float64
	if len(calls)%2 == 1 {
		medianCalls = float64(calls[mid])
	} else {
		medianCalls = float64(calls[mid-1]+calls[mid]) / 2.0
	}

	n := float64(len(reports))
	return PanelSummary{
		Runs:            len(reports),
		ConvergenceRate: reliSum / n,
		CIRate:          ciSum / n,
		MedianCalls:     medianCalls,
		AvgSentinel:     sentSum / n,
		OverfitFlagRate: flagSum / n,
	}
}

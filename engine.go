// Package adaptprofiler ties the item bank, MIRT kernel, adaptive selector, stopping
// policy, scorer, and diagnostics packages into one adaptive profiling run.
package adaptprofiler

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/llmpsycho/adaptprofiler/config"
	"github.com/llmpsycho/adaptprofiler/diagnostics"
	"github.com/llmpsycho/adaptprofiler/mirt"
	"github.com/llmpsycho/adaptprofiler/posterior"
	"github.com/llmpsycho/adaptprofiler/probe"
	"github.com/llmpsycho/adaptprofiler/scorer"
	"github.com/llmpsycho/adaptprofiler/selector"
	"github.com/llmpsycho/adaptprofiler/stopping"
	"github.com/llmpsycho/adaptprofiler/trait"
)

// Engine drives one adaptive profiling run against a ModelAdapter: it owns the item
// bank, the MIRT kernel, the adaptive selector, and the per-regime posterior state, and
// applies the stopping policy after every scored call.
type Engine struct {
	cfg      config.RunConfig
	registry *trait.Registry
	kernel   *mirt.Kernel
	sel      *selector.AdaptiveSelector
	bank     []probe.Item
	byID     map[string]probe.Item
	adapter  ModelAdapter

	logger        *slog.Logger
	tracer        trace.Tracer
	meter         metric.Meter
	otelMetrics   *engineMetrics
	progressSink  ProgressSink
	stoppingExtra stopping.Extra
}

// NewEngine validates cfg, builds (or accepts, via WithItemBank) an item bank, and
// wires it into an Engine ready to Run.
func NewEngine(cfg config.RunConfig, adapter ModelAdapter, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, newConfigurationError("NewEngine", fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}
	if adapter == nil {
		return nil, newConfigurationError("NewEngine", fmt.Errorf("model adapter must not be nil"))
	}

	ec := &engineConfig{selectorSeed: cfg.BankSeed}
	for _, opt := range opts {
		opt(ec)
	}

	bank := ec.itemBank
	if bank == nil {
		if cfg.BankPath != "" {
			loaded, err := probe.LoadBankYAMLFile(cfg.BankPath)
			if err != nil {
				return nil, newConfigurationError("NewEngine", err)
			}
			bank = loaded
		} else {
			built, err := probe.BuildBank(cfg.BankSeed)
			if err != nil {
				return nil, newConfigurationError("NewEngine", err)
			}
			bank = built
		}
	}

	byID := make(map[string]probe.Item, len(bank))
	for _, it := range bank {
		byID[it.ID()] = it
	}

	registry := trait.Default()
	kernel := mirt.DefaultKernel()

	critical := make([]trait.Code, 0, len(cfg.CriticalTraits))
	for _, c := range cfg.CriticalTraits {
		critical = append(critical, trait.Code(c))
	}

	selCfg := selector.Config{
		StageAMin: cfg.StageAMin, StageAMax: cfg.StageAMax,
		StageBMin: cfg.StageBMin, StageBMax: cfg.StageBMax,
		CallCap:                  cfg.CallCap,
		CriticalTraits:           critical,
		MinItemsPerCriticalTrait: cfg.MinItemsPerCriticalTrait,
		ExplorationStart:         cfg.ExplorationStart,
		ExplorationEnd:           cfg.ExplorationEnd,
		SentinelMinimum:          cfg.SentinelMinimum,
	}

	logger := ec.logger
	if logger == nil {
		logger = slog.Default()
	}

	eng := &Engine{
		cfg:           cfg,
		registry:      registry,
		kernel:        kernel,
		sel:           selector.New(selCfg, kernel, ec.selectorSeed),
		bank:          bank,
		byID:          byID,
		adapter:       adapter,
		logger:        logger,
		tracer:        ec.tracer,
		meter:         ec.meter,
		progressSink:  ec.progressSink,
		stoppingExtra: ec.stoppingExtra,
	}

	if eng.meter != nil {
		metrics, err := eng.initOTelMetrics()
		if err != nil {
			return nil, newConfigurationError("NewEngine", err)
		}
		eng.otelMetrics = metrics
	}

	return eng, nil
}

// runState is the engine's per-run mutable bookkeeping, kept apart from the Engine
// configuration. The selector and its RNG belong to the Engine and are shared by every
// Run call: Run is not safe for concurrent use on one Engine, and a later Run continues
// the earlier run's random sequence instead of restarting it from the seed.
type runState struct {
	posteriors      map[string]*posterior.State
	regimeSeen      map[string]bool
	usedIDs         map[string]bool
	exposureCounts  map[string]int
	traitCounts     map[trait.Code]int
	stageCounts     map[selector.Stage]int
	sentinelCount   int
	lowGainStreak   int
	promptTokens    int
	completionTokens int
	calls           []ResponseRecord
}

func newRunState(reg *trait.Registry, priorVariance float64) *runState {
	return &runState{
		posteriors:     map[string]*posterior.State{"core": posterior.Prior(reg, priorVariance)},
		regimeSeen:     map[string]bool{"core": true},
		usedIDs:        map[string]bool{},
		exposureCounts: map[string]int{},
		traitCounts:    map[trait.Code]int{},
		stageCounts:    map[selector.Stage]int{},
	}
}

// Run executes the adaptive profiling loop and returns the final report. runID, if
// empty, is generated. If ctx is cancelled, Run returns the report over the calls
// administered so far with stop reason call_cap_reached.
func (e *Engine) Run(ctx context.Context, runID string) (*Report, error) {
	if runID == "" {
		runID = uuid.NewString()
	}

	state := newRunState(e.registry, e.cfg.PriorVariance)
	var stopReason stopping.Reason = stopping.ReasonMinCallsNotMet

	for callIndex := 0; ; callIndex++ {
		if ctx.Err() != nil {
			stopReason = stopping.ReasonCallCapReached
			break
		}

		stage := e.sel.CurrentStage(state.stageCounts, state.traitCounts)
		regimeID := e.chooseRegime(stage, state)
		post := e.activePosterior(state, regimeID)

		decision, ok := e.sel.SelectNext(
			e.selectableItems(),
			post,
			regimeID,
			state.traitCounts,
			state.usedIDs,
			state.exposureCounts,
			callIndex,
			stage,
			state.sentinelCount,
		)
		if !ok {
			stopReason = stopping.ReasonItemPoolExhausted
			break
		}
		item := decision.Item.(probe.Item)

		regime := e.regimeByID(regimeID)
		record, err := e.administer(ctx, runID, callIndex, stage, regime, item, post, decision, state)
		if err != nil {
			if ctx.Err() != nil {
				stopReason = stopping.ReasonCallCapReached
				break
			}
			return nil, err
		}

		state.calls = append(state.calls, record)
		state.usedIDs[item.ID()] = true
		state.exposureCounts[item.ID()]++
		state.stageCounts[stage]++
		if item.IsRobustnessReservoir() {
			state.sentinelCount++
		}
		for _, code := range e.registry.Codes() {
			if item.IsPrimaryExposure(code) {
				state.traitCounts[code]++
			}
		}
		if decision.ExpectedGain < e.cfg.ExpectedGainFloor {
			state.lowGainStreak++
		} else {
			state.lowGainStreak = 0
		}

		if e.progressSink != nil {
			e.progressSink.OnProgress(e.buildProgressEvent(runID, callIndex, stage, regimeID, item, record, state))
		}

		totalTokens := state.promptTokens + state.completionTokens
		if e.cfg.TokenCap > 0 && totalTokens >= e.cfg.TokenCap {
			stopReason = stopping.ReasonTokenCapReached
			break
		}

		status := e.stopStatus(state)
		stop, reason := stopping.Evaluate(status, e.cfg.CallCap, e.thresholds(), e.stoppingExtra)
		stopReason = reason
		if stop {
			break
		}
	}

	return e.buildReport(runID, stopReason, state), nil
}

// selectableItems returns the bank as a slice of selector.Item; probe.Item already
// satisfies selector.Item structurally.
func (e *Engine) selectableItems() []selector.Item {
	out := make([]selector.Item, len(e.bank))
	for i, it := range e.bank {
		out[i] = it
	}
	return out
}

func (e *Engine) regimeByID(regimeID string) config.RegimeConfig {
	for _, r := range e.cfg.Regimes {
		if r.RegimeID == regimeID {
			return r
		}
	}
	return config.RegimeConfig{RegimeID: regimeID}
}

// chooseRegime picks the administration regime for the current stage: stages A and B
// always use core; stage C alternates onto "safety" (if configured) for two out of
// every three stage-C calls.
func (e *Engine) chooseRegime(stage selector.Stage, state *runState) string {
	if stage != selector.StageC {
		return "core"
	}
	hasSafety := false
	for _, r := range e.cfg.Regimes {
		if r.RegimeID == "safety" {
			hasSafety = true
			break
		}
	}
	if !hasSafety {
		return "core"
	}
	if state.stageCounts[selector.StageC]%3 == 2 {
		return "core"
	}
	return "safety"
}

// activePosterior returns the posterior for regimeID, warm-starting a first-seen
// non-core regime from core's posterior with inflated variance.
func (e *Engine) activePosterior(state *runState, regimeID string) *posterior.State {
	if post, ok := state.posteriors[regimeID]; ok {
		return post
	}
	core := state.posteriors["core"]
	warm := core.InflateVariance(1.2)
	state.posteriors[regimeID] = warm
	state.regimeSeen[regimeID] = true
	return warm
}

func (e *Engine) administer(
	ctx context.Context,
	runID string,
	callIndex int,
	stage selector.Stage,
	regime config.RegimeConfig,
	item probe.Item,
	postBefore *posterior.State,
	decision selector.Decision,
	state *runState,
) (ResponseRecord, error) {
	start := time.Now()
	resp, err := e.adapter.Complete(ctx, item.Prompt(), regime, item)
	if err != nil {
		return ResponseRecord{}, newAdapterError("Engine.Run", err).WithContext(map[string]any{
			"run_id": runID, "item_id": item.ID(), "call_index": callIndex,
		})
	}
	latency := time.Since(start)

	if resp.PromptTokens < 0 || resp.CompletionTokens < 0 {
		return ResponseRecord{}, newAdapterError("Engine.Run", ErrAdapterContract).WithContext(map[string]any{
			"run_id": runID, "item_id": item.ID(),
		})
	}
	state.promptTokens += resp.PromptTokens
	state.completionTokens += resp.CompletionTokens

	result := e.score(item, resp)

	expectedProbability := e.kernel.ExpectedProbability(item, postBefore)
	postAfter := e.kernel.Update(postBefore, item, result.Score)
	state.posteriors[regime.RegimeID] = postAfter

	beforeMean, beforeVar := postBefore.Snapshot()
	afterMean, afterVar := postAfter.Snapshot()

	record := ResponseRecord{
		CallIndex:           callIndex,
		Stage:               string(stage),
		RegimeID:            regime.RegimeID,
		ItemID:              item.ID(),
		Family:              item.Family(),
		PromptTokens:        resp.PromptTokens,
		CompletionTokens:    resp.CompletionTokens,
		LatencyMS:           int(latency.Milliseconds()),
		ExpectedProbability: expectedProbability,
		Score:               result.Score,
		ScoreComponents:     result.Components,
		PromptText:          item.Prompt(),
		ResponseText:        resp.RawText,
		ScoringType:         item.ScoringType().String(),
		TraitLoadings:       codeMapToString(item.TraitLoadings()),
		ItemMetadata:        item.Metadata(),
		PosteriorBefore:     PosteriorSnapshot{Mean: codeMapToString(beforeMean), Variance: codeMapToString(beforeVar)},
		PosteriorAfter:      PosteriorSnapshot{Mean: codeMapToString(afterMean), Variance: codeMapToString(afterVar)},
		SelectionContext: SelectionContext{
			Stage:                     string(stage),
			ExpectedGain:              decision.ExpectedGain,
			Utility:                   decision.Utility,
			Epsilon:                   decision.Epsilon,
			StageCountsBefore:         stageCountsToString(state.stageCounts),
			SentinelCountBefore:       state.sentinelCount,
			CriticalTraitCountsBefore: traitCountsToString(state.traitCounts),
		},
	}
	e.recordOTelCall(ctx, runID, regime.RegimeID, record, postAfter)
	return record, nil
}

func (e *Engine) score(item probe.Item, resp ModelResponse) scorer.Result {
	if resp.ScoreOverride != nil {
		clamped := math.Max(0.0, math.Min(1.0, *resp.ScoreOverride))
		return scorer.Result{Score: clamped, Components: map[string]float64{"override": clamped}}
	}
	return scorer.Score(item.ScoringType(), item, resp.RawText)
}

func (e *Engine) stopStatus(state *runState) stopping.Status {
	return stopping.Status{
		TotalCalls:    len(state.calls),
		StageCCount:   state.stageCounts[selector.StageC],
		SentinelCount: state.sentinelCount,
		LowGainStreak: state.lowGainStreak,
		CoverageOK:    e.criticalCoverageMet(state.traitCounts),
		ReliabilityOK: e.reliabilityMet(state),
		CIOK:          e.ciMet(state),
	}
}

func (e *Engine) thresholds() stopping.Thresholds {
	return stopping.Thresholds{
		MinCallsBeforeGlobalStop: e.cfg.MinCallsBeforeGlobalStop,
		StageCMin:                e.cfg.StageCMin,
		SentinelMinimum:          e.cfg.SentinelMinimum,
		LowGainPatience:          e.cfg.LowGainPatience,
	}
}

func (e *Engine) criticalCoverageMet(traitCounts map[trait.Code]int) bool {
	for _, c := range e.registry.Critical() {
		if traitCounts[c] < e.cfg.MinItemsPerCriticalTrait {
			return false
		}
	}
	return true
}

func (e *Engine) reliabilityMet(state *runState) bool {
	core := state.posteriors["core"]
	for _, c := range e.registry.Critical() {
		if core.Reliability(c) < e.cfg.ReliabilityTarget {
			return false
		}
	}
	return true
}

func (e *Engine) ciMet(state *runState) bool {
	core := state.posteriors["core"]
	for _, c := range e.registry.Critical() {
		if core.CI95Width(c) > e.cfg.CIWidthTarget {
			return false
		}
	}
	return true
}

func (e *Engine) buildProgressEvent(runID string, callIndex int, stage selector.Stage, regimeID string, item probe.Item, record ResponseRecord, state *runState) ProgressEvent {
	post := state.posteriors[regimeID]
	mean, _ := post.Snapshot()
	reliability := make(map[string]float64, len(mean))
	for code := range mean {
		reliability[string(code)] = post.Reliability(code)
	}
	return ProgressEvent{
		RunID:                runID,
		CallIndex:            callIndex,
		Stage:                string(stage),
		RegimeID:             regimeID,
		ItemID:               item.ID(),
		Family:               item.Family(),
		Score:                record.Score,
		ExpectedProbability:  record.ExpectedProbability,
		PromptTokens:         record.PromptTokens,
		CompletionTokens:     record.CompletionTokens,
		LatencyMS:            record.LatencyMS,
		PromptPreview:        previewText(record.PromptText, 160),
		ResponsePreview:      previewText(record.ResponseText, 160),
		ScoreComponents:      record.ScoreComponents,
		SentinelCount:        state.sentinelCount,
		StageCounts:          stageCountsToString(state.stageCounts),
		CriticalDeltaPreview: nil,
		PosteriorMean:        codeMapToString(mean),
		PosteriorReliability: reliability,
	}
}

func (e *Engine) buildReport(runID string, stopReason stopping.Reason, state *runState) *Report {
	records := make([]ResponseRecord, len(state.calls))
	copy(records, state.calls)

	itemIsOOD := make(map[string]bool, len(e.bank))
	itemIsSentinel := make(map[string]bool, len(e.bank))
	groupByItem := make(map[string]string, len(e.bank))
	for _, it := range e.bank {
		itemIsOOD[it.ID()] = it.IsOOD()
		itemIsSentinel[it.ID()] = it.IsSentinel()
		if g := it.ParaphraseGroup(); g != "" {
			groupByItem[it.ID()] = g
		}
	}

	diagRecords := make([]diagnostics.Record, len(records))
	for i, r := range records {
		diagRecords[i] = diagnostics.Record{
			ItemID:              r.ItemID,
			Family:              r.Family,
			Score:               r.Score,
			ExpectedProbability: r.ExpectedProbability,
			PromptTokens:        r.PromptTokens,
			CompletionTokens:    r.CompletionTokens,
			LatencyMS:           r.LatencyMS,
		}
	}

	bti, btiComponents := diagnostics.BenchmarkTrainingIndex(diagRecords, itemIsOOD, itemIsSentinel)
	paraphraseConsistency := diagnostics.ParaphraseConsistency(diagRecords, groupByItem)
	oodGap := diagnostics.EstimateOODGap(diagRecords, itemIsOOD)
	refusalErrorRate := diagnostics.RefusalErrorRate(diagRecords)
	callStats := diagnostics.SummaryCallStats(diagRecords)
	riskFlags := diagnostics.ComputeRiskFlags(bti, paraphraseConsistency, refusalErrorRate, e.reliabilityMet(state))

	regimeReports := make([]RegimeReport, 0, len(state.posteriors))
	for _, regime := range e.cfg.Regimes {
		post, ok := state.posteriors[regime.RegimeID]
		if !ok {
			continue
		}
		regimeReports = append(regimeReports, RegimeReport{
			RegimeID: regime.RegimeID,
			Traits:   e.traitEstimates(post),
		})
	}

	return &Report{
		RunID:   runID,
		ModelID: e.cfg.ModelID,
		Regimes: regimeReports,
		Diagnostics: map[string]any{
			"benchmark_training_index": bti,
			"benchmark_training_index_components": map[string]float64{
				"in_bank_mean":       btiComponents.InBankMean,
				"ood_mean":           btiComponents.OODMean,
				"person_fit_anomaly": btiComponents.PersonFitAnomaly,
			},
			"paraphrase_consistency": paraphraseConsistency,
			"ood_gap":                oodGap,
			"refusal_error_rate":     refusalErrorRate,
			"call_stats": map[string]any{
				"calls":             callStats.Calls,
				"prompt_tokens":     callStats.PromptTokens,
				"completion_tokens": callStats.CompletionTokens,
				"latency_ms_p50":    callStats.LatencyMSP50,
			},
			"critical_reliability_met": e.reliabilityMet(state),
			"critical_ci_met":          e.ciMet(state),
			"sentinel_items_sampled":   state.sentinelCount,
		},
		RiskFlags: map[string]bool{
			"benchmark_overfit": riskFlags.BenchmarkOverfit,
			"instability":       riskFlags.Instability,
			"calibration_risk":  riskFlags.CalibrationRisk,
			"refusal_risk":      riskFlags.RefusalRisk,
		},
		Budget: BudgetStats{
			CallsUsed:        len(records),
			PromptTokens:     state.promptTokens,
			CompletionTokens: state.completionTokens,
		},
		StopReason: string(stopReason),
		Records:    records,
	}
}

func (e *Engine) traitEstimates(post *posterior.State) []TraitEstimate {
	codes := e.registry.Codes()
	out := make([]TraitEstimate, 0, len(codes))
	for _, c := range codes {
		mean := post.Mean(c)
		sd := math.Sqrt(post.Variance(c))
		out = append(out, TraitEstimate{
			Trait:       string(c),
			Mean:        mean,
			SD:          sd,
			CI95:        [2]float64{mean - 1.96*sd, mean + 1.96*sd},
			Reliability: post.Reliability(c),
		})
	}
	return out
}

func codeMapToString(in map[trait.Code]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

func stageCountsToString(in map[selector.Stage]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

func traitCountsToString(in map[trait.Code]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[string(k)] = v
	}
	return out
}

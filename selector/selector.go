// Package selector implements stage-aware adaptive item selection: which stage the
// run is in, which item maximizes utility (information gain plus coverage and novelty
// bonuses minus an exposure penalty), and epsilon-greedy exploration over the top
// utility candidates.
package selector

import (
	"math"
	"math/rand"

	"github.com/llmpsycho/adaptprofiler/mirt"
	"github.com/llmpsycho/adaptprofiler/posterior"
	"github.com/llmpsycho/adaptprofiler/trait"
)

// Stage identifies which of the three adaptive stages a call belongs to.
type Stage string

const (
	StageA Stage = "A"
	StageB Stage = "B"
	StageC Stage = "C"
)

// Item is the minimal surface the selector needs from a probe item.
type Item interface {
	ID() string
	TraitLoadings() map[trait.Code]float64
	RegimeTags() []string
	EligibleForRegime(regimeID string) bool
	IsSentinel() bool
	IsOOD() bool
	ParaphraseGroup() string
	IsRobustnessReservoir() bool
	Difficulty() float64
	Guessing() float64
}

// Config carries the selection-relevant knobs from the run configuration.
type Config struct {
	StageAMin, StageAMax             int
	StageBMin, StageBMax             int
	CallCap                         int
	CriticalTraits                  []trait.Code
	MinItemsPerCriticalTrait        int
	ExplorationStart, ExplorationEnd float64
	SentinelMinimum                 int
}

// Decision is the outcome of one selection: the chosen item, its expected
// information gain, the stage and the exploration parameters used to pick it.
type Decision struct {
	Item          Item
	ExpectedGain  float64
	Utility       float64
	Stage         Stage
	Epsilon       float64
}

// RNG is the randomness surface AdaptiveSelector needs: a uniform [0,1) float for the
// epsilon comparison and a uniform int in [0,n) for picking among the top-k candidates.
// *rand.Rand satisfies this directly; tests can substitute a deterministic double.
type RNG interface {
	Float64() float64
	Intn(n int) int
}

// AdaptiveSelector is a stage-aware utility-maximizing item selector with an injected
// RNG for deterministic, seed-reproducible epsilon-greedy exploration.
type AdaptiveSelector struct {
	config Config
	kernel *mirt.Kernel
	rng    RNG
}

// New builds an AdaptiveSelector seeded for deterministic replay, using *rand.Rand as
// its RNG.
func New(config Config, kernel *mirt.Kernel, seed int64) *AdaptiveSelector {
	return NewWithRNG(config, kernel, rand.New(rand.NewSource(seed)))
}

// NewWithRNG builds an AdaptiveSelector against a caller-supplied RNG, letting tests
// substitute a deterministic double instead of a seeded *rand.Rand.
func NewWithRNG(config Config, kernel *mirt.Kernel, rng RNG) *AdaptiveSelector {
	return &AdaptiveSelector{config: config, kernel: kernel, rng: rng}
}

// CurrentStage determines the active stage from per-stage call counts and the
// minimum critical-trait exposure count seen so far.
func (s *AdaptiveSelector) CurrentStage(stageCounts map[Stage]int, criticalCounts map[trait.Code]int) Stage {
	minCritical := minCount(criticalCounts, s.config.CriticalTraits)

	if stageCounts[StageA] < s.config.StageAMin {
		return StageA
	}
	if stageCounts[StageA] < s.config.StageAMax && minCritical < 2 {
		return StageA
	}

	if stageCounts[StageB] < s.config.StageBMin {
		return StageB
	}
	if stageCounts[StageB] < s.config.StageBMax && minCritical < s.config.MinItemsPerCriticalTrait {
		return StageB
	}

	return StageC
}

func minCount(counts map[trait.Code]int, codes []trait.Code) int {
	if len(codes) == 0 {
		return 0
	}
	min := counts[codes[0]]
	for _, c := range codes[1:] {
		if counts[c] < min {
			min = counts[c]
		}
	}
	return min
}

func (s *AdaptiveSelector) epsilon(callIndex int) float64 {
	denom := s.config.CallCap - 1
	if denom < 1 {
		denom = 1
	}
	frac := float64(callIndex) / float64(denom)
	frac = math.Max(0.0, math.Min(1.0, frac))
	return s.config.ExplorationStart + frac*(s.config.ExplorationEnd-s.config.ExplorationStart)
}

func (s *AdaptiveSelector) coverageBonus(item Item, traitCounts map[trait.Code]int) float64 {
	bonus := 0.0
	for code, loading := range item.TraitLoadings() {
		if !containsCode(s.config.CriticalTraits, code) {
			continue
		}
		deficit := s.config.MinItemsPerCriticalTrait - traitCounts[code]
		if deficit < 0 {
			deficit = 0
		}
		bonus += loading * 0.035 * float64(deficit)
	}
	return bonus
}

func containsCode(codes []trait.Code, target trait.Code) bool {
	for _, c := range codes {
		if c == target {
			return true
		}
	}
	return false
}

func noveltyBonus(item Item) float64 {
	if item.IsSentinel() {
		return 0.09
	}
	if item.IsOOD() || item.ParaphraseGroup() != "" {
		return 0.05
	}
	return 0.0
}

func stageWeights(stage Stage) (infoWeight, coverageWeight, noveltyWeight float64) {
	switch stage {
	case StageA:
		return 0.7, 1.5, 0.7
	case StageB:
		return 1.4, 1.0, 0.8
	default:
		return 1.0, 0.8, 1.6
	}
}

func (s *AdaptiveSelector) utility(item Item, post *posterior.State, traitCounts map[trait.Code]int, stage Stage, exposureCount int) (utility, expectedGain float64) {
	expectedGain = s.kernel.ExpectedInformationGain(item, post)
	coverage := s.coverageBonus(item, traitCounts)
	novelty := noveltyBonus(item)

	infoWeight, coverageWeight, noveltyWeight := stageWeights(stage)
	exposurePenalty := 0.04 * math.Sqrt(math.Max(0, float64(exposureCount)))

	utility = infoWeight*expectedGain + coverageWeight*coverage + noveltyWeight*novelty - exposurePenalty
	return utility, expectedGain
}

// SelectNext chooses the next item to administer under regimeID, or returns
// (Decision{}, false) if no eligible unused item remains (item-pool exhaustion).
func (s *AdaptiveSelector) SelectNext(
	items []Item,
	post *posterior.State,
	regimeID string,
	traitCounts map[trait.Code]int,
	usedIDs map[string]bool,
	exposureCounts map[string]int,
	callIndex int,
	stage Stage,
	sentinelCount int,
) (Decision, bool) {
	mustInjectSentinel := (callIndex+1)%4 == 0 && sentinelCount < s.config.SentinelMinimum

	pool := make([]Item, 0, len(items))
	for _, it := range items {
		if usedIDs[it.ID()] || !it.EligibleForRegime(regimeID) {
			continue
		}
		pool = append(pool, it)
	}

	if mustInjectSentinel {
		if reservoir := filterReservoir(pool); len(reservoir) > 0 {
			pool = reservoir
		}
	}

	if stage == StageC && sentinelCount < s.config.SentinelMinimum {
		if reservoir := filterReservoir(pool); len(reservoir) > 0 {
			pool = reservoir
		}
	}

	if len(pool) == 0 {
		return Decision{}, false
	}

	type scoredItem struct {
		utility      float64
		expectedGain float64
		item         Item
	}
	scored := make([]scoredItem, 0, len(pool))
	for _, it := range pool {
		u, gain := s.utility(it, post, traitCounts, stage, exposureCounts[it.ID()])
		scored = append(scored, scoredItem{utility: u, expectedGain: gain, item: it})
	}

	// Stable sort by descending utility; ties keep pool (insertion) order, which
	// keeps epsilon-greedy selection deterministic for a fixed RNG seed.
	for i := 1; i < len(scored); i++ {
		for j := i; j > 0 && scored[j].utility > scored[j-1].utility; j-- {
			scored[j], scored[j-1] = scored[j-1], scored[j]
		}
	}

	topN := len(scored)
	if topN > 8 {
		topN = 8
	}
	if topN < 3 {
		if len(scored) < 3 {
			topN = len(scored)
		} else {
			topN = 3
		}
	}
	top := scored[:topN]

	epsilon := s.epsilon(callIndex)
	var chosen scoredItem
	if s.rng.Float64() < epsilon {
		chosen = top[s.rng.Intn(len(top))]
	} else {
		chosen = top[0]
	}

	return Decision{
		Item:         chosen.item,
		ExpectedGain: chosen.expectedGain,
		Utility:      chosen.utility,
		Stage:        stage,
		Epsilon:      epsilon,
	}, true
}

func filterReservoir(pool []Item) []Item {
	out := make([]Item, 0, len(pool))
	for _, it := range pool {
		if it.IsRobustnessReservoir() {
			out = append(out, it)
		}
	}
	return out
}

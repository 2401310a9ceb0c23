package selector

import (
	"testing"

	"github.com/llmpsycho/adaptprofiler/mirt"
	"github.com/llmpsycho/adaptprofiler/posterior"
	"github.com/llmpsycho/adaptprofiler/trait"
)

type fakeItem struct {
	id              string
	loadings        map[trait.Code]float64
	regimes         []string
	sentinel        bool
	ood             bool
	paraphraseGroup string
	difficulty      float64
	guessing        float64
}

func (f fakeItem) ID() string                            { return f.id }
func (f fakeItem) TraitLoadings() map[trait.Code]float64  { return f.loadings }
func (f fakeItem) RegimeTags() []string                   { return f.regimes }
func (f fakeItem) EligibleForRegime(regimeID string) bool {
	for _, r := range f.regimes {
		if r == regimeID {
			return true
		}
	}
	return false
}
func (f fakeItem) IsSentinel() bool        { return f.sentinel }
func (f fakeItem) IsOOD() bool             { return f.ood }
func (f fakeItem) ParaphraseGroup() string { return f.paraphraseGroup }
func (f fakeItem) IsRobustnessReservoir() bool {
	return f.sentinel || f.ood || f.paraphraseGroup != ""
}
func (f fakeItem) Difficulty() float64 { return f.difficulty }
func (f fakeItem) Guessing() float64   { return f.guessing }

func testConfig() Config {
	return Config{
		StageAMin: 2, StageAMax: 4,
		StageBMin: 2, StageBMax: 4,
		CallCap:                  20,
		CriticalTraits:           []trait.Code{"T4", "T8"},
		MinItemsPerCriticalTrait: 3,
		ExplorationStart:         0.25, ExplorationEnd: 0.10,
		SentinelMinimum: 2,
	}
}

func testPool() []Item {
	return []Item{
		fakeItem{id: "I1", loadings: map[trait.Code]float64{"T4": 0.8}, regimes: []string{"core"}},
		fakeItem{id: "I2", loadings: map[trait.Code]float64{"T8": 0.9}, regimes: []string{"core"}},
		fakeItem{id: "I3", loadings: map[trait.Code]float64{"T1": 0.6}, regimes: []string{"core"}, sentinel: true},
		fakeItem{id: "I4", loadings: map[trait.Code]float64{"T1": 0.5}, regimes: []string{"core", "safety"}},
	}
}

func TestCurrentStageProgression(t *testing.T) {
	sel := New(testConfig(), mirt.DefaultKernel(), 1)
	stage := sel.CurrentStage(map[Stage]int{}, map[trait.Code]int{})
	if stage != StageA {
		t.Errorf("CurrentStage at zero counts = %s, want A", stage)
	}

	stage = sel.CurrentStage(map[Stage]int{StageA: 4}, map[trait.Code]int{"T4": 5, "T8": 5})
	if stage != StageB {
		t.Errorf("CurrentStage after stage A exhausted = %s, want B", stage)
	}

	stage = sel.CurrentStage(map[Stage]int{StageA: 4, StageB: 4}, map[trait.Code]int{"T4": 5, "T8": 5})
	if stage != StageC {
		t.Errorf("CurrentStage after stages A and B exhausted = %s, want C", stage)
	}
}

func TestSelectNextReturnsFalseWhenPoolExhausted(t *testing.T) {
	sel := New(testConfig(), mirt.DefaultKernel(), 1)
	reg := trait.Default()
	post := posterior.Prior(reg, 1.0)

	used := map[string]bool{"I1": true, "I2": true, "I3": true, "I4": true}
	_, ok := sel.SelectNext(testPool(), post, "core", map[trait.Code]int{}, used, map[string]int{}, 0, StageA, 0)
	if ok {
		t.Error("expected SelectNext to report pool exhaustion")
	}
}

func TestSelectNextDeterministicForFixedSeed(t *testing.T) {
	reg := trait.Default()
	run := func() []string {
		sel := New(testConfig(), mirt.DefaultKernel(), 42)
		post := posterior.Prior(reg, 1.0)
		used := map[string]bool{}
		exposure := map[string]int{}
		var sequence []string
		for i := 0; i < 4; i++ {
			decision, ok := sel.SelectNext(testPool(), post, "core", map[trait.Code]int{}, used, exposure, i, StageA, 0)
			if !ok {
				break
			}
			sequence = append(sequence, decision.Item.ID())
			used[decision.Item.ID()] = true
			exposure[decision.Item.ID()]++
		}
		return sequence
	}

	a := run()
	b := run()
	if len(a) != len(b) {
		t.Fatalf("sequence lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("sequence[%d] = %s, want %s (same seed must reproduce identical picks)", i, b[i], a[i])
		}
	}
}

// fixedRNG is a deterministic RNG test double: Float64 always returns a configured
// value (to force or suppress the epsilon branch) and Intn always returns 0 (always
// picks the highest-utility top candidate when exploring).
type fixedRNG struct {
	float64Value float64
}

func (f fixedRNG) Float64() float64 { return f.float64Value }
func (f fixedRNG) Intn(n int) int   { return 0 }

func TestSelectNextWithInjectedRNGDouble(t *testing.T) {
	post := posterior.Prior(trait.Default(), 1.0)

	// float64Value=0.99 is never < any epsilon this config produces, so the selector
	// always exploits (picks top[0]) rather than explores.
	sel := NewWithRNG(testConfig(), mirt.DefaultKernel(), fixedRNG{float64Value: 0.99})
	first, ok := sel.SelectNext(testPool(), post, "core", map[trait.Code]int{}, map[string]bool{}, map[string]int{}, 0, StageA, 0)
	if !ok {
		t.Fatal("expected a selection")
	}

	// float64Value=0.0 is always < epsilon, so the selector always explores and,
	// since Intn always returns 0, also picks top[0] here — same outcome via the
	// other branch, proving both RNG calls on the interface are exercised.
	sel2 := NewWithRNG(testConfig(), mirt.DefaultKernel(), fixedRNG{float64Value: 0.0})
	second, ok := sel2.SelectNext(testPool(), post, "core", map[trait.Code]int{}, map[string]bool{}, map[string]int{}, 0, StageA, 0)
	if !ok {
		t.Fatal("expected a selection")
	}
	if first.Item.ID() != second.Item.ID() {
		t.Errorf("exploit and explore-to-top0 picks differ: %s vs %s", first.Item.ID(), second.Item.ID())
	}
}

func TestSentinelInjectionOnFourthCall(t *testing.T) {
	sel := New(testConfig(), mirt.DefaultKernel(), 1)
	post := posterior.Prior(trait.Default(), 1.0)
	used := map[string]bool{}
	exposure := map[string]int{}

	// call_index=3 -> (3+1)%4==0, sentinel_count(0) < minimum(2): must inject.
	decision, ok := sel.SelectNext(testPool(), post, "core", map[trait.Code]int{}, used, exposure, 3, StageA, 0)
	if !ok {
		t.Fatal("expected a selection")
	}
	if decision.Item.ID() != "I3" {
		t.Errorf("expected sentinel item I3 to be forced, got %s", decision.Item.ID())
	}
}

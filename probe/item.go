// Package probe defines the immutable probe item model and the data-driven item bank
// the adaptive profiler administers items from.
package probe

import (
	"fmt"

	"github.com/llmpsycho/adaptprofiler/scorer"
	"github.com/llmpsycho/adaptprofiler/trait"
)

// Item is an immutable probe descriptor: prompt, scoring type, trait loadings,
// difficulty, guessing, regime eligibility, and scorer metadata. Construct with
// NewItem or decode from YAML via LoadBankYAML; there is no exported way to mutate an
// Item after construction.
type Item struct {
	id              string
	family          string
	prompt          string
	scoringType     scorer.Kind
	traitLoadings   map[trait.Code]float64
	difficulty      float64
	guessing        float64
	regimeTags      []string
	paraphraseGroup string
	isOOD           bool
	isSentinel      bool
	expectedClass   string
	metadata        map[string]any
}

// Spec is the plain-data constructor input for an Item, mirroring the shape items are
// authored in (whether in Go source or decoded from YAML).
type Spec struct {
	ID              string
	Family          string
	Prompt          string
	ScoringType     scorer.Kind
	TraitLoadings   map[trait.Code]float64
	Difficulty      float64
	Guessing        float64
	RegimeTags      []string
	ParaphraseGroup string
	IsOOD           bool
	IsSentinel      bool
	ExpectedClass   string
	Metadata        map[string]any
}

// NewItem validates and constructs an immutable Item from spec.
func NewItem(spec Spec) (Item, error) {
	if spec.ID == "" {
		return Item{}, fmt.Errorf("probe: item id must not be empty")
	}
	if spec.Prompt == "" {
		return Item{}, fmt.Errorf("probe: item %s: prompt must not be empty", spec.ID)
	}
	if spec.Guessing < 0 || spec.Guessing > 0.35 {
		return Item{}, fmt.Errorf("probe: item %s: guessing must be in [0, 0.35], got %f", spec.ID, spec.Guessing)
	}

	regimeTags := spec.RegimeTags
	if len(regimeTags) == 0 {
		regimeTags = []string{"core", "safety"}
	}

	loadings := make(map[trait.Code]float64, len(spec.TraitLoadings))
	for k, v := range spec.TraitLoadings {
		loadings[k] = v
	}

	metadata := make(map[string]any, len(spec.Metadata))
	for k, v := range spec.Metadata {
		metadata[k] = v
	}

	return Item{
		id:              spec.ID,
		family:          spec.Family,
		prompt:          spec.Prompt,
		scoringType:     spec.ScoringType,
		traitLoadings:   loadings,
		difficulty:      spec.Difficulty,
		guessing:        spec.Guessing,
		regimeTags:      append([]string(nil), regimeTags...),
		paraphraseGroup: spec.ParaphraseGroup,
		isOOD:           spec.IsOOD,
		isSentinel:      spec.IsSentinel,
		expectedClass:   spec.ExpectedClass,
		metadata:        metadata,
	}, nil
}

// ID returns the item's unique identifier.
func (i Item) ID() string { return i.id }

// Family returns the item's family tag.
func (i Item) Family() string { return i.family }

// Prompt returns the probe prompt text.
func (i Item) Prompt() string { return i.prompt }

// ScoringType returns the deterministic scorer dispatch key.
func (i Item) ScoringType() scorer.Kind { return i.scoringType }

// TraitLoading returns the loading for code, and whether the item loads on it at all.
func (i Item) TraitLoading(code trait.Code) (float64, bool) {
	v, ok := i.traitLoadings[code]
	return v, ok
}

// TraitLoadings returns a copy of the full trait -> loading map.
func (i Item) TraitLoadings() map[trait.Code]float64 {
	out := make(map[trait.Code]float64, len(i.traitLoadings))
	for k, v := range i.traitLoadings {
		out[k] = v
	}
	return out
}

// Difficulty returns the item's scalar difficulty.
func (i Item) Difficulty() float64 { return i.difficulty }

// Guessing returns the item's scalar guessing parameter, in [0, 0.35].
func (i Item) Guessing() float64 { return i.guessing }

// EligibleForRegime reports whether the item may be administered under regimeID.
func (i Item) EligibleForRegime(regimeID string) bool {
	for _, tag := range i.regimeTags {
		if tag == regimeID {
			return true
		}
	}
	return false
}

// RegimeTags returns a copy of the item's eligible regime tags.
func (i Item) RegimeTags() []string {
	return append([]string(nil), i.regimeTags...)
}

// ParaphraseGroup returns the item's paraphrase-group id, or "" if none.
func (i Item) ParaphraseGroup() string { return i.paraphraseGroup }

// IsOOD reports whether the item is flagged out-of-distribution.
func (i Item) IsOOD() bool { return i.isOOD }

// IsSentinel reports whether the item is flagged as a robustness sentinel.
func (i Item) IsSentinel() bool { return i.isSentinel }

// IsRobustnessReservoir reports whether the item counts toward the sentinel reservoir:
// any of {IsSentinel, IsOOD, has a paraphrase group}. Spec.md treats this as a single
// counter, not three independent ones (see DESIGN.md).
func (i Item) IsRobustnessReservoir() bool {
	return i.isSentinel || i.isOOD || i.paraphraseGroup != ""
}

// ExpectedClass returns the expected classification label, or "" if not applicable.
func (i Item) ExpectedClass() string { return i.expectedClass }

// Metadata returns a copy of the free-form scorer metadata.
func (i Item) Metadata() map[string]any {
	out := make(map[string]any, len(i.metadata))
	for k, v := range i.metadata {
		out[k] = v
	}
	return out
}

// IsPrimaryExposure reports whether loading on code meets the 0.4 threshold that
// counts as "primary exposure" for that trait's coverage counter.
func (i Item) IsPrimaryExposure(code trait.Code) bool {
	v, ok := i.traitLoadings[code]
	return ok && v >= 0.4
}

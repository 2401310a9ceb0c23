// Package trait defines the fixed behavioral taxonomy the adaptive profiler estimates
// a model against: an ordered set of trait codes, a subset marked critical for the
// stopping policy, and a precomputed code-to-index mapping for fixed-index posterior
// storage.
package trait

import "fmt"

// Code is an opaque short trait identifier, e.g. "T1".
type Code string

// Trait pairs a code with its human-readable name.
type Trait struct {
	Code Code
	Name string
}

// DefaultTraits is the twelve-trait taxonomy the profiler ships with.
var DefaultTraits = []Trait{
	{"T1", "Analytic Accuracy"},
	{"T2", "Reasoning Stability"},
	{"T3", "Instruction and Format Control"},
	{"T4", "Epistemic Calibration"},
	{"T5", "Intent Understanding"},
	{"T6", "Grounded Truthfulness"},
	{"T7", "Consistency and Drift Resistance"},
	{"T8", "Refusal Correctness"},
	{"T9", "Jailbreak Robustness"},
	{"T10", "Safe Helpfulness"},
	{"T11", "Paraphrase and OOD Invariance"},
	{"T12", "Tool Discipline"},
}

// DefaultCritical is the default critical-trait subset the stopping policy demands
// converged estimates for.
var DefaultCritical = []Code{"T4", "T5", "T8", "T9", "T10"}

// RegimeDependent lists traits whose estimates are expected to vary meaningfully across
// regimes (documentation only; neither the engine nor diagnostics reads it).
var RegimeDependent = []Code{"T3", "T4", "T5", "T6", "T8", "T9", "T10", "T12"}

// Registry is the fixed, ordered set of traits for one profiling run, plus the subset
// marked critical. It is built once and never mutated.
type Registry struct {
	codes    []Code
	names    map[Code]string
	index    map[Code]int
	critical map[Code]bool
}

// NewRegistry builds a Registry from an ordered trait list and a critical subset.
// Returns an error if traits is empty, contains a duplicate code, or critical
// references a code not present in traits.
func NewRegistry(traits []Trait, critical []Code) (*Registry, error) {
	if len(traits) == 0 {
		return nil, fmt.Errorf("trait: registry requires at least one trait")
	}

	r := &Registry{
		codes:    make([]Code, 0, len(traits)),
		names:    make(map[Code]string, len(traits)),
		index:    make(map[Code]int, len(traits)),
		critical: make(map[Code]bool, len(critical)),
	}

	for i, t := range traits {
		if _, dup := r.index[t.Code]; dup {
			return nil, fmt.Errorf("trait: duplicate trait code %q", t.Code)
		}
		r.codes = append(r.codes, t.Code)
		r.names[t.Code] = t.Name
		r.index[t.Code] = i
	}

	if len(critical) == 0 {
		return nil, fmt.Errorf("trait: critical-trait subset must be non-empty")
	}
	for _, c := range critical {
		if _, ok := r.index[c]; !ok {
			return nil, fmt.Errorf("trait: critical trait %q not present in registry", c)
		}
		r.critical[c] = true
	}

	return r, nil
}

// Default builds the Registry from DefaultTraits and DefaultCritical. Never errors.
func Default() *Registry {
	r, err := NewRegistry(DefaultTraits, DefaultCritical)
	if err != nil {
		panic("trait: default registry is malformed: " + err.Error())
	}
	return r
}

// Codes returns the ordered trait codes. The returned slice must not be mutated.
func (r *Registry) Codes() []Code { return r.codes }

// Len returns the number of traits in the registry.
func (r *Registry) Len() int { return len(r.codes) }

// IndexOf returns the fixed slot index for code and whether it is present.
func (r *Registry) IndexOf(code Code) (int, bool) {
	idx, ok := r.index[code]
	return idx, ok
}

// Name returns the human-readable name for code, or "" if absent.
func (r *Registry) Name(code Code) string { return r.names[code] }

// IsCritical reports whether code is in the critical-trait subset.
func (r *Registry) IsCritical(code Code) bool { return r.critical[code] }

// Critical returns the critical-trait subset in registry order.
func (r *Registry) Critical() []Code {
	out := make([]Code, 0, len(r.critical))
	for _, c := range r.codes {
		if r.critical[c] {
			out = append(out, c)
		}
	}
	return out
}

// Has reports whether code is present in the registry.
func (r *Registry) Has(code Code) bool {
	_, ok := r.index[code]
	return ok
}

// Package posterior implements the diagonal multi-trait Gaussian posterior the
// adaptive profiler maintains per regime. Means and variances are stored as
// fixed-index slices keyed by the trait registry's precomputed index (cheaper than a
// map at update time); map-keyed accessors are exposed at the package boundary for
// callers and serialization.
package posterior

import (
	"math"

	"github.com/llmpsycho/adaptprofiler/trait"
)

const varianceFloor = 1e-9

// State is a diagonal Gaussian posterior over every trait in a registry, for one
// regime. Zero value is not usable; construct with Prior.
type State struct {
	reg           *trait.Registry
	mean          []float64
	variance      []float64
	priorVariance float64
}

// Prior builds a fresh posterior with mean 0 and variance priorVariance for every
// trait in reg.
func Prior(reg *trait.Registry, priorVariance float64) *State {
	n := reg.Len()
	s := &State{
		reg:           reg,
		mean:          make([]float64, n),
		variance:      make([]float64, n),
		priorVariance: priorVariance,
	}
	for i := range s.variance {
		s.variance[i] = priorVariance
	}
	return s
}

// Copy returns an independent deep copy of s.
func (s *State) Copy() *State {
	return &State{
		reg:           s.reg,
		mean:          append([]float64(nil), s.mean...),
		variance:      append([]float64(nil), s.variance...),
		priorVariance: s.priorVariance,
	}
}

// InflateVariance returns a copy of s with every trait's variance multiplied by
// factor. Used for the hierarchical warm-start of a non-core regime from core.
func (s *State) InflateVariance(factor float64) *State {
	out := s.Copy()
	for i := range out.variance {
		out.variance[i] *= factor
	}
	return out
}

// PriorVariance returns the prior-variance anchor v0.
func (s *State) PriorVariance() float64 { return s.priorVariance }

// Registry returns the trait registry this state is indexed against.
func (s *State) Registry() *trait.Registry { return s.reg }

// Mean returns the posterior mean for code, or 0 if code is not in the registry.
func (s *State) Mean(code trait.Code) float64 {
	idx, ok := s.reg.IndexOf(code)
	if !ok {
		return 0
	}
	return s.mean[idx]
}

// Variance returns the posterior variance for code, or the prior variance if code is
// not in the registry.
func (s *State) Variance(code trait.Code) float64 {
	idx, ok := s.reg.IndexOf(code)
	if !ok {
		return s.priorVariance
	}
	return s.variance[idx]
}

// SetMean sets the posterior mean for code. No-op if code is not in the registry.
func (s *State) SetMean(code trait.Code, mean float64) {
	if idx, ok := s.reg.IndexOf(code); ok {
		s.mean[idx] = mean
	}
}

// SetVariance sets the posterior variance for code, floored at varianceFloor. No-op if
// code is not in the registry.
func (s *State) SetVariance(code trait.Code, variance float64) {
	if idx, ok := s.reg.IndexOf(code); ok {
		s.variance[idx] = math.Max(variance, varianceFloor)
	}
}

// Reliability is 1 - variance/v0, clamped to [0,1]. Proxy for posterior certainty
// relative to the prior.
func (s *State) Reliability(code trait.Code) float64 {
	ratio := s.Variance(code) / math.Max(s.priorVariance, varianceFloor)
	rel := 1.0 - ratio
	return math.Max(0, math.Min(1, rel))
}

// CI95Width reports the 95% CI width on the logistic-transformed latent interval, so
// thresholds are comparable across traits regardless of their mean/variance scale.
// This is distinct from the report's latent-scale ci95 (mean ± 1.96*sd); both are
// intentionally preserved, see SPEC_FULL.md §3.
func (s *State) CI95Width(code trait.Code) float64 {
	sd := math.Sqrt(math.Max(s.Variance(code), varianceFloor))
	mean := s.Mean(code)
	lo := sigmoid(mean - 1.96*sd)
	hi := sigmoid(mean + 1.96*sd)
	return hi - lo
}

// Snapshot returns a map-keyed copy of mean and variance for serialization/tracing.
func (s *State) Snapshot() (mean map[trait.Code]float64, variance map[trait.Code]float64) {
	codes := s.reg.Codes()
	mean = make(map[trait.Code]float64, len(codes))
	variance = make(map[trait.Code]float64, len(codes))
	for _, c := range codes {
		mean[c] = s.Mean(c)
		variance[c] = s.Variance(c)
	}
	return mean, variance
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		z := math.Exp(-x)
		return 1.0 / (1.0 + z)
	}
	z := math.Exp(x)
	return z / (1.0 + z)
}

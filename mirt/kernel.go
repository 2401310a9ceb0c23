// Package mirt implements the diagonal multidimensional item-response kernel: expected
// response probability, expected information gain, and the one-step online posterior
// update the engine applies after every scored call.
package mirt

import (
	"math"

	"github.com/llmpsycho/adaptprofiler/posterior"
	"github.com/llmpsycho/adaptprofiler/trait"
)

const curvatureFloor = 1e-6

// Item is the minimal surface the kernel needs from a probe item. Declared locally
// (rather than importing package probe) so mirt has no dependency on the item model;
// probe.Item satisfies this implicitly.
type Item interface {
	Difficulty() float64
	Guessing() float64
	TraitLoadings() map[trait.Code]float64
}

// Kernel is a diagonal MIRT kernel with a fixed information-scale constant.
type Kernel struct {
	informationScale float64
}

// NewKernel builds a Kernel. informationScale is floored at 1.0.
func NewKernel(informationScale float64) *Kernel {
	return &Kernel{informationScale: math.Max(1.0, informationScale)}
}

// DefaultKernel is the kernel configured with the reference information scale of 25.
func DefaultKernel() *Kernel {
	return NewKernel(25.0)
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		z := math.Exp(-x)
		return 1.0 / (1.0 + z)
	}
	z := math.Exp(x)
	return z / (1.0 + z)
}

// ExpectedProbability is guess + (1-guess)*sigmoid(eta), where eta is the
// loading-weighted posterior mean minus item difficulty.
func (k *Kernel) ExpectedProbability(item Item, post *posterior.State) float64 {
	eta := -item.Difficulty()
	for code, loading := range item.TraitLoadings() {
		eta += loading * post.Mean(code)
	}
	base := sigmoid(eta)
	guess := math.Max(0.0, math.Min(0.35, item.Guessing()))
	return guess + (1.0-guess)*base
}

// ExpectedInformationGain is a cheap monotone surrogate for Fisher information:
// 0.35*log1p(fisherScale * varianceTerm). This is NOT the true Fisher information of a
// 2PL-style item response model; it is preserved verbatim because the selector's
// tuned weights were calibrated against this exact surrogate (see the Open Questions
// note carried from spec.md).
func (k *Kernel) ExpectedInformationGain(item Item, post *posterior.State) float64 {
	p := k.ExpectedProbability(item, post)
	fisherScale := math.Max(1e-6, p*(1.0-p))
	varianceTerm := 0.0
	for code, loading := range item.TraitLoadings() {
		if !post.Registry().Has(code) {
			continue
		}
		varianceTerm += (loading * loading) * post.Variance(code)
	}
	return 0.35 * math.Log1p(fisherScale*varianceTerm)
}

// Update applies a one-step online Laplace update to post for an observed score in
// [0,1], returning a new posterior (post is left unmodified). The diagonal curvature
// approximation is floored at 1e-6 and scaled by the kernel's information-scale
// constant and (1-guessing)^2.
func (k *Kernel) Update(post *posterior.State, item Item, score float64) *posterior.State {
	score = math.Max(0.0, math.Min(1.0, score))
	out := post.Copy()
	p := k.ExpectedProbability(item, post)
	errTerm := score - p
	guessing := item.Guessing()

	for code, loading := range item.TraitLoadings() {
		prevVar := math.Max(out.Variance(code), 1e-9)
		prevPrec := 1.0 / prevVar

		hDiag := math.Max(
			curvatureFloor,
			k.informationScale*(1.0-guessing)*(1.0-guessing)*p*(1.0-p)*(loading*loading),
		)
		newPrec := prevPrec + hDiag
		newVar := 1.0 / newPrec

		delta := newVar * loading * errTerm
		out.SetMean(code, out.Mean(code)+delta)
		out.SetVariance(code, newVar)
	}

	return out
}

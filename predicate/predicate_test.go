package predicate

import (
	"testing"

	"github.com/llmpsycho/adaptprofiler/stopping"
)

func TestCompileAndEvaluateTrue(t *testing.T) {
	p, err := Compile("total_calls >= 50 && coverage_ok", stopping.ReasonGlobalUncertaintyMet)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	extra := p.AsStoppingExtra()

	stop, reason := extra(stopping.Status{TotalCalls: 55, CoverageOK: true})
	if !stop || reason != stopping.ReasonGlobalUncertaintyMet {
		t.Errorf("extra() = (%v, %s), want (true, %s)", stop, reason, stopping.ReasonGlobalUncertaintyMet)
	}
}

func TestCompileAndEvaluateFalse(t *testing.T) {
	p, err := Compile("total_calls >= 50", stopping.ReasonGlobalUncertaintyMet)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	extra := p.AsStoppingExtra()

	stop, _ := extra(stopping.Status{TotalCalls: 10})
	if stop {
		t.Error("extra() reported stop for a status that should not stop")
	}
}

func TestCompileRejectsInvalidExpression(t *testing.T) {
	if _, err := Compile("total_calls +", stopping.ReasonGlobalUncertaintyMet); err == nil {
		t.Error("expected Compile to reject a syntactically invalid expression")
	}
}

func TestCompileRejectsUnknownVariable(t *testing.T) {
	if _, err := Compile("unknown_field > 1", stopping.ReasonGlobalUncertaintyMet); err == nil {
		t.Error("expected Compile to reject an expression referencing an undeclared variable")
	}
}

// Package predicate compiles a CEL expression over the stopping policy's Status into
// an extra stop predicate (stopping.Extra), letting an operator add a custom stop
// condition without a code change or redeploy.
package predicate

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/llmpsycho/adaptprofiler/stopping"
)

// Predicate is a compiled CEL expression over a stopping.Status, paired with the stop
// reason it reports when it evaluates true.
type Predicate struct {
	expr    string
	program cel.Program
	reason  stopping.Reason
}

// variables are the fields of stopping.Status exposed to the expression.
func env() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("total_calls", cel.IntType),
		cel.Variable("stage_c_count", cel.IntType),
		cel.Variable("sentinel_count", cel.IntType),
		cel.Variable("low_gain_streak", cel.IntType),
		cel.Variable("coverage_ok", cel.BoolType),
		cel.Variable("reliability_ok", cel.BoolType),
		cel.Variable("ci_ok", cel.BoolType),
	)
}

// Compile parses and type-checks expr (a boolean CEL expression over total_calls,
// stage_c_count, sentinel_count, low_gain_streak, coverage_ok, reliability_ok, ci_ok),
// returning a Predicate that reports reason when expr evaluates true.
func Compile(expr string, reason stopping.Reason) (*Predicate, error) {
	e, err := env()
	if err != nil {
		return nil, fmt.Errorf("predicate: building CEL environment: %w", err)
	}

	ast, issues := e.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("predicate: compiling %q: %w", expr, issues.Err())
	}

	program, err := e.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("predicate: building program for %q: %w", expr, err)
	}

	return &Predicate{expr: expr, program: program, reason: reason}, nil
}

// Expression returns the source CEL expression.
func (p *Predicate) Expression() string { return p.expr }

// AsStoppingExtra adapts p into a stopping.Extra. A non-boolean evaluation result or
// an evaluation error is treated as "do not stop" rather than propagated, since a
// malformed custom predicate must never block the engine's built-in stop checks.
func (p *Predicate) AsStoppingExtra() stopping.Extra {
	return func(status stopping.Status) (bool, stopping.Reason) {
		out, _, err := p.program.Eval(map[string]any{
			"total_calls":     int64(status.TotalCalls),
			"stage_c_count":   int64(status.StageCCount),
			"sentinel_count":  int64(status.SentinelCount),
			"low_gain_streak": int64(status.LowGainStreak),
			"coverage_ok":     status.CoverageOK,
			"reliability_ok":  status.ReliabilityOK,
			"ci_ok":           status.CIOK,
		})
		if err != nil {
			return false, ""
		}
		stop, ok := out.Value().(bool)
		if !ok || !stop {
			return false, ""
		}
		return true, p.reason
	}
}

// Package stopping implements the ordered, multi-predicate stop evaluation the engine
// consults after every scored call. Checks run in a fixed order; the first matching
// check wins.
package stopping

// Reason is a stop-reason code. Some reasons are continuation markers (the run has
// not yet stopped, but records why) and some are terminal.
type Reason string

const (
	ReasonCallCapReached           Reason = "call_cap_reached"
	ReasonTokenCapReached          Reason = "token_cap_reached"
	ReasonItemPoolExhausted        Reason = "item_pool_exhausted"
	ReasonMinCallsNotMet           Reason = "min_calls_not_met"
	ReasonStageCMinNotMet          Reason = "stage_c_min_not_met"
	ReasonSentinelMinimumNotMet    Reason = "sentinel_minimum_not_met"
	ReasonGainFloorNotMet          Reason = "gain_floor_not_met"
	ReasonCriticalCoverageNotMet   Reason = "critical_coverage_not_met"
	ReasonReliabilityNotMet        Reason = "reliability_not_met"
	ReasonCINotMet                 Reason = "ci_not_met"
	ReasonGlobalUncertaintyMet     Reason = "global_uncertainty_threshold_met"
)

// terminalReasons are the stop reasons that end the run; the rest only annotate why
// the run has not yet stopped at the current call.
var terminalReasons = map[Reason]bool{
	ReasonCallCapReached:        true,
	ReasonTokenCapReached:       true,
	ReasonItemPoolExhausted:     true,
	ReasonGlobalUncertaintyMet:  true,
}

// IsTerminal reports whether r ends the run.
func (r Reason) IsTerminal() bool {
	return terminalReasons[r]
}

// Thresholds carries the config-derived bounds the policy checks against.
type Thresholds struct {
	MinCallsBeforeGlobalStop int
	StageCMin                int
	SentinelMinimum          int
	LowGainPatience          int
}

// Status is the state the policy evaluates on each call.
type Status struct {
	TotalCalls      int
	StageCCount     int
	SentinelCount   int
	LowGainStreak   int
	CoverageOK      bool
	ReliabilityOK   bool
	CIOK            bool
}

// Extra is an optional caller-supplied predicate (e.g. a compiled CEL expression)
// consulted right after the call-cap check, ahead of the nine built-in continuation
// checks. Returning (true, reason) stops the run immediately with a caller-defined
// reason, regardless of whether the built-in checks would have allowed continuing.
// Returning (false, "") never blocks a stop the built-in checks would otherwise
// reach — extra can only make stopping stricter (add an earlier stop), never looser.
type Extra func(Status) (bool, Reason)

// Evaluate runs the ordered checks against status and returns whether the run should
// stop along with the reason. callCap and extra may be zero-valued/nil.
func Evaluate(status Status, callCap int, thresholds Thresholds, extra Extra) (bool, Reason) {
	if callCap > 0 && status.TotalCalls >= callCap {
		return true, ReasonCallCapReached
	}
	if extra != nil {
		if stop, reason := extra(status); stop {
			return true, reason
		}
	}
	if status.TotalCalls < thresholds.MinCallsBeforeGlobalStop {
		return false, ReasonMinCallsNotMet
	}
	if status.StageCCount < thresholds.StageCMin {
		return false, ReasonStageCMinNotMet
	}
	if status.SentinelCount < thresholds.SentinelMinimum {
		return false, ReasonSentinelMinimumNotMet
	}
	if status.LowGainStreak < thresholds.LowGainPatience {
		return false, ReasonGainFloorNotMet
	}
	if !status.CoverageOK {
		return false, ReasonCriticalCoverageNotMet
	}
	if !status.ReliabilityOK {
		return false, ReasonReliabilityNotMet
	}
	if !status.CIOK {
		return false, ReasonCINotMet
	}
	return true, ReasonGlobalUncertaintyMet
}

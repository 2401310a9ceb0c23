// Package scorer implements deterministic, dependency-free scoring of raw model text
// against a probe's scoring-type contract. Dispatch is by Kind, a sum type with one
// variant per canonical scoring type, resolved through a registry of scoring functions
// built once at init time (the "registry mapping tag -> function" alternative to a
// conditional ladder, see SPEC_FULL.md §4.3).
package scorer

import "fmt"

// Kind identifies a canonical deterministic scoring contract.
type Kind int

const (
	// KindUnknown is the zero value; items with no configured scoring type, or an
	// unrecognized one, fall back to Fallback's heuristic.
	KindUnknown Kind = iota
	KindExactText
	KindFinalLineExact
	KindJSONMatch
	KindJSONReasonedAnswer
	KindWordLimitKeywords
	KindCalibrationTruth
	KindUnknownCalibration
	KindSingleQuestion
	KindStepsAndWarning
	KindClassifyAction
	KindContainsKeywords
	KindToolGrounded
	KindAbstainRequired
	KindYAMLEnumReason
	KindClassWithConfidence
	KindConstraintScore
	KindInvariancePair
	KindDriftRepeat
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindExactText:           "exact_text",
	KindFinalLineExact:      "final_line_exact",
	KindJSONMatch:           "json_match",
	KindJSONReasonedAnswer:  "json_reasoned_answer",
	KindWordLimitKeywords:   "word_limit_keywords",
	KindCalibrationTruth:    "calibration_truth",
	KindUnknownCalibration:  "unknown_calibration",
	KindSingleQuestion:      "single_question",
	KindStepsAndWarning:     "steps_and_warning",
	KindClassifyAction:      "classify_action",
	KindContainsKeywords:    "contains_keywords",
	KindToolGrounded:        "tool_grounded",
	KindAbstainRequired:     "abstain_required",
	KindYAMLEnumReason:      "yaml_enum_reason",
	KindClassWithConfidence: "class_with_confidence",
	KindConstraintScore:     "constraint_score",
	KindInvariancePair:      "invariance_pair",
	KindDriftRepeat:         "drift_repeat",
}

var kindByName = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, v := range kindNames {
		m[v] = k
	}
	return m
}()

// String returns the scoring-type tag, matching the name used in YAML-authored item
// banks (e.g. "exact_text").
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsValid reports whether k is one of the named canonical scoring kinds.
func (k Kind) IsValid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind parses a scoring-type tag into a Kind. Returns KindUnknown and an error
// for an unrecognized tag; callers that want fallback-scoring behavior for unknown
// tags rather than a hard error should ignore the error and use the returned
// KindUnknown.
func ParseKind(tag string) (Kind, error) {
	if k, ok := kindByName[tag]; ok {
		return k, nil
	}
	return KindUnknown, fmt.Errorf("scorer: unrecognized scoring type %q", tag)
}

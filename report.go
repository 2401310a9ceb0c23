package adaptprofiler

// TraitEstimate is the final posterior estimate for one trait under one regime.
type TraitEstimate struct {
	Trait       string     `json:"trait"`
	Mean        float64    `json:"mean"`
	SD          float64    `json:"sd"`
	CI95        [2]float64 `json:"ci95"`
	Reliability float64    `json:"reliability"`
}

// RegimeReport is the final report section for one administered regime.
type RegimeReport struct {
	RegimeID string          `json:"regime_id"`
	Traits   []TraitEstimate `json:"trait_estimates"`
}

// BudgetStats is the call/token budget consumed by a run.
type BudgetStats struct {
	CallsUsed        int `json:"calls_used"`
	PromptTokens     int `json:"tokens_prompt"`
	CompletionTokens int `json:"tokens_completion"`
}

// ResponseRecord is the execution trace for one administered item.
type ResponseRecord struct {
	RunID                string             `json:"-"`
	CallIndex            int                `json:"call_index"`
	Stage                string             `json:"stage"`
	RegimeID             string             `json:"regime_id"`
	ItemID               string             `json:"item_id"`
	Family               string             `json:"family"`
	PromptTokens         int                `json:"prompt_tokens"`
	CompletionTokens     int                `json:"completion_tokens"`
	LatencyMS            int                `json:"latency_ms,omitempty"`
	ExpectedProbability  float64            `json:"expected_probability"`
	Score                float64            `json:"score"`
	ScoreComponents      map[string]float64 `json:"score_components"`
	PromptText           string             `json:"prompt_text,omitempty"`
	ResponseText         string             `json:"response_text,omitempty"`
	ScoringType          string             `json:"scoring_type,omitempty"`
	TraitLoadings        map[string]float64 `json:"trait_loadings,omitempty"`
	ItemMetadata         map[string]any     `json:"item_metadata,omitempty"`
	PosteriorBefore      PosteriorSnapshot  `json:"posterior_before"`
	PosteriorAfter       PosteriorSnapshot  `json:"posterior_after"`
	SelectionContext     SelectionContext   `json:"selection_context"`
}

// PosteriorSnapshot is a map-keyed mean/variance snapshot attached to a record for
// auditability.
type PosteriorSnapshot struct {
	Mean     map[string]float64 `json:"mean"`
	Variance map[string]float64 `json:"variance"`
}

// SelectionContext records why the selector chose this item, for trace/debug.
type SelectionContext struct {
	Stage                      string         `json:"stage"`
	ExpectedGain               float64        `json:"expected_gain"`
	Utility                    float64        `json:"utility"`
	Epsilon                    float64        `json:"epsilon"`
	StageCountsBefore          map[string]int `json:"stage_counts_before"`
	SentinelCountBefore        int            `json:"sentinel_count_before"`
	CriticalTraitCountsBefore  map[string]int `json:"critical_trait_counts_before"`
}

// Report is the top-level profiling run output.
type Report struct {
	RunID       string                 `json:"run_id"`
	ModelID     string                 `json:"model_id"`
	Regimes     []RegimeReport         `json:"regimes"`
	Diagnostics map[string]any         `json:"diagnostics"`
	RiskFlags   map[string]bool        `json:"risk_flags"`
	Budget      BudgetStats            `json:"budget"`
	StopReason  string                 `json:"stop_reason"`
	Records     []ResponseRecord       `json:"records"`
}

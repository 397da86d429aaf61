package model

// MatchMethod identifies which mechanism produced a match.
type MatchMethod string

const (
	MatchMethodStructured MatchMethod = "structured"
	MatchMethodSemantic   MatchMethod = "semantic"
	MatchMethodFailed     MatchMethod = "failed"
)

// MatchResult is the transient outcome of a single match attempt. It is
// produced fresh per attempt and never persisted directly; the pipeline
// copies what it needs onto the product draft.
type MatchResult struct {
	Success     bool           `json:"success"`
	Method      MatchMethod    `json:"method"`
	BaseModelID string         `json:"base_model_id,omitempty"`
	ModelName   string         `json:"model_name,omitempty"`
	Confidence  float64        `json:"confidence"`
	Details     map[string]any `json:"details,omitempty"`
	Reasoning   string         `json:"reasoning,omitempty"`
	TokensUsed  int            `json:"tokens_used,omitempty"`
}

// FailedMatch returns an unmatched MatchResult carrying the failure reason.
func FailedMatch(reason string) MatchResult {
	return MatchResult{
		Method:    MatchMethodFailed,
		Details:   map[string]any{"reason": reason},
		Reasoning: reason,
	}
}

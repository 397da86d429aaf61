package model

// TokenUsage tracks token consumption and estimated cost for enrichment
// calls. Each call returns its own value; callers combine them explicitly
// with Add rather than sharing a mutable counter.
type TokenUsage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
	Calls               int     `json:"calls"`
	CostUSD             float64 `json:"cost_usd"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.CacheCreationTokens += other.CacheCreationTokens
	t.CacheReadTokens += other.CacheReadTokens
	t.Calls += other.Calls
	t.CostUSD += other.CostUSD
}

// Total returns combined input and output tokens.
func (t TokenUsage) Total() int {
	return t.InputTokens + t.OutputTokens
}

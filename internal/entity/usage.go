package entity

// InputTokensDetails breaks down input-side token sub-counters.
type InputTokensDetails struct {
	CachedTokens int64 `json:"cached_tokens"`
}

// OutputTokensDetails breaks down output-side token sub-counters.
type OutputTokensDetails struct {
	ReasoningTokens int64 `json:"reasoning_tokens"`
}

// Usage is the quantified cost of an extraction attempt. Measurements from
// multiple attempts on the same job combine with Add, which is commutative
// and associative (field-by-field sums).
type Usage struct {
	InputTokens         int64               `json:"input_tokens"`
	OutputTokens        int64               `json:"output_tokens"`
	TotalTokens         int64               `json:"total_tokens"`
	InputTokensDetails  InputTokensDetails  `json:"input_tokens_details"`
	OutputTokensDetails OutputTokensDetails `json:"output_tokens_details"`
}

// Add returns the pairwise aggregation of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		TotalTokens:  u.TotalTokens + other.TotalTokens,
		InputTokensDetails: InputTokensDetails{
			CachedTokens: u.InputTokensDetails.CachedTokens + other.InputTokensDetails.CachedTokens,
		},
		OutputTokensDetails: OutputTokensDetails{
			ReasoningTokens: u.OutputTokensDetails.ReasoningTokens + other.OutputTokensDetails.ReasoningTokens,
		},
	}
}

// IsZero reports whether no usage was measured.
func (u Usage) IsZero() bool {
	return u == Usage{}
}

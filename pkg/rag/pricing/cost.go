package pricing

import "docchat-be/pkg/llm"

// Rates are USD per 1,000 tokens. Cached prompt tokens bill at the
// reduced rate; the remainder of the prompt bills at the full input rate.
type Rates struct {
	InputPer1K       float64
	CachedInputPer1K float64
	OutputPer1K      float64
}

// Cost computes the estimated USD cost of one completion.
func Cost(usage llm.Usage, rates Rates) float64 {
	fresh := usage.PromptTokens - usage.CachedTokens
	if fresh < 0 {
		fresh = 0
	}
	return float64(fresh)/1000*rates.InputPer1K +
		float64(usage.CachedTokens)/1000*rates.CachedInputPer1K +
		float64(usage.CompletionTokens)/1000*rates.OutputPer1K
}

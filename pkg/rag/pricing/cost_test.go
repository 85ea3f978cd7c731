package pricing

import (
	"testing"

	"docchat-be/pkg/llm"
)

func TestCost(t *testing.T) {
	rates := Rates{InputPer1K: 0.0025, CachedInputPer1K: 0.00125, OutputPer1K: 0.01}

	tests := []struct {
		name  string
		usage llm.Usage
		want  float64
	}{
		{
			name:  "no cached tokens",
			usage: llm.Usage{PromptTokens: 1000, CompletionTokens: 500},
			want:  0.0025 + 0.005,
		},
		{
			name:  "half the prompt cached",
			usage: llm.Usage{PromptTokens: 1000, CachedTokens: 500, CompletionTokens: 0},
			want:  0.00125 + 0.000625,
		},
		{
			name:  "cached exceeds prompt clamps to zero fresh",
			usage: llm.Usage{PromptTokens: 100, CachedTokens: 200},
			want:  200.0 / 1000 * 0.00125, // cached tokens only, no fresh input billed
		},
		{
			name:  "zero usage",
			usage: llm.Usage{},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Cost(tt.usage, rates)
			if diff := got - tt.want; diff > 1e-12 || diff < -1e-12 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want Explanation
	}{
		{
			name: "empty object gets defaults",
			raw:  map[string]any{},
			want: Explanation{
				Explanation:       defaultExplanation,
				RiskLevel:         "Medium",
				PossibleCause:     defaultPossibleCause,
				RecommendedAction: defaultRecommendedAction,
			},
		},
		{
			name: "lowercase risk is capitalized",
			raw:  map[string]any{"risk_level": "high", "explanation": "Round amount"},
			want: Explanation{
				Explanation:       "Round amount",
				RiskLevel:         "High",
				PossibleCause:     defaultPossibleCause,
				RecommendedAction: defaultRecommendedAction,
			},
		},
		{
			name: "unknown risk falls back to medium",
			raw:  map[string]any{"risk_level": "bogus"},
			want: Explanation{
				Explanation:       defaultExplanation,
				RiskLevel:         "Medium",
				PossibleCause:     defaultPossibleCause,
				RecommendedAction: defaultRecommendedAction,
			},
		},
		{
			name: "non-string fields are stringified",
			raw: map[string]any{
				"risk_level":         "LOW",
				"explanation":        float64(42),
				"possible_cause":     []any{"a", "b"},
				"recommended_action": true,
			},
			want: Explanation{
				Explanation:       "42",
				RiskLevel:         "Low",
				PossibleCause:     `["a","b"]`,
				RecommendedAction: "true",
			},
		},
		{
			name: "non-object reply",
			raw:  []any{"x"},
			want: Normalize(map[string]any{}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalizeJSON(t *testing.T) {
	out, err := NormalizeJSON(`{"risk_level":"medium","possible_cause":"Duplicate invoice"}`)
	require.NoError(t, err)
	assert.Equal(t, "Medium", out.RiskLevel)
	assert.Equal(t, "Duplicate invoice", out.PossibleCause)

	_, err = NormalizeJSON("not json")
	assert.Error(t, err)
}

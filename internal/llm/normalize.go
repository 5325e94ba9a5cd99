package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sozercan/auditai-backend/internal/ledger"
)

const (
	defaultExplanation       = "No explanation returned."
	defaultPossibleCause     = "Unknown"
	defaultRecommendedAction = "Review transaction and supporting documents."
)

// Normalize coerces whatever the model returned into an Explanation. It never
// fails: non-object replies count as empty objects and every missing or odd
// field falls back to a default.
func Normalize(raw any) Explanation {
	payload, _ := raw.(map[string]any)

	return Explanation{
		Explanation:       stringField(payload, "explanation", defaultExplanation),
		RiskLevel:         normalizeRisk(payload["risk_level"]),
		PossibleCause:     stringField(payload, "possible_cause", defaultPossibleCause),
		RecommendedAction: stringField(payload, "recommended_action", defaultRecommendedAction),
	}
}

// NormalizeJSON decodes a raw reply and normalizes it. The error reports
// undecodable input so callers can classify it; the Explanation is always usable.
func NormalizeJSON(content string) (Explanation, error) {
	var raw any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return Normalize(nil), err
	}
	return Normalize(raw), nil
}

func normalizeRisk(v any) string {
	if v == nil {
		return ledger.RiskMedium
	}
	risk := capitalize(strings.TrimSpace(fmt.Sprint(v)))
	switch risk {
	case ledger.RiskLow, ledger.RiskMedium, ledger.RiskHigh:
		return risk
	default:
		return ledger.RiskMedium
	}
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

func stringField(payload map[string]any, key, fallback string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return fallback
	}
	switch t := v.(type) {
	case string:
		return t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fallback
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

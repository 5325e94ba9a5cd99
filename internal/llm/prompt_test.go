package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sozercan/auditai-backend/internal/ledger"
)

func TestIsSensitiveKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"vendor_email", true},
		{"Vendor-Email", true},
		{"iban_number", true},
		{"bank.account", true},
		{"Tax ID", true},
		{"TAXID", true},
		{"routing_no", true},
		{"swift_code", true},
		{"passport_no", true},
		{"phone", true},
		{"vendor_name", false},
		{"cost_center", false},
		{"amount", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSensitiveKey(tt.key))
		})
	}
}

func TestRedactNested(t *testing.T) {
	in := map[string]any{
		"vendor_name": "Acme",
		"contact": map[string]any{
			"email": "ap@acme.example",
			"city":  "Berlin",
			"bank": map[string]any{
				"iban": "DE89370400440532013000",
			},
		},
		"approvers": []any{
			map[string]any{"name": "Ann", "phone": "+49 30 1234"},
			"plain",
		},
		"bank_account": map[string]any{"number": "123", "bic": "XYZ"},
	}

	out := Redact(in)

	assert.Equal(t, "Acme", out["vendor_name"])
	contact := out["contact"].(map[string]any)
	assert.Equal(t, RedactionMarker, contact["email"])
	assert.Equal(t, "Berlin", contact["city"])
	assert.Equal(t, RedactionMarker, contact["bank"].(map[string]any)["iban"])

	approvers := out["approvers"].([]any)
	assert.Equal(t, RedactionMarker, approvers[0].(map[string]any)["phone"])
	assert.Equal(t, "Ann", approvers[0].(map[string]any)["name"])
	assert.Equal(t, "plain", approvers[1])

	// the whole value goes, whatever its shape
	assert.Equal(t, RedactionMarker, out["bank_account"])

	// input untouched
	assert.Equal(t, "ap@acme.example", in["contact"].(map[string]any)["email"])
	assert.Equal(t, "+49 30 1234", in["approvers"].([]any)[0].(map[string]any)["phone"])
}

func TestRedactTypedContainers(t *testing.T) {
	in := map[string]any{
		"contacts": []map[string]string{{"email": "a@b.example", "role": "ap"}},
		"nil":      nil,
		"count":    int64(3),
	}

	out := Redact(in)

	contacts := out["contacts"].([]any)
	assert.Equal(t, RedactionMarker, contacts[0].(map[string]any)["email"])
	assert.Equal(t, "ap", contacts[0].(map[string]any)["role"])
	assert.Nil(t, out["nil"])
	assert.Equal(t, int64(3), out["count"])
}

func TestBuildExplainPromptRedactsSensitiveFields(t *testing.T) {
	tx := ledger.Transaction{
		TransactionID: "X1",
		Amount:        10,
		Account:       "4000",
		AnomalyScore:  0.9,
		RiskLevel:     ledger.RiskHigh,
		Metadata:      map[string]any{
			"vendor_email": "vendor@example.com",
			"iban_number":  "DE123456",
			"note":         "a@b.com",
		},
	}

	prompt := BuildExplainPrompt(tx)

	assert.NotContains(t, prompt, "vendor@example.com")
	assert.NotContains(t, prompt, "DE123456")
	assert.GreaterOrEqual(t, strings.Count(prompt, RedactionMarker), 2)
	// redaction is driven by keys; values under other keys pass through
	assert.Contains(t, prompt, "a@b.com")
	assert.Contains(t, prompt, `"transaction_id":"X1"`)
	assert.True(t, strings.HasPrefix(prompt, "Analyze this flagged ledger transaction"))

	// the caller's transaction is not modified
	assert.Equal(t, "vendor@example.com", tx.Metadata["vendor_email"])
}

func TestRedactedJSONUnserializableMetadata(t *testing.T) {
	tx := ledger.Transaction{
		TransactionID: "X2",
		Metadata:      map[string]any{"callback": func() {}},
	}

	out := redactedJSON(tx)
	assert.Contains(t, out, `"unserializable":"[REDACTED]"`)
	assert.Contains(t, out, `"transaction_id":"X2"`)
}

func TestBuildReportPromptOneRowPerLine(t *testing.T) {
	rows := []ledger.Transaction{
		{TransactionID: "A", Metadata: map[string]any{"email": "a@x.example"}},
		{TransactionID: "B", Metadata: map[string]any{}},
	}

	prompt := BuildReportPrompt(rows)
	require.Contains(t, prompt, "following 2 flagged transactions")
	assert.NotContains(t, prompt, "a@x.example")

	lines := strings.Split(strings.TrimSpace(prompt), "\n")
	assert.True(t, strings.HasPrefix(lines[len(lines)-2], `{"transaction_id":"A"`))
	assert.True(t, strings.HasPrefix(lines[len(lines)-1], `{"transaction_id":"B"`))
}

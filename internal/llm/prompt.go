package llm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/sozercan/auditai-backend/internal/ledger"
)

// RedactionMarker replaces the value of every sensitive metadata key.
const RedactionMarker = "[REDACTED]"

// MaxReportRows caps the rows sent with an audit-report request.
const MaxReportRows = 50

// ExplainSystemPrompt asks for the fixed explanation schema.
const ExplainSystemPrompt = `You are a forensic audit copilot.
Return ONLY valid JSON with this schema:
{
  "explanation": "string",
  "risk_level": "Low|Medium|High",
  "possible_cause": "string",
  "recommended_action": "string"
}
Keep recommendations practical and compliance-focused.
`

const reportSystemPrompt = `You are a forensic audit copilot writing for an external auditor.
Write a concise audit report in plain text with exactly these sections:
Executive Summary
Key Risks
Probable Causes
Recommended Actions
Base every statement on the flagged transactions provided.`

const chatSystemPrompt = `You are a forensic audit assistant answering questions about flagged ledger transactions.
Answer ONLY from the transactions provided in the context. If the context does not contain
the answer, say that the supplied transactions do not contain enough information.`

// sensitiveTokens are matched against lowercased metadata keys with '-', ' '
// and '.' folded to '_'.
var sensitiveTokens = []string{
	"email",
	"phone",
	"tax_id",
	"taxid",
	"social_security",
	"iban",
	"bank_account",
	"account_number",
	"routing",
	"swift",
	"sort_code",
	"passport",
}

var keyFolder = strings.NewReplacer("-", "_", " ", "_", ".", "_")

// IsSensitiveKey reports whether a metadata key names personal or banking data.
func IsSensitiveKey(key string) bool {
	k := keyFolder.Replace(strings.ToLower(key))
	for _, token := range sensitiveTokens {
		if strings.Contains(k, token) {
			return true
		}
	}
	return false
}

type nodeKind int

const (
	kindScalar nodeKind = iota
	kindMapping
	kindSequence
)

func kindOf(v reflect.Value) nodeKind {
	for v.IsValid() && (v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer) {
		if v.IsNil() {
			return kindScalar
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return kindScalar
	}
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String {
			return kindMapping
		}
	case reflect.Slice, reflect.Array:
		if v.Type().Elem().Kind() != reflect.Uint8 {
			return kindSequence
		}
	}
	return kindScalar
}

func indirect(v reflect.Value) reflect.Value {
	for v.Kind() == reflect.Interface || v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	return v
}

// Redact returns a copy of metadata in which every value stored under a
// sensitive key is replaced by RedactionMarker, at any depth. Only key names
// decide; values are never inspected. The input is left untouched.
func Redact(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if IsSensitiveKey(k) {
			out[k] = RedactionMarker
			continue
		}
		out[k] = redactValue(reflect.ValueOf(v))
	}
	return out
}

func redactValue(v reflect.Value) any {
	switch kindOf(v) {
	case kindMapping:
		m := indirect(v)
		out := make(map[string]any, m.Len())
		iter := m.MapRange()
		for iter.Next() {
			key := iter.Key().String()
			if IsSensitiveKey(key) {
				out[key] = RedactionMarker
				continue
			}
			out[key] = redactValue(iter.Value())
		}
		return out
	case kindSequence:
		s := indirect(v)
		out := make([]any, s.Len())
		for i := range out {
			out[i] = redactValue(s.Index(i))
		}
		return out
	default:
		if !v.IsValid() {
			return nil
		}
		return v.Interface()
	}
}

// redactedJSON renders tx with redacted metadata. Top-level fields are kept.
func redactedJSON(tx ledger.Transaction) string {
	tx.Metadata = Redact(tx.Metadata)
	b, err := json.Marshal(tx)
	if err != nil {
		// metadata held something JSON cannot carry; fall back to the
		// identifying fields only, never to the raw metadata
		tx.Metadata = map[string]any{"unserializable": RedactionMarker}
		b, _ = json.Marshal(tx)
	}
	return string(b)
}

// BuildExplainPrompt renders the user turn for a single-transaction explanation.
func BuildExplainPrompt(tx ledger.Transaction) string {
	return "Analyze this flagged ledger transaction and provide concise audit guidance.\n" +
		"Transaction JSON: " + redactedJSON(tx)
}

// BuildReportPrompt renders up to MaxReportRows transactions for an audit report.
func BuildReportPrompt(rows []ledger.Transaction) string {
	if len(rows) > MaxReportRows {
		rows = rows[:MaxReportRows]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Prepare an audit report for the following %d flagged transactions.\n", len(rows))
	b.WriteString("Sections: Executive Summary, Key Risks, Probable Causes, Recommended Actions.\n")
	b.WriteString("Flagged transactions (one JSON object per line):\n")
	for _, tx := range rows {
		b.WriteString(redactedJSON(tx))
		b.WriteByte('\n')
	}
	return b.String()
}

// BuildChatPrompt renders a question together with its context window.
func BuildChatPrompt(question string, rows []ledger.Transaction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Context: %d flagged transactions (one JSON object per line):\n", len(rows))
	for _, tx := range rows {
		b.WriteString(redactedJSON(tx))
		b.WriteByte('\n')
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(strings.TrimSpace(question))
	b.WriteByte('\n')
	return b.String()
}

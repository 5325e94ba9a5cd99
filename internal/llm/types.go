package llm

import (
	"context"

	"github.com/sozercan/auditai-backend/internal/ledger"
)

// Explanation is the canonical reply to a single-transaction explain call.
type Explanation struct {
	Explanation       string `json:"explanation"`
	RiskLevel         string `json:"risk_level"`
	PossibleCause     string `json:"possible_cause"`
	RecommendedAction string `json:"recommended_action"`
}

// Backend is one way of reaching a model. Implementations classify their
// failures as *Error and never retry on their own.
type Backend interface {
	// Explain asks for a JSON explanation of one transaction.
	Explain(ctx context.Context, tx ledger.Transaction) (Explanation, error)
	// Complete returns free text for a system instruction and user prompt.
	Complete(ctx context.Context, system, user string) (string, error)
}

// Recorder receives LLM outcome counters. *metrics.Store satisfies it.
type Recorder interface {
	IncrementLLMCall(provider string)
	IncrementLLMRetry(provider string)
	IncrementLLMFailure(provider string)
}

type nopRecorder struct{}

func (nopRecorder) IncrementLLMCall(string)    {}
func (nopRecorder) IncrementLLMRetry(string)   {}
func (nopRecorder) IncrementLLMFailure(string) {}

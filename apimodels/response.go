package apimodels

import (
	"github.com/sozercan/auditai-backend/internal/ledger"
	"github.com/sozercan/auditai-backend/internal/llm"
)

type HealthResponse struct {
	Status      string `json:"status"`
	Service     string `json:"service"`
	LLMProvider string `json:"llm_provider"`
}

type AnomalyListResponse struct {
	// Total is the number of flagged transactions in the dataset
	Total int `json:"total"`

	Items []ledger.Transaction `json:"items"`
}

type ExplainResponse struct {
	TransactionID string `json:"transaction_id"`
	llm.Explanation
}

type AuditReportResponse struct {
	// Summary is the model-written report text
	Summary string `json:"summary"`

	// Risk counts cover every flagged transaction, not only the summarized subset
	TotalFlagged int `json:"total_flagged"`
	HighRisk     int `json:"high_risk"`
	MediumRisk   int `json:"medium_risk"`
	LowRisk      int `json:"low_risk"`
}

type ChatResponse struct {
	Answer string `json:"answer"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

package apimodels

import "github.com/sozercan/auditai-backend/internal/ledger"

type ExplainRequest struct {
	// TransactionID looks the transaction up in the dataset
	TransactionID *string `json:"transaction_id,omitempty"`

	// Transaction is an inline payload; it wins over the lookup when both are set
	Transaction *ledger.Transaction `json:"transaction,omitempty" validate:"omitempty"`
}

type AuditReportRequest struct {
	// MaxTransactions caps how many flagged rows are summarized
	MaxTransactions int `json:"max_transactions" validate:"min=1,max=500"`
}

type ChatRequest struct {
	// Question is the auditor's free-text question
	Question string `json:"question" validate:"required,notblank"`

	// MaxTransactions caps the context window sent with the question
	MaxTransactions int `json:"max_transactions" validate:"min=1,max=200"`
}

// Defaults applied before a request body is decoded.
const (
	DefaultReportTransactions = 50
	DefaultChatTransactions   = 30
)

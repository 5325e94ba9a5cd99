package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sozercan/auditai-backend/apimodels"
	"github.com/sozercan/auditai-backend/internal/ledger"
	"github.com/sozercan/auditai-backend/internal/llm"
)

// Error kinds returned by the Analyzer. The HTTP layer maps them to status codes.
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrLLMService     = errors.New("LLM service error")
)

// Error carries the client-facing detail for a failed operation.
type Error struct {
	Kind   error
	Detail string
}

func (e *Error) Error() string {
	return e.Detail
}

func (e *Error) Unwrap() error {
	return e.Kind
}

const (
	detailMismatch        = "transaction_id does not match request.transaction.transaction_id"
	detailMissingInput    = "Provide transaction_id or transaction payload"
	detailNotFound        = "Transaction not found"
	detailBlankQuestion   = "question must not be blank"
	llmServiceErrorPrefix = "LLM service error: "
)

// TransactionSource serves the flagged transactions.
type TransactionSource interface {
	List(ctx context.Context) ([]ledger.Transaction, error)
	Get(ctx context.Context, id string) (ledger.Transaction, bool, error)
}

// Assistant is the model-facing side. *llm.Client satisfies it.
type Assistant interface {
	Explain(ctx context.Context, tx ledger.Transaction) (llm.Explanation, error)
	Report(ctx context.Context, rows []ledger.Transaction) (string, error)
	Chat(ctx context.Context, question string, rows []ledger.Transaction, maxRows int) (string, error)
}

type Analyzer struct {
	source    TransactionSource
	assistant Assistant
}

func New(source TransactionSource, assistant Assistant) *Analyzer {
	return &Analyzer{
		source:    source,
		assistant: assistant,
	}
}

func (a *Analyzer) ListAnomalies(ctx context.Context) (*apimodels.AnomalyListResponse, error) {
	items, err := a.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load anomalies: %w", err)
	}
	return &apimodels.AnomalyListResponse{Total: len(items), Items: items}, nil
}

func (a *Analyzer) GetAnomaly(ctx context.Context, id string) (*ledger.Transaction, error) {
	tx, ok, err := a.source.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load anomalies: %w", err)
	}
	if !ok {
		return nil, &Error{Kind: ErrNotFound, Detail: detailNotFound}
	}
	return &tx, nil
}

// Explain resolves the transaction from the request and asks the assistant
// about it. Every validation failure is returned before the assistant is
// called.
func (a *Analyzer) Explain(ctx context.Context, req apimodels.ExplainRequest) (*apimodels.ExplainResponse, error) {
	// whitespace-only ids count as missing
	var id string
	if req.TransactionID != nil {
		id = strings.TrimSpace(*req.TransactionID)
	}

	if req.Transaction != nil && id != "" && req.Transaction.TransactionID != id {
		return nil, &Error{Kind: ErrInvalidRequest, Detail: detailMismatch}
	}

	var tx ledger.Transaction
	if req.Transaction != nil {
		tx = req.Transaction.WithDefaults()
	} else {
		if id == "" {
			return nil, &Error{Kind: ErrInvalidRequest, Detail: detailMissingInput}
		}
		found, err := a.GetAnomaly(ctx, id)
		if err != nil {
			return nil, err
		}
		tx = *found
	}

	slog.Info("Explaining transaction", "transaction_id", tx.TransactionID)
	start := time.Now()

	explanation, err := a.assistant.Explain(ctx, tx)
	if err != nil {
		slog.Error("Explanation failed", "transaction_id", tx.TransactionID, "error", err)
		return nil, llmServiceError(err)
	}

	slog.Debug("Explanation completed", "transaction_id", tx.TransactionID, "duration", time.Since(start))
	return &apimodels.ExplainResponse{
		TransactionID: tx.TransactionID,
		Explanation:   explanation,
	}, nil
}

// AuditReport summarizes the first MaxTransactions anomalies. Risk counts are
// taken over the whole dataset.
func (a *Analyzer) AuditReport(ctx context.Context, req apimodels.AuditReportRequest) (*apimodels.AuditReportResponse, error) {
	anomalies, err := a.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load anomalies: %w", err)
	}

	limit := req.MaxTransactions
	if limit <= 0 {
		limit = apimodels.DefaultReportTransactions
	}
	subset := anomalies[:min(limit, len(anomalies))]

	summary, err := a.assistant.Report(ctx, subset)
	if err != nil {
		slog.Error("Audit report failed", "rows", len(subset), "error", err)
		return nil, llmServiceError(err)
	}

	resp := &apimodels.AuditReportResponse{
		Summary:      summary,
		TotalFlagged: len(anomalies),
	}
	for _, tx := range anomalies {
		switch strings.ToLower(tx.RiskLevel) {
		case "high":
			resp.HighRisk++
		case "medium":
			resp.MediumRisk++
		case "low":
			resp.LowRisk++
		}
	}
	return resp, nil
}

func (a *Analyzer) Chat(ctx context.Context, req apimodels.ChatRequest) (*apimodels.ChatResponse, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, &Error{Kind: ErrInvalidRequest, Detail: detailBlankQuestion}
	}

	anomalies, err := a.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load anomalies: %w", err)
	}

	limit := req.MaxTransactions
	if limit <= 0 {
		limit = apimodels.DefaultChatTransactions
	}

	answer, err := a.assistant.Chat(ctx, question, anomalies, limit)
	if err != nil {
		slog.Error("Chat failed", "error", err)
		return nil, llmServiceError(err)
	}
	return &apimodels.ChatResponse{Answer: answer}, nil
}

func llmServiceError(err error) error {
	return &Error{Kind: ErrLLMService, Detail: llmServiceErrorPrefix + err.Error()}
}

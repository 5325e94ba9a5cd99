package ledger

// Risk levels attached to a flagged transaction.
const (
	RiskLow     = "Low"
	RiskMedium  = "Medium"
	RiskHigh    = "High"
	RiskUnknown = "Unknown"
)

// Transaction is one ledger row as served to clients and sent to the LLM.
type Transaction struct {
	TransactionID string         `json:"transaction_id" validate:"required"`
	Amount        float64        `json:"amount"`
	Account       string         `json:"account"`
	AnomalyScore  float64        `json:"anomaly_score"`
	RiskLevel     string         `json:"risk_level"`
	Metadata      map[string]any `json:"metadata"`
}

// Dataset labels produced by the upstream labelling process.
const (
	labelRegular = "regular"
	labelLocal   = "local"
	labelGlobal  = "global"
)

var riskFromLabel = map[string]string{
	labelGlobal:  RiskHigh,
	labelLocal:   RiskMedium,
	labelRegular: RiskLow,
}

var scoreFromLabel = map[string]float64{
	labelGlobal:  0.95,
	labelLocal:   0.75,
	labelRegular: 0.05,
}

const defaultScore = 0.5

// WithDefaults fills the fields a client-supplied payload may leave empty.
func (t Transaction) WithDefaults() Transaction {
	if t.RiskLevel == "" {
		t.RiskLevel = RiskUnknown
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	return t
}

package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"
)

// Column names understood by the loader. The SAP-style names are fallbacks
// used by the synthetic accounting dataset.
const (
	colTransactionID = "transaction_id"
	colBELNR         = "BELNR"
	colAmount        = "amount"
	colDMBTR         = "DMBTR"
	colAccount       = "account"
	colHKONT         = "HKONT"
	colAnomalyScore  = "anomaly_score"
	colRiskLevel     = "risk_level"
	colLabel         = "label"
)

var reservedColumns = map[string]bool{
	colTransactionID: true,
	colAmount:        true,
	colAccount:       true,
	colAnomalyScore:  true,
	colRiskLevel:     true,
}

// Loader reads flagged transactions from a CSV file on every call.
type Loader struct {
	path  string
	group singleflight.Group
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// List returns every non-regular row of the dataset. A missing file yields an
// empty list. Concurrent calls share one read of the file.
func (l *Loader) List(ctx context.Context) ([]Transaction, error) {
	ch := l.group.DoChan(l.path, func() (interface{}, error) {
		return l.load()
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		shared := res.Val.([]Transaction)
		out := make([]Transaction, len(shared))
		copy(out, shared)
		return out, nil
	}
}

// Get looks up a flagged transaction by id.
func (l *Loader) Get(ctx context.Context, transactionID string) (Transaction, bool, error) {
	rows, err := l.List(ctx)
	if err != nil {
		return Transaction{}, false, err
	}
	for _, tx := range rows {
		if tx.TransactionID == transactionID {
			return tx, true, nil
		}
	}
	return Transaction{}, false, nil
}

func (l *Loader) load() ([]Transaction, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Dataset not found, serving no anomalies", "path", l.path)
			return []Transaction{}, nil
		}
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes a CSV stream with a header row into flagged transactions.
func Parse(r io.Reader) ([]Transaction, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return []Transaction{}, nil
		}
		return nil, fmt.Errorf("failed to read dataset header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	hasLabel := false
	for _, h := range header {
		if h == colLabel {
			hasLabel = true
		}
	}

	rows := []Transaction{}
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset line %d: %w", line, err)
		}

		row := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(record) {
				row[h] = record[i]
			}
		}
		if hasLabel && strings.EqualFold(strings.TrimSpace(row[colLabel]), labelRegular) {
			continue
		}

		tx, err := toTransaction(header, row)
		if err != nil {
			return nil, fmt.Errorf("dataset line %d: %w", line, err)
		}
		rows = append(rows, tx)
	}
	return rows, nil
}

func toTransaction(header []string, row map[string]string) (Transaction, error) {
	label := strings.ToLower(strings.TrimSpace(row[colLabel]))

	amount := 0.0
	if raw, ok := firstPresent(row, colAmount, colDMBTR); ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Transaction{}, fmt.Errorf("invalid amount %q: %w", raw, err)
		}
		amount = v
	}

	score, ok := scoreFromLabel[label]
	if !ok {
		score = defaultScore
	}
	if raw, ok := firstPresent(row, colAnomalyScore); ok {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return Transaction{}, fmt.Errorf("invalid anomaly_score %q: %w", raw, err)
		}
		score = v
	}

	risk, ok := riskFromLabel[label]
	if !ok {
		risk = RiskUnknown
	}
	if raw, ok := firstPresent(row, colRiskLevel); ok {
		risk = raw
	}

	account := "unknown"
	if raw, ok := firstPresent(row, colAccount, colHKONT); ok {
		account = raw
	}

	id, _ := firstPresent(row, colTransactionID, colBELNR)

	metadata := make(map[string]any, len(row))
	for _, h := range header {
		if reservedColumns[h] {
			continue
		}
		metadata[h] = parseCell(row[h])
	}

	return Transaction{
		TransactionID: id,
		Amount:        amount,
		Account:       account,
		AnomalyScore:  score,
		RiskLevel:     risk,
		Metadata:      metadata,
	}, nil
}

// firstPresent returns the first non-empty value among the given columns.
func firstPresent(row map[string]string, columns ...string) (string, bool) {
	for _, c := range columns {
		if v := strings.TrimSpace(row[c]); v != "" {
			return v, true
		}
	}
	return "", false
}

// parseCell keeps numeric cells numeric in metadata; empty cells become null.
func parseCell(raw string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !isNonFinite(v) {
		return f
	}
	return v
}

func isNonFinite(v string) bool {
	switch strings.ToLower(strings.TrimLeft(v, "+-")) {
	case "inf", "infinity", "nan":
		return true
	}
	return false
}

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sozercan/auditai-backend/apimodels"
)

func writeDataset(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "anomalies.csv")
	require.NoError(t, os.WriteFile(path, []byte("BELNR,DMBTR,HKONT,label\n"+
		"1001,10.0,4000,regular\n"+
		"1002,20.0,5000,global\n"), 0o600))
	return path
}

func TestAnomaliesCommand(t *testing.T) {
	t.Setenv("ANOMALIES_CSV_PATH", writeDataset(t))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"anomalies", "--log-level", "error"})
	require.NoError(t, cmd.Execute())

	var resp apimodels.AnomalyListResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &resp))
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "1002", resp.Items[0].TransactionID)
	assert.Equal(t, "High", resp.Items[0].RiskLevel)
}

func TestExplainCommandUnsupportedProvider(t *testing.T) {
	t.Setenv("ANOMALIES_CSV_PATH", writeDataset(t))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"explain", "1002", "--provider", "bogus", "--log-level", "error"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM service error")
	assert.Contains(t, err.Error(), "Unsupported LLM provider")
}

func TestExplainCommandUnknownTransaction(t *testing.T) {
	t.Setenv("ANOMALIES_CSV_PATH", writeDataset(t))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"explain", "9999", "--log-level", "error"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, "Transaction not found", err.Error())
}

func TestExplainCommandRequiresID(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"explain"})
	assert.Error(t, cmd.Execute())
}

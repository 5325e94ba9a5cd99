package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/sozercan/auditai-backend/apimodels"
)

func anomaliesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "anomalies",
		Short: "List flagged transactions from the dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := a.analyzer.ListAnomalies(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func explainCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <transaction_id>",
		Short: "Ask the configured LLM to explain one flagged transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			resp, err := a.analyzer.Explain(cmd.Context(), apimodels.ExplainRequest{TransactionID: &id})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

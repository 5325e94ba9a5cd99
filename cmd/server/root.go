package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sozercan/auditai-backend/internal/analyzer"
	"github.com/sozercan/auditai-backend/internal/config"
	"github.com/sozercan/auditai-backend/internal/ledger"
	"github.com/sozercan/auditai-backend/internal/llm"
	"github.com/sozercan/auditai-backend/internal/metrics"
	"github.com/sozercan/auditai-backend/internal/telemetry"
)

// app holds the components every subcommand shares.
type app struct {
	cfg             *config.Config
	store           *metrics.Store
	analyzer        *analyzer.Analyzer
	shutdownTracing func(context.Context) error
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	a := &app{}

	root := &cobra.Command{
		Use:           "auditai",
		Short:         "AI-powered ledger anomaly intelligence API",
		Long:          "auditai serves flagged ledger transactions and asks an LLM to explain, summarize and answer questions about them.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd, cfgFile)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if a.shutdownTracing == nil {
				return nil
			}
			return a.shutdownTracing(context.WithoutCancel(cmd.Context()))
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./auditai.yaml)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "log format (console, json)")
	root.PersistentFlags().String("port", "", "port to listen on")
	root.PersistentFlags().String("provider", "", "LLM provider (azure, openai, ollama)")

	root.AddCommand(serveCmd(a))
	root.AddCommand(anomaliesCmd(a))
	root.AddCommand(explainCmd(a))

	return root
}

func (a *app) init(cmd *cobra.Command, cfgFile string) error {
	cfg, err := config.LoadConfig(cfgFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := telemetry.SetupLogging(cfg.Logging); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	shutdown, err := telemetry.InitTracing(cmd.Context(), cfg.Tracing, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to setup tracing: %w", err)
	}

	store := metrics.NewStore()
	client := llm.New(cfg.LLM, store)

	a.cfg = cfg
	a.store = store
	a.analyzer = analyzer.New(ledger.NewLoader(cfg.Data.AnomaliesCSVPath), client)
	a.shutdownTracing = shutdown
	return nil
}

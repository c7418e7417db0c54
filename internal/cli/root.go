// Package cli implements the hazardctl command-line interface using Cobra.
// Each subcommand maps to one pipeline stage: submit, run, status, verify,
// aggregate, hazard, serve.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/agrimet-labs/climate-hazard-etl/internal/adapter/cds"
	"github.com/agrimet-labs/climate-hazard-etl/internal/config"
	"github.com/agrimet-labs/climate-hazard-etl/internal/manifest"
	"github.com/agrimet-labs/climate-hazard-etl/internal/observability"
	"github.com/agrimet-labs/climate-hazard-etl/internal/orchestrator"
)

var rootCmd = &cobra.Command{
	Use:   "hazardctl",
	Short: "hazardctl — ERA5 download batches and district hazard indicators",
	Long: `hazardctl drives the climate hazard pipeline: bulk ERA5 reanalysis
downloads with a resumable manifest, grid-to-district aggregation, and
hazard indicator tables for downstream statistical modelling.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app bundles the pieces every subcommand needs. Built once per invocation,
// closed by the subcommand that created it.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	store   *manifest.Store
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	store, err := manifest.Open(cfg.ManifestPath())
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, logger: logger, metrics: metrics, store: store}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Error("manifest close error", "error", err)
	}
}

// orchestrator wires the retrieval client and manifest into a batch driver.
func (a *app) orchestrator() *orchestrator.Orchestrator {
	client := cds.NewClient(a.cfg.CDSAPIURL, a.cfg.CDSAPIKey, a.cfg.PollInterval, a.logger, a.metrics)
	opts := orchestrator.Options{
		MaxConcurrent:     a.cfg.MaxConcurrentDownloads,
		RetryLimit:        a.cfg.RetryLimit,
		BackoffBase:       a.cfg.BackoffBase,
		BackoffMultiplier: a.cfg.BackoffMultiplier,
		BackoffMax:        a.cfg.BackoffMax,
		AttemptTimeout:    a.cfg.AttemptTimeout,
		DispatchDelay:     a.cfg.DispatchDelay,
		SubRequestMaxCost: a.cfg.SubRequestMaxCost,
		RawDir:            a.cfg.RawDir(),
		TempDir:           a.cfg.TempDir(),
	}
	return orchestrator.New(a.store, client, opts, a.logger, a.metrics)
}

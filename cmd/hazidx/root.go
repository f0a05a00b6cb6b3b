package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/tractworks/hazidx/internal/adapter/census"
	"github.com/tractworks/hazidx/internal/adapter/health"
	"github.com/tractworks/hazidx/internal/adapter/snapshot"
	"github.com/tractworks/hazidx/internal/config"
	"github.com/tractworks/hazidx/internal/domain"
	"github.com/tractworks/hazidx/internal/formula"
	"github.com/tractworks/hazidx/internal/frame"
	"github.com/tractworks/hazidx/internal/observability"
	"github.com/tractworks/hazidx/internal/pipeline"
	"github.com/tractworks/hazidx/internal/score"
)

var (
	cfgFile string

	flagState       string
	flagYear        int
	flagGeography   string
	flagVariables   string
	flagOutfile     string
	flagCacheDir    string
	flagAPIKey      string
	flagMetricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "hazidx",
	Short: "Pull statistical-agency tabular data and compute hazard index scores",
	Long: `hazidx pulls raw variables from the Census data API (or a local cache
when the API is unavailable), evaluates the alias formulas in the variables
table, ranks every indicator into percentiles, and writes one wide CSV per
run with geography columns first.`,
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "settings file (YAML); HAZIDX_* env vars override")

	rootCmd.Flags().StringVarP(&flagState, "state", "s", "66", "state or territory FIPS code")
	rootCmd.Flags().IntVarP(&flagYear, "year", "y", 2020, "data vintage year")
	rootCmd.Flags().StringVarP(&flagGeography, "geography", "g", "place", "API geography keyword (place, county, tract, ...)")
	rootCmd.Flags().StringVar(&flagVariables, "variables", "configs/variables.csv", "variables table with alias,dataset,expression columns")
	rootCmd.Flags().StringVarP(&flagOutfile, "outfile", "o", "hsi_output.csv", "destination CSV file")
	rootCmd.Flags().StringVar(&flagCacheDir, "cache-dir", "", "snapshot cache directory (overrides settings)")
	rootCmd.Flags().StringVar(&flagAPIKey, "api-key", "", "optional API key for higher quotas (overrides settings)")
	rootCmd.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "serve /healthz and /metrics on this address during the run")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if flagCacheDir != "" {
		cfg.CacheDir = flagCacheDir
	}
	if flagAPIKey != "" {
		cfg.APIKey = flagAPIKey
	}
	if flagMetricsAddr != "" {
		cfg.MetricsAddr = flagMetricsAddr
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	geo := domain.Geography{Level: flagGeography, State: flagState}
	if err := geo.Validate(); err != nil {
		return err
	}

	specs, err := loadSpecs(flagVariables)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	store, err := snapshot.NewStore(cfg.CacheDir, clock, logger)
	if err != nil {
		return err
	}
	client := census.NewClient(cfg.BaseURL, cfg.APIKey, cfg.HTTPTimeout, logger, metrics)
	runner := pipeline.New(client, store, logger, metrics, clock,
		score.Options{MinCompositeRanks: cfg.MinCompositeRanks})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := health.NewServer(cfg.MetricsAddr, runner, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	result, err := runner.Run(ctx, specs, pipeline.Params{Year: flagYear, Geography: geo})
	if err != nil {
		logger.Error("run aborted", "error", err)
		return err
	}

	if err := writeResult(result, flagOutfile); err != nil {
		return err
	}
	logger.Info("results written", "outfile", flagOutfile,
		"rows", result.NumRows(), "columns", len(result.Columns()))
	return nil
}

func loadSpecs(path string) ([]formula.Spec, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open variables table: %w", err)
	}
	defer fh.Close()
	return formula.Load(fh)
}

func writeResult(result *frame.Frame, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create outfile: %w", err)
	}
	if err := result.WriteCSV(out); err != nil {
		out.Close()
		return fmt.Errorf("write outfile: %w", err)
	}
	return out.Close()
}

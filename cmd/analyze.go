package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/great-insider/insightshield/internal/cache"
	"github.com/great-insider/insightshield/internal/catalog"
	"github.com/great-insider/insightshield/internal/classify"
	"github.com/great-insider/insightshield/internal/config"
	"github.com/great-insider/insightshield/internal/ingest"
	"github.com/great-insider/insightshield/internal/nvd"
	"github.com/great-insider/insightshield/internal/observability"
	"github.com/great-insider/insightshield/internal/pipeline"
	"github.com/great-insider/insightshield/internal/reporting"
	"github.com/great-insider/insightshield/internal/scoring"
)

// newAnalyzeCmd creates and configures the `analyze` command.
func newAnalyzeCmd() *cobra.Command {
	analyzeCmd := &cobra.Command{
		Use:   "analyze <scan-export.csv>",
		Short: "Enriches, scores, and ranks a vulnerability scan export",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags to their Viper keys so they override config-file
			// and environment values with the right precedence.
			if err := viper.BindPFlag("engine.concurrency", cmd.Flags().Lookup("concurrency")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// The context from Execute is signal-aware.
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			cfg.Run = config.RunConfig{
				InputPath:   args[0],
				KEVPath:     viper.GetString("kev"),
				Output:      viper.GetString("output"),
				Format:      viper.GetString("format"),
				ClearCache:  viper.GetBool("clear-cache"),
				Concurrency: cfg.Engine.Concurrency,
			}

			return runAnalyze(ctx, cfg, logger)
		},
	}

	analyzeCmd.Flags().String("kev", "", "path to the known-exploited vulnerabilities CSV feed")
	analyzeCmd.Flags().StringP("output", "o", "", "output path (default stdout)")
	analyzeCmd.Flags().StringP("format", "f", "json", "output format: json or csv")
	analyzeCmd.Flags().Bool("clear-cache", false, "invalidate the enrichment cache before the run")
	analyzeCmd.Flags().Int("concurrency", 0, "identifier resolution concurrency (overrides config)")

	return analyzeCmd
}

// runAnalyze wires the run's components and drives the pipeline.
func runAnalyze(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	findings, err := ingest.LoadFindings(cfg.Run.InputPath, logger)
	if err != nil {
		return err
	}
	if len(findings) == 0 {
		logger.Warn("Scan export contains no findings; nothing to do")
		return nil
	}

	store, err := openCacheStore(ctx, cfg)
	if err != nil {
		return err
	}
	enrichCache := cache.New(store, cfg.Cache, logger)
	defer enrichCache.Close()

	if cfg.Run.ClearCache {
		if err := enrichCache.Clear(ctx); err != nil {
			return fmt.Errorf("clearing enrichment cache: %w", err)
		}
		logger.Info("Enrichment cache cleared")
	}

	// Catalog failure degrades known-exploited detection for the whole
	// batch; it is a warning, never fatal.
	kev := catalog.New()
	var catalogWarning string
	if cfg.Run.KEVPath == "" {
		catalogWarning = "no known-exploited feed supplied"
		logger.Warn("No KEV feed supplied; known-exploited detection disabled")
	} else if err := kev.LoadCSV(cfg.Run.KEVPath, logger); err != nil {
		catalogWarning = err.Error()
		logger.Warn("Failed to load KEV feed; known-exploited detection disabled", zap.Error(err))
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.Fetcher.RateLimit), cfg.Fetcher.RateBurst)
	resolver := nvd.New(cfg.Fetcher, limiter, enrichCache, logger)

	p, err := pipeline.New(pipeline.Deps{
		Resolver:       resolver,
		Catalog:        kev,
		Scorer:         scoring.NewEngine(cfg.Scoring),
		Classifier:     classify.New(cfg.Classify),
		Concurrency:    cfg.Run.Concurrency,
		Logger:         logger,
		CatalogWarning: catalogWarning,
	})
	if err != nil {
		return err
	}

	result, err := p.Run(ctx, findings)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Run aborted by signal")
			return fmt.Errorf("run aborted by user signal")
		}
		return err
	}

	reporter, err := reporting.New(cfg.Run.Format, cfg.Run.Output)
	if err != nil {
		return err
	}
	defer reporter.Close()
	if err := reporter.Write(result); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	logger.Info("Analysis complete",
		zap.String("runID", result.RunID),
		zap.Int("findings", result.Stats.Findings),
		zap.Int("known_exploited", result.Stats.KnownExploited),
		zap.Int("degraded", result.Stats.DegradedRecords))
	return nil
}

// openCacheStore selects the configured cache backend.
func openCacheStore(ctx context.Context, cfg *config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "postgres":
		return cache.OpenPostgres(ctx, cfg.Cache.URL)
	default:
		path, err := cfg.Cache.ResolvePath()
		if err != nil {
			return nil, err
		}
		return cache.OpenSQLite(path)
	}
}

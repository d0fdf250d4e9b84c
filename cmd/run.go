package cmd

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/recourt/ingest/internal/clock/system"
	"github.com/recourt/ingest/internal/hash/sha256"
	"github.com/recourt/ingest/internal/id/uuid"
	"github.com/recourt/ingest/internal/ingest"
	"github.com/recourt/ingest/internal/logging"
	"github.com/recourt/ingest/internal/storage"
	"github.com/recourt/ingest/internal/storage/postgres"
)

// newRunCmd creates the 'run' subcommand, which drains the current snapshot
// of pending jobs and exits.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Processes all currently pending ingest jobs",
		Long: `Loads the pending job queue and processes each job in order: fetch the
decision PDF, deduplicate by content hash, analyze fresh documents and
normalize the structured output. Jobs queued while the run is in progress
are left for the next run.`,
		RunE: runRunCommand,
	}
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Metrics.Enabled {
		ingest.InitMetrics()
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	store, err := postgres.NewStore(ctx, postgres.StoreConfig{
		DSN:             cfg.DB.DSN,
		MaxConns:        cfg.DB.MaxConns,
		MinConns:        cfg.DB.MinConns,
		MaxConnLifetime: cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	blobs, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("init blob store: %w", err)
	}

	clk := system.New()
	ids := uuid.NewGenerator()
	hasher := sha256.New()

	fetcher := ingest.NewDocumentFetcher(cfg.FetchTimeout(), logger)
	analyzer := ingest.NewGeminiAnalyzer(blobs, ingest.GeminiConfig{
		APIKey:      cfg.Gemini.APIKey,
		Model:       cfg.Gemini.Model,
		Prompt:      cfg.Gemini.Prompt,
		BaseURL:     cfg.Gemini.BaseURL,
		Timeout:     cfg.GeminiTimeout(),
		MaxAttempts: cfg.Gemini.MaxAttempts,
	}, logger)
	normalizer := ingest.NewNormalizer(store, ids, clk, logger)
	dedup := ingest.NewDuplicateResolver(store, blobs, normalizer, logger)

	runner := ingest.NewRunner(store, blobs, fetcher, hasher, analyzer, dedup, normalizer, clk, logger)
	return runner.Run(ctx)
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics endpoint stopped", zap.Error(err))
	}
}

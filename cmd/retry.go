package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/recourt/ingest/internal/ingest"
	"github.com/recourt/ingest/internal/logging"
	"github.com/recourt/ingest/internal/storage/postgres"
)

type retryFlags struct {
	all        bool
	processing bool
	unsafeAll  bool
	jobID      string
}

// newRetryCmd creates the 'retry' subcommand, which moves stuck or failed
// jobs back into the pending queue.
func newRetryCmd() *cobra.Command {
	var flags retryFlags

	cmd := &cobra.Command{
		Use:   "retry",
		Short: "Requeues failed or stuck ingest jobs",
		Long: `Moves jobs back to pending so the next run picks them up.

  --all                     every errored job
  --all --processing        also jobs stuck in processing (use after a crash)
  --all --unsafe-all        also completed jobs (reprocesses finished cases)
  --job-id ID               one specific errored job`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRetryCommand(cmd, flags)
		},
	}

	cmd.Flags().BoolVar(&flags.all, "all", false, "requeue every errored job")
	cmd.Flags().BoolVar(&flags.processing, "processing", false, "with --all: also requeue processing jobs")
	cmd.Flags().BoolVar(&flags.unsafeAll, "unsafe-all", false, "with --all: also requeue done jobs")
	cmd.Flags().StringVar(&flags.jobID, "job-id", "", "requeue one errored job by ID")

	return cmd
}

// statusesFor maps the flag set to the statuses to requeue. Either --all
// (with optional widening modifiers) or --job-id must be given, never both;
// the single-job path returns no statuses.
func statusesFor(flags retryFlags) ([]ingest.JobStatus, error) {
	usage := errors.New("usage: --all [--processing] [--unsafe-all] | --job-id <id>")

	if flags.all && flags.jobID != "" {
		return nil, usage
	}
	if !flags.all && flags.jobID == "" {
		return nil, usage
	}
	if flags.jobID != "" && (flags.processing || flags.unsafeAll) {
		return nil, usage
	}

	if flags.jobID != "" {
		return nil, nil
	}

	statuses := []ingest.JobStatus{ingest.JobStatusError}
	if flags.processing {
		statuses = append(statuses, ingest.JobStatusProcessing)
	}
	if flags.unsafeAll {
		statuses = append(statuses, ingest.JobStatusDone)
	}
	return statuses, nil
}

func runRetryCommand(cmd *cobra.Command, flags retryFlags) error {
	statuses, err := statusesFor(flags)
	if err != nil {
		return err
	}

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

	var n int64
	if flags.jobID != "" {
		n, err = store.RequeueJob(ctx, flags.jobID)
	} else {
		n, err = store.RequeueJobs(ctx, statuses)
	}
	if err != nil {
		return fmt.Errorf("requeue: %w", err)
	}

	if flags.jobID != "" && n == 0 {
		logger.Warn("job not requeued: not found or not in error status",
			zap.String("job_id", flags.jobID),
		)
	}
	logger.Info("jobs requeued", zap.Int64("count", n))
	fmt.Fprintf(cmd.OutOrStdout(), "requeued %d job(s)\n", n)
	return nil
}

package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/recourt/ingest/internal/clock"
	"github.com/recourt/ingest/internal/storage"
	"github.com/recourt/ingest/internal/textnorm"
)

// Runner drives one pipeline run: it takes a snapshot of pending jobs and
// processes them strictly one at a time. The claim's conditional update is
// the only coordination with other runner instances; everything after a
// successful claim runs under the per-job failure boundary.
type Runner struct {
	store      Store
	blobs      storage.BlobStore
	fetcher    *DocumentFetcher
	hasher     Hasher
	analyzer   Analyzer
	dedup      *DuplicateResolver
	normalizer *Normalizer
	clock      clock.Clock
	logger     *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(
	store Store,
	blobs storage.BlobStore,
	fetcher *DocumentFetcher,
	hasher Hasher,
	analyzer Analyzer,
	dedup *DuplicateResolver,
	normalizer *Normalizer,
	clk clock.Clock,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		store:      store,
		blobs:      blobs,
		fetcher:    fetcher,
		hasher:     hasher,
		analyzer:   analyzer,
		dedup:      dedup,
		normalizer: normalizer,
		clock:      clk,
		logger:     logger,
	}
}

// Run processes the current snapshot of pending jobs in queue order. Jobs
// queued after the snapshot wait for the next run. Errors inside a job are
// recorded on that job; errors touching the store outside the per-job
// boundary abort the run.
func (r *Runner) Run(ctx context.Context) error {
	jobs, err := r.store.LoadPendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("load pending jobs: %w", err)
	}
	r.logger.Info("pending jobs loaded", zap.Int("count", len(jobs)))

	for _, job := range jobs {
		startedAt := r.clock.Now()
		r.logger.Info("start job",
			zap.String("job_id", job.IngestJobID),
			zap.String("case_id", job.CaseID),
			zap.String("incident_id", job.CourtIncidentID),
			zap.String("decision_date", job.DecisionDate),
		)

		claimed, err := r.store.ClaimJob(ctx, job.IngestJobID, startedAt)
		if err != nil {
			return fmt.Errorf("claim job %s: %w", job.IngestJobID, err)
		}
		if !claimed {
			r.logger.Info("skip job: already claimed", zap.String("job_id", job.IngestJobID))
			recordJob("skipped")
			continue
		}

		if perr := r.processJob(ctx, job, startedAt); perr != nil {
			recordJob("error")
			msg := perr.Error()
			if err := r.mark(ctx, job, startedAt, JobStatusError, &msg); err != nil {
				return err
			}
			continue
		}
		recordJob("done")
		if err := r.mark(ctx, job, startedAt, JobStatusDone, nil); err != nil {
			return err
		}
	}
	return nil
}

// processJob is the per-job failure boundary: every returned error becomes
// the job's persisted error_message.
func (r *Runner) processJob(ctx context.Context, job PendingJob, startedAt time.Time) error {
	pdf, err := r.fetcher.Fetch(ctx, job.PDFURL)
	if err != nil {
		return err
	}
	hash := r.hasher.Hash(pdf)
	r.logger.Info("document fetched",
		zap.String("job_id", job.IngestJobID),
		zap.Int("bytes", len(pdf)),
		zap.String("hash", hash),
	)

	dupID, found, err := r.dedup.FindDuplicate(ctx, hash, job.CaseID)
	if err != nil {
		return fmt.Errorf("find duplicate: %w", err)
	}
	if found {
		recordDedup("hit")
		if r.dedup.TryReuse(ctx, job, hash, dupID, startedAt) {
			recordDedup("reuse")
			return nil
		}
	} else {
		recordDedup("miss")
	}

	pdfKey := fmt.Sprintf("pdfs/%s/%s.pdf", textnorm.KeySegment(job.CourtIncidentID), job.DecisionDate)
	if _, err := r.blobs.PutObject(ctx, pdfKey, "application/pdf", pdf); err != nil {
		return fmt.Errorf("store document: %w", err)
	}
	if err := r.store.SetCasePDFHash(ctx, job.CaseID, hash); err != nil {
		return fmt.Errorf("stamp pdf hash: %w", err)
	}

	out, keys, err := r.analyzer.Analyze(ctx, job, pdf, startedAt)
	if err != nil {
		return err
	}
	if err := r.store.InsertAiOutput(ctx, job.CaseID, keys, startedAt); err != nil {
		return fmt.Errorf("record provenance: %w", err)
	}
	if err := r.normalizer.Normalize(ctx, job.CaseID, out); err != nil {
		return err
	}
	return nil
}

// mark records the terminal status using the claim stamp as the token. A
// no-op means the job was reclaimed elsewhere; that instance owns the final
// word, so the result is logged and dropped.
func (r *Runner) mark(ctx context.Context, job PendingJob, claimedAt time.Time, status JobStatus, errorMessage *string) error {
	completedAt := r.clock.Now()
	applied, err := r.store.MarkJob(ctx, job.IngestJobID, claimedAt, status, errorMessage, completedAt)
	if err != nil {
		return fmt.Errorf("mark job %s: %w", job.IngestJobID, err)
	}
	if !applied {
		r.logger.Warn("job reclaimed elsewhere, terminal status not applied",
			zap.String("job_id", job.IngestJobID),
			zap.String("status", string(status)),
		)
		return nil
	}
	if status == JobStatusError {
		r.logger.Error("done job",
			zap.String("job_id", job.IngestJobID),
			zap.String("status", string(status)),
			zap.Stringp("error", errorMessage),
		)
		return nil
	}
	r.logger.Info("done job",
		zap.String("job_id", job.IngestJobID),
		zap.String("status", string(status)),
	)
	return nil
}

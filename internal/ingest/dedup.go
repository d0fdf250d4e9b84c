package ingest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/recourt/ingest/internal/storage"
)

// DuplicateResolver detects cases whose source document was already analyzed
// and reuses the stored analysis instead of invoking the service again.
// Reuse is best-effort: any failure is a cache miss, never a job error.
type DuplicateResolver struct {
	store      Store
	blobs      storage.BlobStore
	normalizer *Normalizer
	logger     *zap.Logger
}

// NewDuplicateResolver creates a DuplicateResolver.
func NewDuplicateResolver(store Store, blobs storage.BlobStore, normalizer *Normalizer, logger *zap.Logger) *DuplicateResolver {
	return &DuplicateResolver{
		store:      store,
		blobs:      blobs,
		normalizer: normalizer,
		logger:     logger,
	}
}

// FindDuplicate looks up another case already carrying the same document hash.
func (d *DuplicateResolver) FindDuplicate(ctx context.Context, pdfHash, excludeCaseID string) (string, bool, error) {
	return d.store.FindDuplicateCase(ctx, pdfHash, excludeCaseID)
}

// TryReuse loads the duplicate case's stored output, validates it, and if it
// still conforms, stamps the current case's hash, copies the provenance
// record (same object keys, not copies of the objects) and normalizes the
// reused data. Returns false on any failure, signaling the caller to fall
// through to a fresh analysis.
func (d *DuplicateResolver) TryReuse(ctx context.Context, job PendingJob, pdfHash, duplicateCaseID string, stamp time.Time) bool {
	keys, found, err := d.store.GetAiOutput(ctx, duplicateCaseID)
	if err != nil || !found {
		d.logger.Debug("no reusable analysis for duplicate",
			zap.String("duplicate_case_id", duplicateCaseID),
			zap.Error(err),
		)
		return false
	}

	raw, err := d.blobs.GetObject(ctx, keys.OutputKey)
	if err != nil {
		d.logger.Warn("fetch stored output failed",
			zap.String("output_key", keys.OutputKey),
			zap.Error(err),
		)
		return false
	}

	out, err := ParseStructuredOutput(raw)
	if err != nil {
		d.logger.Warn("stored output no longer conforms to schema",
			zap.String("output_key", keys.OutputKey),
			zap.Error(err),
		)
		return false
	}

	d.logger.Info("reuse analysis from duplicate case",
		zap.String("case_id", job.CaseID),
		zap.String("duplicate_case_id", duplicateCaseID),
	)

	if err := d.store.SetCasePDFHash(ctx, job.CaseID, pdfHash); err != nil {
		d.logger.Warn("stamp pdf hash failed", zap.Error(err))
		return false
	}
	if err := d.store.InsertAiOutput(ctx, job.CaseID, keys, stamp); err != nil {
		d.logger.Warn("copy provenance record failed", zap.Error(err))
		return false
	}
	if err := d.normalizer.Normalize(ctx, job.CaseID, out); err != nil {
		d.logger.Warn("normalize reused output failed", zap.Error(err))
		return false
	}
	return true
}

// Package ingest implements the case ingest pipeline: claiming queued jobs,
// fetching and hashing source PDFs, deduplicating identical documents,
// invoking the external analysis service and normalizing its structured
// output into the relational store.
package ingest

import (
	"context"
	"time"
)

// JobStatus enumerates the ingest job state machine.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusError      JobStatus = "error"
)

// PendingJob is one unit of ingest work joined with its case row.
type PendingJob struct {
	IngestJobID     string
	CaseID          string
	CourtIncidentID string
	CaseTitle       string
	DecisionDate    string
	CourtName       *string
	DetailURL       string
	PDFURL          string
}

// AiOutputKeys is the provenance record of one analysis: content-store keys
// for the exact request, response and output objects.
type AiOutputKeys struct {
	OutputKey   string
	RequestKey  string
	ResponseKey string
}

// OutcomeRow is the outcomes table row owned jointly by crawl and ingest.
// Ingest fills MainText; OutcomeType and Result belong to whichever stage
// wrote first.
type OutcomeRow struct {
	CaseID      string
	OutcomeType string
	MainText    string
	Result      string
	CreatedAt   time.Time
}

// CaseExplanationRow carries the generated narrative for a case. Slices stay
// typed here; the store serializes them at the storage boundary.
type CaseExplanationRow struct {
	CaseID            string
	Summary           string
	Background        string
	Issues            []string
	Reasoning         []string
	ReasoningMarkdown *string
	Impact            string
	ImpactedParties   []string
	WhatWeLearned     string
	Glossary          []GlossaryEntry
	CreatedAt         time.Time
}

// CaseJudgeRow records one judge's opinion on one case.
type CaseJudgeRow struct {
	CaseID               string
	JudgeID              string
	SupplementaryOpinion *string
	OpinionSummary       *string
	OpinionStance        string
	CreatedAt            time.Time
}

// Store is the relational persistence surface the pipeline depends on.
// The conditional updates (ClaimJob, MarkJob) are the pipeline's only
// concurrency primitives; everything else is an idempotent write.
type Store interface {
	// LoadPendingJobs returns the snapshot of pending jobs ordered by queue time.
	LoadPendingJobs(ctx context.Context) ([]PendingJob, error)

	// ClaimJob transitions pending→processing, stamping startedAt and clearing
	// the error message. Returns false when another process already claimed it.
	ClaimJob(ctx context.Context, jobID string, startedAt time.Time) (bool, error)

	// MarkJob records the terminal status. The claim stamp acts as a token:
	// only the run that claimed the job may finalize it. Returns false when the
	// job was reclaimed elsewhere and the update matched nothing.
	MarkJob(ctx context.Context, jobID string, claimedAt time.Time, status JobStatus, errorMessage *string, completedAt time.Time) (bool, error)

	// FindDuplicateCase returns another case already carrying the same
	// document hash, if any.
	FindDuplicateCase(ctx context.Context, pdfHash, excludeCaseID string) (string, bool, error)

	// GetAiOutput returns the most recent provenance record for a case.
	GetAiOutput(ctx context.Context, caseID string) (AiOutputKeys, bool, error)

	// InsertAiOutput appends a provenance record.
	InsertAiOutput(ctx context.Context, caseID string, keys AiOutputKeys, createdAt time.Time) error

	// SetCasePDFHash stamps the content hash on the case row.
	SetCasePDFHash(ctx context.Context, caseID, pdfHash string) error

	// SetCaseTitleShort stores the generated short title.
	SetCaseTitleShort(ctx context.Context, caseID, title string) error

	// GetOutcome reads the existing outcome_type/result for a case.
	GetOutcome(ctx context.Context, caseID string) (outcomeType, result string, found bool, err error)

	// UpsertOutcome inserts the outcome row, or on conflict updates main_text only.
	UpsertOutcome(ctx context.Context, row OutcomeRow) error

	// InsertCaseExplanation inserts the explanation, ignoring conflicts: a case
	// is explained exactly once.
	InsertCaseExplanation(ctx context.Context, row CaseExplanationRow) error

	// EnsureJudge creates the judge if the normalized name is new and returns
	// the canonical judge ID either way. The unique constraint on the
	// normalized name arbitrates concurrent creates.
	EnsureJudge(ctx context.Context, candidateID, displayName, normalizedName string, createdAt time.Time) (string, error)

	// InsertCaseJudge inserts the per-case opinion row, ignoring conflicts on
	// (case_id, judge_id).
	InsertCaseJudge(ctx context.Context, row CaseJudgeRow) error

	// RequeueJobs moves every job in the given statuses back to pending,
	// clearing timestamps and the error message. Returns the affected count.
	RequeueJobs(ctx context.Context, statuses []JobStatus) (int64, error)

	// RequeueJob moves a single job back to pending, but only from error.
	RequeueJob(ctx context.Context, jobID string) (int64, error)
}

// Hasher digests document bytes into the opaque dedup key.
type Hasher interface {
	Hash(data []byte) string
}

// IDGenerator mints identifiers for new rows.
type IDGenerator interface {
	NewID() (string, error)
}

// Analyzer invokes the external document-understanding service and persists
// the audit trail, returning the validated output and its provenance keys.
type Analyzer interface {
	Analyze(ctx context.Context, job PendingJob, pdfBytes []byte, stamp time.Time) (*StructuredOutput, AiOutputKeys, error)
}

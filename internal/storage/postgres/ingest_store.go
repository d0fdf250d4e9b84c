// Package postgres provides the pgx-backed relational store for the ingest
// pipeline. Claiming and finalizing jobs are conditional single-statement
// updates; the database's row arbitration is the pipeline's only
// concurrency primitive.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/recourt/ingest/internal/ingest"
)

// StoreConfig controls the Postgres connection pool.
type StoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store implements ingest.Store on a pgx connection pool.
type Store struct {
	pool pgxPool
}

// NewStore connects a pool using the provided config.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStoreWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// LoadPendingJobs returns the snapshot of pending jobs joined with their
// cases, in queue order.
func (s *Store) LoadPendingJobs(ctx context.Context) ([]ingest.PendingJob, error) {
	rows, err := s.pool.Query(ctx, `
SELECT
	j.ingest_job_id,
	c.case_id,
	c.court_incident_id,
	c.case_title,
	c.decision_date,
	c.court_name,
	c.detail_url,
	c.pdf_url
FROM ingest_jobs j
JOIN cases c ON c.case_id = j.case_id
WHERE j.status = 'pending'
ORDER BY j.queued_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("select pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []ingest.PendingJob
	for rows.Next() {
		var job ingest.PendingJob
		if err := rows.Scan(
			&job.IngestJobID,
			&job.CaseID,
			&job.CourtIncidentID,
			&job.CaseTitle,
			&job.DecisionDate,
			&job.CourtName,
			&job.DetailURL,
			&job.PDFURL,
		); err != nil {
			return nil, fmt.Errorf("scan pending job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending jobs: %w", err)
	}
	return jobs, nil
}

// ClaimJob transitions one job pending→processing. Zero affected rows means
// another process won the claim.
func (s *Store) ClaimJob(ctx context.Context, jobID string, startedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE ingest_jobs
SET status = 'processing', started_at = $2, error_message = NULL
WHERE ingest_job_id = $1 AND status = 'pending'`,
		jobID, startedAt)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkJob finalizes a job. The claim stamp is the token: the update matches
// only while this run still owns the job.
func (s *Store) MarkJob(ctx context.Context, jobID string, claimedAt time.Time, status ingest.JobStatus, errorMessage *string, completedAt time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE ingest_jobs
SET status = $3, completed_at = $4, error_message = $5
WHERE ingest_job_id = $1 AND status = 'processing' AND started_at = $2`,
		jobID, claimedAt, string(status), completedAt, errorMessage)
	if err != nil {
		return false, fmt.Errorf("mark job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindDuplicateCase returns another case with the same document hash.
func (s *Store) FindDuplicateCase(ctx context.Context, pdfHash, excludeCaseID string) (string, bool, error) {
	var caseID string
	err := s.pool.QueryRow(ctx, `
SELECT case_id FROM cases
WHERE pdf_hash = $1 AND case_id <> $2
LIMIT 1`,
		pdfHash, excludeCaseID).Scan(&caseID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("find duplicate case: %w", err)
	}
	return caseID, true, nil
}

// GetAiOutput returns the latest provenance record for a case.
func (s *Store) GetAiOutput(ctx context.Context, caseID string) (ingest.AiOutputKeys, bool, error) {
	var keys ingest.AiOutputKeys
	err := s.pool.QueryRow(ctx, `
SELECT output_key, request_key, response_key
FROM ai_outputs
WHERE case_id = $1
ORDER BY created_at DESC
LIMIT 1`,
		caseID).Scan(&keys.OutputKey, &keys.RequestKey, &keys.ResponseKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return ingest.AiOutputKeys{}, false, nil
	}
	if err != nil {
		return ingest.AiOutputKeys{}, false, fmt.Errorf("get ai output: %w", err)
	}
	return keys, true, nil
}

// InsertAiOutput appends a provenance record.
func (s *Store) InsertAiOutput(ctx context.Context, caseID string, keys ingest.AiOutputKeys, createdAt time.Time) error {
	if _, err := s.pool.Exec(ctx, `
INSERT INTO ai_outputs (case_id, output_key, request_key, response_key, created_at)
VALUES ($1, $2, $3, $4, $5)`,
		caseID, keys.OutputKey, keys.RequestKey, keys.ResponseKey, createdAt); err != nil {
		return fmt.Errorf("insert ai output: %w", err)
	}
	return nil
}

// SetCasePDFHash stamps the content hash on the case row.
func (s *Store) SetCasePDFHash(ctx context.Context, caseID, pdfHash string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE cases SET pdf_hash = $2 WHERE case_id = $1`,
		caseID, pdfHash); err != nil {
		return fmt.Errorf("set pdf hash: %w", err)
	}
	return nil
}

// SetCaseTitleShort stores the generated short title.
func (s *Store) SetCaseTitleShort(ctx context.Context, caseID, title string) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE cases SET case_title_short = $2 WHERE case_id = $1`,
		caseID, title); err != nil {
		return fmt.Errorf("set case title: %w", err)
	}
	return nil
}

// GetOutcome reads the existing outcome_type/result for a case.
func (s *Store) GetOutcome(ctx context.Context, caseID string) (string, string, bool, error) {
	var outcomeType, result string
	err := s.pool.QueryRow(ctx,
		`SELECT outcome_type, result FROM outcomes WHERE case_id = $1`,
		caseID).Scan(&outcomeType, &result)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("get outcome: %w", err)
	}
	return outcomeType, result, true, nil
}

// UpsertOutcome inserts the outcome row; on conflict only main_text changes,
// so whichever stage wrote the basic fields first keeps them.
func (s *Store) UpsertOutcome(ctx context.Context, row ingest.OutcomeRow) error {
	if _, err := s.pool.Exec(ctx, `
INSERT INTO outcomes (case_id, outcome_type, main_text, result, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (case_id) DO UPDATE SET main_text = EXCLUDED.main_text`,
		row.CaseID, row.OutcomeType, row.MainText, row.Result, row.CreatedAt); err != nil {
		return fmt.Errorf("upsert outcome: %w", err)
	}
	return nil
}

// InsertCaseExplanation inserts the explanation row once per case. The typed
// slices are serialized here, at the storage boundary.
func (s *Store) InsertCaseExplanation(ctx context.Context, row ingest.CaseExplanationRow) error {
	issuesJSON, err := json.Marshal(row.Issues)
	if err != nil {
		return fmt.Errorf("marshal issues: %w", err)
	}
	reasoningJSON, err := json.Marshal(row.Reasoning)
	if err != nil {
		return fmt.Errorf("marshal reasoning: %w", err)
	}
	partiesJSON, err := json.Marshal(row.ImpactedParties)
	if err != nil {
		return fmt.Errorf("marshal impacted parties: %w", err)
	}
	glossaryJSON, err := json.Marshal(row.Glossary)
	if err != nil {
		return fmt.Errorf("marshal glossary: %w", err)
	}

	if _, err := s.pool.Exec(ctx, `
INSERT INTO case_explanations (
	case_id,
	summary,
	background,
	issues_json,
	reasoning_json,
	reasoning_markdown,
	impact,
	impacted_parties_json,
	what_we_learned,
	glossary_json,
	created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (case_id) DO NOTHING`,
		row.CaseID,
		row.Summary,
		row.Background,
		issuesJSON,
		reasoningJSON,
		row.ReasoningMarkdown,
		row.Impact,
		partiesJSON,
		row.WhatWeLearned,
		glossaryJSON,
		row.CreatedAt); err != nil {
		return fmt.Errorf("insert explanation: %w", err)
	}
	return nil
}

// EnsureJudge inserts the judge if its normalized name is new and returns
// the canonical ID. The unique constraint arbitrates concurrent creates;
// the re-read after the insert sees whichever row won.
func (s *Store) EnsureJudge(ctx context.Context, candidateID, displayName, normalizedName string, createdAt time.Time) (string, error) {
	if _, err := s.pool.Exec(ctx, `
INSERT INTO judges (judge_id, judge_name, judge_name_normalized, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (judge_name_normalized) DO NOTHING`,
		candidateID, displayName, normalizedName, createdAt); err != nil {
		return "", fmt.Errorf("insert judge: %w", err)
	}

	var judgeID string
	if err := s.pool.QueryRow(ctx,
		`SELECT judge_id FROM judges WHERE judge_name_normalized = $1`,
		normalizedName).Scan(&judgeID); err != nil {
		return "", fmt.Errorf("select judge: %w", err)
	}
	return judgeID, nil
}

// InsertCaseJudge records one judge's opinion on one case, once.
func (s *Store) InsertCaseJudge(ctx context.Context, row ingest.CaseJudgeRow) error {
	if _, err := s.pool.Exec(ctx, `
INSERT INTO case_judges (case_id, judge_id, supplementary_opinion, opinion_summary, opinion_stance, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (case_id, judge_id) DO NOTHING`,
		row.CaseID,
		row.JudgeID,
		row.SupplementaryOpinion,
		row.OpinionSummary,
		row.OpinionStance,
		row.CreatedAt); err != nil {
		return fmt.Errorf("insert case judge: %w", err)
	}
	return nil
}

// RequeueJobs moves every job in the given statuses back to pending.
func (s *Store) RequeueJobs(ctx context.Context, statuses []ingest.JobStatus) (int64, error) {
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE ingest_jobs
SET status = 'pending', error_message = NULL, started_at = NULL, completed_at = NULL
WHERE status = ANY($1)`,
		values)
	if err != nil {
		return 0, fmt.Errorf("requeue jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// RequeueJob moves a single errored job back to pending. A job in any other
// status is left untouched.
func (s *Store) RequeueJob(ctx context.Context, jobID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
UPDATE ingest_jobs
SET status = 'pending', error_message = NULL, started_at = NULL, completed_at = NULL
WHERE ingest_job_id = $1 AND status = 'error'`,
		jobID)
	if err != nil {
		return 0, fmt.Errorf("requeue job: %w", err)
	}
	return tag.RowsAffected(), nil
}

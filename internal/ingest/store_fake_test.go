package ingest

import (
	"context"
	"fmt"
	"time"
)

// fakeClock returns a fixed instant so stamps are assertable.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// fakeIDs mints sequential IDs.
type fakeIDs struct {
	n int
}

func (f *fakeIDs) NewID() (string, error) {
	f.n++
	return fmt.Sprintf("id-%d", f.n), nil
}

type fakeJob struct {
	status       JobStatus
	startedAt    time.Time
	completedAt  time.Time
	errorMessage *string
}

// fakeStore is an in-memory Store with the same arbitration semantics as the
// real one: conditional claim/mark, insert-or-ignore writes, unique judges.
type fakeStore struct {
	pending      []PendingJob
	jobs         map[string]*fakeJob
	hashToCase   map[string]string
	casePDFHash  map[string]string
	caseTitle    map[string]string
	aiOutputs    map[string][]AiOutputKeys
	outcomes     map[string]OutcomeRow
	explanations map[string]CaseExplanationRow
	judgesByNorm map[string]string
	caseJudges   map[string]CaseJudgeRow

	failClaim bool
	errOn     string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:         map[string]*fakeJob{},
		hashToCase:   map[string]string{},
		casePDFHash:  map[string]string{},
		caseTitle:    map[string]string{},
		aiOutputs:    map[string][]AiOutputKeys{},
		outcomes:     map[string]OutcomeRow{},
		explanations: map[string]CaseExplanationRow{},
		judgesByNorm: map[string]string{},
		caseJudges:   map[string]CaseJudgeRow{},
	}
}

func (s *fakeStore) addPending(job PendingJob) {
	s.pending = append(s.pending, job)
	s.jobs[job.IngestJobID] = &fakeJob{status: JobStatusPending}
}

func (s *fakeStore) fail(op string) error {
	if s.errOn == op {
		return fmt.Errorf("forced %s failure", op)
	}
	return nil
}

func (s *fakeStore) LoadPendingJobs(_ context.Context) ([]PendingJob, error) {
	if err := s.fail("load"); err != nil {
		return nil, err
	}
	out := make([]PendingJob, len(s.pending))
	copy(out, s.pending)
	return out, nil
}

func (s *fakeStore) ClaimJob(_ context.Context, jobID string, startedAt time.Time) (bool, error) {
	if err := s.fail("claim"); err != nil {
		return false, err
	}
	if s.failClaim {
		return false, nil
	}
	job, ok := s.jobs[jobID]
	if !ok || job.status != JobStatusPending {
		return false, nil
	}
	job.status = JobStatusProcessing
	job.startedAt = startedAt
	job.errorMessage = nil
	return true, nil
}

func (s *fakeStore) MarkJob(_ context.Context, jobID string, claimedAt time.Time, status JobStatus, errorMessage *string, completedAt time.Time) (bool, error) {
	if err := s.fail("mark"); err != nil {
		return false, err
	}
	job, ok := s.jobs[jobID]
	if !ok || job.status != JobStatusProcessing || !job.startedAt.Equal(claimedAt) {
		return false, nil
	}
	job.status = status
	job.errorMessage = errorMessage
	job.completedAt = completedAt
	return true, nil
}

func (s *fakeStore) FindDuplicateCase(_ context.Context, pdfHash, excludeCaseID string) (string, bool, error) {
	if err := s.fail("find_duplicate"); err != nil {
		return "", false, err
	}
	caseID, ok := s.hashToCase[pdfHash]
	if !ok || caseID == excludeCaseID {
		return "", false, nil
	}
	return caseID, true, nil
}

func (s *fakeStore) GetAiOutput(_ context.Context, caseID string) (AiOutputKeys, bool, error) {
	if err := s.fail("get_ai_output"); err != nil {
		return AiOutputKeys{}, false, err
	}
	outputs := s.aiOutputs[caseID]
	if len(outputs) == 0 {
		return AiOutputKeys{}, false, nil
	}
	return outputs[len(outputs)-1], true, nil
}

func (s *fakeStore) InsertAiOutput(_ context.Context, caseID string, keys AiOutputKeys, _ time.Time) error {
	if err := s.fail("insert_ai_output"); err != nil {
		return err
	}
	s.aiOutputs[caseID] = append(s.aiOutputs[caseID], keys)
	return nil
}

func (s *fakeStore) SetCasePDFHash(_ context.Context, caseID, pdfHash string) error {
	if err := s.fail("set_pdf_hash"); err != nil {
		return err
	}
	s.casePDFHash[caseID] = pdfHash
	s.hashToCase[pdfHash] = caseID
	return nil
}

func (s *fakeStore) SetCaseTitleShort(_ context.Context, caseID, title string) error {
	if err := s.fail("set_title"); err != nil {
		return err
	}
	s.caseTitle[caseID] = title
	return nil
}

func (s *fakeStore) GetOutcome(_ context.Context, caseID string) (string, string, bool, error) {
	if err := s.fail("get_outcome"); err != nil {
		return "", "", false, err
	}
	row, ok := s.outcomes[caseID]
	if !ok {
		return "", "", false, nil
	}
	return row.OutcomeType, row.Result, true, nil
}

func (s *fakeStore) UpsertOutcome(_ context.Context, row OutcomeRow) error {
	if err := s.fail("upsert_outcome"); err != nil {
		return err
	}
	if existing, ok := s.outcomes[row.CaseID]; ok {
		existing.MainText = row.MainText
		s.outcomes[row.CaseID] = existing
		return nil
	}
	s.outcomes[row.CaseID] = row
	return nil
}

func (s *fakeStore) InsertCaseExplanation(_ context.Context, row CaseExplanationRow) error {
	if err := s.fail("insert_explanation"); err != nil {
		return err
	}
	if _, ok := s.explanations[row.CaseID]; ok {
		return nil
	}
	s.explanations[row.CaseID] = row
	return nil
}

func (s *fakeStore) EnsureJudge(_ context.Context, candidateID, _, normalizedName string, _ time.Time) (string, error) {
	if err := s.fail("ensure_judge"); err != nil {
		return "", err
	}
	if id, ok := s.judgesByNorm[normalizedName]; ok {
		return id, nil
	}
	s.judgesByNorm[normalizedName] = candidateID
	return candidateID, nil
}

func (s *fakeStore) InsertCaseJudge(_ context.Context, row CaseJudgeRow) error {
	if err := s.fail("insert_case_judge"); err != nil {
		return err
	}
	key := row.CaseID + "|" + row.JudgeID
	if _, ok := s.caseJudges[key]; ok {
		return nil
	}
	s.caseJudges[key] = row
	return nil
}

func (s *fakeStore) RequeueJobs(_ context.Context, statuses []JobStatus) (int64, error) {
	var n int64
	for _, job := range s.jobs {
		for _, st := range statuses {
			if job.status == st {
				job.status = JobStatusPending
				job.errorMessage = nil
				n++
				break
			}
		}
	}
	return n, nil
}

func (s *fakeStore) RequeueJob(_ context.Context, jobID string) (int64, error) {
	job, ok := s.jobs[jobID]
	if !ok || job.status != JobStatusError {
		return 0, nil
	}
	job.status = JobStatusPending
	job.errorMessage = nil
	return 1, nil
}

package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/recourt/ingest/internal/hash/sha256"
	"github.com/recourt/ingest/internal/storage/memory"
)

// fakeAnalyzer returns a fixed output and records its invocations.
type fakeAnalyzer struct {
	calls int
	out   *StructuredOutput
	err   error
}

func (f *fakeAnalyzer) Analyze(_ context.Context, job PendingJob, _ []byte, stamp time.Time) (*StructuredOutput, AiOutputKeys, error) {
	f.calls++
	keys := AiOutputKeys{
		OutputKey:   "outputs/" + job.CaseID + "/" + stamp.UTC().Format(time.RFC3339) + ".json",
		RequestKey:  "requests/" + job.CaseID + "/" + stamp.UTC().Format(time.RFC3339) + ".json",
		ResponseKey: "responses/" + job.CaseID + "/" + stamp.UTC().Format(time.RFC3339) + ".json",
	}
	if f.err != nil {
		return nil, keys, f.err
	}
	return f.out, keys, nil
}

type runnerFixture struct {
	store    *fakeStore
	blobs    *memory.BlobStore
	analyzer *fakeAnalyzer
	runner   *Runner
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()

	store := newFakeStore()
	blobs := memory.New()
	analyzer := &fakeAnalyzer{out: sampleOutput()}
	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	logger := zap.NewNop()

	fetcher := NewDocumentFetcher(5*time.Second, logger)
	normalizer := NewNormalizer(store, &fakeIDs{}, clk, logger)
	dedup := NewDuplicateResolver(store, blobs, normalizer, logger)

	runner := NewRunner(store, blobs, fetcher, sha256.New(), analyzer, dedup, normalizer, clk, logger)

	return &runnerFixture{store: store, blobs: blobs, analyzer: analyzer, runner: runner}
}

func pdfHandler(docs map[string][]byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc, ok := docs[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(doc)
	})
}

func TestRunProcessesFreshJobEndToEnd(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(pdfHandler(map[string][]byte{
		"/pdf/42": []byte("%PDF-1.7 decision body"),
	}))
	defer srv.Close()

	fx := newRunnerFixture(t)
	job := testJob()
	job.PDFURL = srv.URL + "/pdf/42"
	fx.store.addPending(job)

	require.NoError(t, fx.runner.Run(context.Background()))

	assert.Equal(t, 1, fx.analyzer.calls)
	assert.Equal(t, JobStatusDone, fx.store.jobs["job-1"].status)

	// The document lands under its incident and decision date.
	_, err := fx.blobs.GetObject(context.Background(), "pdfs/2025-inc-42/2025-06-01.pdf")
	require.NoError(t, err)

	hash := fx.store.casePDFHash["case-new"]
	assert.Contains(t, hash, "sha256:")
	require.Len(t, fx.store.aiOutputs["case-new"], 1)
	_, explained := fx.store.explanations["case-new"]
	assert.True(t, explained)
}

func TestRunReusesDuplicateWithoutAnalyzing(t *testing.T) {
	t.Parallel()

	pdf := []byte("%PDF-1.7 identical body")
	srv := httptest.NewServer(pdfHandler(map[string][]byte{
		"/pdf/42": pdf,
	}))
	defer srv.Close()

	fx := newRunnerFixture(t)

	// A previous case already analyzed this exact document.
	hash := sha256.New().Hash(pdf)
	fx.store.hashToCase[hash] = "case-old"
	keys := AiOutputKeys{OutputKey: "outputs/case-old/prior.json"}
	fx.store.aiOutputs["case-old"] = []AiOutputKeys{keys}

	outputJSON, err := json.Marshal(sampleOutput())
	require.NoError(t, err)
	_, err = fx.blobs.PutObject(context.Background(), keys.OutputKey, "application/json", outputJSON)
	require.NoError(t, err)

	job := testJob()
	job.PDFURL = srv.URL + "/pdf/42"
	fx.store.addPending(job)

	require.NoError(t, fx.runner.Run(context.Background()))

	assert.Equal(t, 0, fx.analyzer.calls)
	assert.Equal(t, JobStatusDone, fx.store.jobs["job-1"].status)
	require.Len(t, fx.store.aiOutputs["case-new"], 1)
	assert.Equal(t, keys, fx.store.aiOutputs["case-new"][0])
}

func TestRunSkipsJobClaimedElsewhere(t *testing.T) {
	t.Parallel()

	fx := newRunnerFixture(t)
	fx.store.failClaim = true
	fx.store.addPending(testJob())

	require.NoError(t, fx.runner.Run(context.Background()))

	assert.Equal(t, 0, fx.analyzer.calls)
	assert.Equal(t, JobStatusPending, fx.store.jobs["job-1"].status)
}

func TestRunIsolatesJobFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(pdfHandler(map[string][]byte{
		"/pdf/good": []byte("%PDF-1.7 fine"),
	}))
	defer srv.Close()

	fx := newRunnerFixture(t)

	bad := testJob()
	bad.IngestJobID = "job-bad"
	bad.CaseID = "case-bad"
	bad.PDFURL = srv.URL + "/pdf/missing"
	fx.store.addPending(bad)

	good := testJob()
	good.IngestJobID = "job-good"
	good.CaseID = "case-good"
	good.CourtIncidentID = "2025-inc-43"
	good.PDFURL = srv.URL + "/pdf/good"
	fx.store.addPending(good)

	require.NoError(t, fx.runner.Run(context.Background()))

	badJob := fx.store.jobs["job-bad"]
	assert.Equal(t, JobStatusError, badJob.status)
	require.NotNil(t, badJob.errorMessage)
	assert.NotEmpty(t, *badJob.errorMessage)

	assert.Equal(t, JobStatusDone, fx.store.jobs["job-good"].status)
	assert.Equal(t, 1, fx.analyzer.calls)
}

func TestRunRecordsAnalysisFailureOnJob(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(pdfHandler(map[string][]byte{
		"/pdf/42": []byte("%PDF-1.7 body"),
	}))
	defer srv.Close()

	fx := newRunnerFixture(t)
	fx.analyzer.err = &AnalysisError{Err: assert.AnError}

	job := testJob()
	job.PDFURL = srv.URL + "/pdf/42"
	fx.store.addPending(job)

	require.NoError(t, fx.runner.Run(context.Background()))

	j := fx.store.jobs["job-1"]
	assert.Equal(t, JobStatusError, j.status)
	require.NotNil(t, j.errorMessage)
}

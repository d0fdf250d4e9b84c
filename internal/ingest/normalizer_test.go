package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleOutput() *StructuredOutput {
	supp := "concurring opinion text"
	summ := "agrees with the majority on narrower grounds"
	return &StructuredOutput{
		CaseTitleShort:  "State v. Doe",
		Summary:         "The court reversed the lower ruling.",
		Background:      "A dispute over lease termination.",
		Issues:          []string{"whether notice was sufficient"},
		Reasoning:       []string{"notice must be written", "oral notice is not enough"},
		Impact:          "Landlords must give written notice.",
		ImpactedParties: []string{"landlords", "tenants"},
		WhatWeLearned:   "Written form requirements are strict.",
		Glossary:        []GlossaryEntry{{Term: "notice", Explanation: "formal notification"}},
		Judges: []JudgeOpinion{
			{JudgeName: "山田 太郎", JudgeID: "model-ref-1", SupplementaryOpinion: &supp, OpinionSummary: &summ, OpinionStance: "supplement"},
			{JudgeName: "佐藤 花子", JudgeID: "model-ref-2"},
		},
		MainText:        "The appeal is granted and the judgment below reversed.",
		DecisionDate:    "2025-06-01",
		CourtIncidentID: "2025-inc-42",
		CourtName:       "Supreme Court",
	}
}

func newTestNormalizer(store *fakeStore) *Normalizer {
	clk := &fakeClock{now: time.Unix(1700000000, 0).UTC()}
	return NewNormalizer(store, &fakeIDs{}, clk, zap.NewNop())
}

func TestNormalizeWritesAllRows(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	n := newTestNormalizer(store)

	require.NoError(t, n.Normalize(context.Background(), "case-1", sampleOutput()))

	outcome := store.outcomes["case-1"]
	assert.Equal(t, "unknown", outcome.OutcomeType)
	assert.Equal(t, "unknown", outcome.Result)
	assert.Equal(t, "The appeal is granted and the judgment below reversed.", outcome.MainText)

	assert.Equal(t, "State v. Doe", store.caseTitle["case-1"])

	expl, ok := store.explanations["case-1"]
	require.True(t, ok)
	require.NotNil(t, expl.ReasoningMarkdown)
	assert.Equal(t, "- notice must be written\n- oral notice is not enough", *expl.ReasoningMarkdown)

	require.Len(t, store.judgesByNorm, 2)
	require.Len(t, store.caseJudges, 2)
}

func TestNormalizePreservesExistingOutcome(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.outcomes["case-1"] = OutcomeRow{
		CaseID:      "case-1",
		OutcomeType: "appeal",
		MainText:    "old text",
		Result:      "reversed",
	}
	n := newTestNormalizer(store)

	require.NoError(t, n.Normalize(context.Background(), "case-1", sampleOutput()))

	outcome := store.outcomes["case-1"]
	assert.Equal(t, "appeal", outcome.OutcomeType)
	assert.Equal(t, "reversed", outcome.Result)
	assert.Equal(t, "The appeal is granted and the judgment below reversed.", outcome.MainText)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	n := newTestNormalizer(store)
	out := sampleOutput()

	require.NoError(t, n.Normalize(context.Background(), "case-1", out))
	require.NoError(t, n.Normalize(context.Background(), "case-1", out))

	assert.Len(t, store.explanations, 1)
	assert.Len(t, store.judgesByNorm, 2)
	assert.Len(t, store.caseJudges, 2)
}

func TestNormalizeJudgeDefaults(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	n := newTestNormalizer(store)

	summ := "dangling summary"
	out := sampleOutput()
	out.Judges = []JudgeOpinion{
		// No supplementary opinion: the summary must not be persisted.
		{JudgeName: "佐藤 花子", JudgeID: "model-ref", OpinionSummary: &summ},
	}

	require.NoError(t, n.Normalize(context.Background(), "case-1", out))

	require.Len(t, store.caseJudges, 1)
	for _, row := range store.caseJudges {
		assert.Equal(t, "unknown", row.OpinionStance)
		assert.Nil(t, row.SupplementaryOpinion)
		assert.Nil(t, row.OpinionSummary)
	}
}

func TestNormalizeJudgeIdentityAcrossNameVariants(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	n := newTestNormalizer(store)

	// ASCII space, ideographic space and no space at all are the same judge.
	variants := []string{"山田 太郎", "山田　太郎", "山田太郎"}
	for i, name := range variants {
		out := sampleOutput()
		out.Judges = []JudgeOpinion{{JudgeName: name, JudgeID: "model-ref"}}
		caseID := string(rune('a' + i))
		require.NoError(t, n.Normalize(context.Background(), "case-"+caseID, out))
	}

	assert.Len(t, store.judgesByNorm, 1)
	assert.Len(t, store.caseJudges, 3)
}

func TestNormalizeKeepsModelReasoningMarkdown(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	n := newTestNormalizer(store)

	md := "## Reasoning\nas written by the model"
	out := sampleOutput()
	out.ReasoningMarkdown = &md

	require.NoError(t, n.Normalize(context.Background(), "case-1", out))

	expl := store.explanations["case-1"]
	require.NotNil(t, expl.ReasoningMarkdown)
	assert.Equal(t, md, *expl.ReasoningMarkdown)
}

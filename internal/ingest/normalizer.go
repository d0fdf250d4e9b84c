package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/recourt/ingest/internal/clock"
	"github.com/recourt/ingest/internal/textnorm"
)

// unknownLiteral fills outcome fields and opinion stances the source data
// does not determine.
const unknownLiteral = "unknown"

// Normalizer decomposes a validated structured output into relational rows.
// Every write is individually idempotent, so re-running normalization for the
// same case and data never duplicates rows; explanation and opinion rows are
// write-once.
type Normalizer struct {
	store  Store
	ids    IDGenerator
	clock  clock.Clock
	logger *zap.Logger
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(store Store, ids IDGenerator, clk clock.Clock, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		store:  store,
		ids:    ids,
		clock:  clk,
		logger: logger,
	}
}

// Normalize writes the structured output for one case. Write order: outcome,
// case title, explanation, judges and per-case opinions.
func (n *Normalizer) Normalize(ctx context.Context, caseID string, out *StructuredOutput) error {
	createdAt := n.clock.Now()

	// The first writer's outcome_type/result persist; ingest owns main_text
	// only, so the conflict arm of the upsert touches nothing else.
	outcomeType, result, found, err := n.store.GetOutcome(ctx, caseID)
	if err != nil {
		return fmt.Errorf("read outcome: %w", err)
	}
	if !found {
		outcomeType = unknownLiteral
		result = unknownLiteral
	}
	if err := n.store.UpsertOutcome(ctx, OutcomeRow{
		CaseID:      caseID,
		OutcomeType: outcomeType,
		MainText:    out.MainText,
		Result:      result,
		CreatedAt:   createdAt,
	}); err != nil {
		return fmt.Errorf("upsert outcome: %w", err)
	}

	if err := n.store.SetCaseTitleShort(ctx, caseID, out.CaseTitleShort); err != nil {
		return fmt.Errorf("update case title: %w", err)
	}

	reasoningMarkdown := out.ReasoningMarkdown
	if reasoningMarkdown == nil && len(out.Reasoning) > 0 {
		items := make([]string, len(out.Reasoning))
		for i, item := range out.Reasoning {
			items[i] = "- " + item
		}
		md := strings.Join(items, "\n")
		reasoningMarkdown = &md
	}

	if err := n.store.InsertCaseExplanation(ctx, CaseExplanationRow{
		CaseID:            caseID,
		Summary:           out.Summary,
		Background:        out.Background,
		Issues:            out.Issues,
		Reasoning:         out.Reasoning,
		ReasoningMarkdown: reasoningMarkdown,
		Impact:            out.Impact,
		ImpactedParties:   out.ImpactedParties,
		WhatWeLearned:     out.WhatWeLearned,
		Glossary:          out.Glossary,
		CreatedAt:         createdAt,
	}); err != nil {
		return fmt.Errorf("insert explanation: %w", err)
	}

	for _, judge := range out.Judges {
		normalized := textnorm.JudgeName(judge.JudgeName)
		candidateID, err := n.ids.NewID()
		if err != nil {
			return fmt.Errorf("generate judge id: %w", err)
		}
		judgeID, err := n.store.EnsureJudge(ctx, candidateID, judge.JudgeName, normalized, createdAt)
		if err != nil {
			return fmt.Errorf("ensure judge %q: %w", normalized, err)
		}

		stance := judge.OpinionStance
		if stance == "" {
			stance = unknownLiteral
		}
		// A summary without its source opinion is not persisted.
		opinionSummary := judge.OpinionSummary
		if judge.SupplementaryOpinion == nil {
			opinionSummary = nil
		}

		if err := n.store.InsertCaseJudge(ctx, CaseJudgeRow{
			CaseID:               caseID,
			JudgeID:              judgeID,
			SupplementaryOpinion: judge.SupplementaryOpinion,
			OpinionSummary:       opinionSummary,
			OpinionStance:        stance,
			CreatedAt:            createdAt,
		}); err != nil {
			return fmt.Errorf("insert case judge: %w", err)
		}
	}

	n.logger.Debug("output normalized",
		zap.String("case_id", caseID),
		zap.Int("judges", len(out.Judges)),
	)
	return nil
}

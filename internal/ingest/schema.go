package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// GlossaryEntry explains one legal term used in the decision.
type GlossaryEntry struct {
	Term        string `json:"term"`
	Explanation string `json:"explanation"`
}

// JudgeOpinion is one judge's entry in the structured output. JudgeID is the
// model's own reference and is not trusted as a database identifier.
type JudgeOpinion struct {
	JudgeName            string  `json:"judge_name"`
	JudgeID              string  `json:"judge_id"`
	SupplementaryOpinion *string `json:"supplementary_opinion"`
	OpinionSummary       *string `json:"opinion_summary"`
	OpinionStance        string  `json:"opinion_stance,omitempty"`
}

// StructuredOutput is the schema-validated result of the analysis call.
type StructuredOutput struct {
	CaseTitleShort    string          `json:"case_title_short"`
	Summary           string          `json:"summary"`
	Background        string          `json:"background"`
	Issues            []string        `json:"issues"`
	Reasoning         []string        `json:"reasoning"`
	ReasoningMarkdown *string         `json:"reasoning_markdown,omitempty"`
	Impact            string          `json:"impact"`
	ImpactedParties   []string        `json:"impacted_parties"`
	WhatWeLearned     string          `json:"what_we_learned"`
	Glossary          []GlossaryEntry `json:"glossary"`
	Judges            []JudgeOpinion  `json:"judges"`
	MainText          string          `json:"main_text"`
	DecisionDate      string          `json:"decision_date"`
	CourtIncidentID   string          `json:"court_incident_id"`
	CourtName         string          `json:"court_name"`
}

// structuredOutputSchema is authoritative and strict: the analysis response
// either conforms or the job fails.
const structuredOutputSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "required": [
    "case_title_short", "summary", "background", "issues", "reasoning",
    "impact", "impacted_parties", "what_we_learned", "glossary", "judges",
    "main_text", "decision_date", "court_incident_id", "court_name"
  ],
  "properties": {
    "case_title_short": {"type": "string", "minLength": 1},
    "summary": {"type": "string", "minLength": 1},
    "background": {"type": "string", "minLength": 1},
    "issues": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "reasoning": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "reasoning_markdown": {"type": ["string", "null"]},
    "impact": {"type": "string", "minLength": 1},
    "impacted_parties": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "what_we_learned": {"type": "string", "minLength": 1},
    "glossary": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["term", "explanation"],
        "properties": {
          "term": {"type": "string", "minLength": 1},
          "explanation": {"type": "string", "minLength": 1}
        }
      }
    },
    "judges": {
      "type": "array",
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["judge_name", "judge_id", "supplementary_opinion", "opinion_summary"],
        "properties": {
          "judge_name": {"type": "string", "minLength": 1},
          "judge_id": {"type": "string", "minLength": 1},
          "supplementary_opinion": {"type": ["string", "null"]},
          "opinion_summary": {"type": ["string", "null"]},
          "opinion_stance": {
            "type": "string",
            "enum": ["agree", "dissent", "supplement", "other", "unknown"]
          }
        }
      }
    },
    "main_text": {"type": "string", "minLength": 1},
    "decision_date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
    "court_incident_id": {"type": "string", "minLength": 1},
    "court_name": {"type": "string"}
  }
}`

var compiledSchema = jsonschema.MustCompileString("structured_output.json", structuredOutputSchema)

// ParseStructuredOutput validates raw JSON against the structured output
// schema and decodes it. The raw bytes are what the content store holds, so
// parse(validate(bytes)) is the single gate for both fresh analyses and
// reused outputs.
func ParseStructuredOutput(raw []byte) (*StructuredOutput, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode output json: %w", err)
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("validate output schema: %w", err)
	}
	var out StructuredOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode structured output: %w", err)
	}
	return &out, nil
}

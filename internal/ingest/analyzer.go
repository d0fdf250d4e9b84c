package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/recourt/ingest/internal/storage"
)

// GeminiConfig parameterizes the analysis invocation.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Prompt      string
	BaseURL     string
	Timeout     time.Duration
	MaxAttempts int
}

// GeminiAnalyzer invokes the Gemini generateContent endpoint with the
// instruction prompt, the inline PDF and the case metadata, and persists the
// request, raw response and extracted output to the content store. The stored
// objects are the audit trail that later enables dedup reuse and debugging of
// rejected model outputs.
type GeminiAnalyzer struct {
	client *http.Client
	blobs  storage.BlobStore
	cfg    GeminiConfig
	logger *zap.Logger
}

// NewGeminiAnalyzer creates an analyzer against the configured endpoint.
func NewGeminiAnalyzer(blobs storage.BlobStore, cfg GeminiConfig, logger *zap.Logger) *GeminiAnalyzer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &GeminiAnalyzer{
		client: &http.Client{Timeout: cfg.Timeout},
		blobs:  blobs,
		cfg:    cfg,
		logger: logger,
	}
}

type analysisMetadata struct {
	DecisionDate    string  `json:"decision_date"`
	CourtIncidentID string  `json:"court_incident_id"`
	CourtName       *string `json:"court_name"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	ResponseMIMEType string `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason,omitempty"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason,omitempty"`
	} `json:"promptFeedback,omitempty"`
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error,omitempty"`
}

// Analyze sends one single-turn request and returns the validated structured
// output plus the content-store keys of the audit objects. Returns
// *ServiceError for transport/HTTP failures and *AnalysisError when the
// response does not conform to the schema.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, job PendingJob, pdfBytes []byte, stamp time.Time) (*StructuredOutput, AiOutputKeys, error) {
	stampStr := stamp.UTC().Format(time.RFC3339)
	keys := AiOutputKeys{
		RequestKey:  fmt.Sprintf("requests/%s/%s.json", job.CaseID, stampStr),
		ResponseKey: fmt.Sprintf("responses/%s/%s.json", job.CaseID, stampStr),
		OutputKey:   fmt.Sprintf("outputs/%s/%s.json", job.CaseID, stampStr),
	}

	metadata := analysisMetadata{
		DecisionDate:    job.DecisionDate,
		CourtIncidentID: job.CourtIncidentID,
		CourtName:       job.CourtName,
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, keys, fmt.Errorf("marshal metadata: %w", err)
	}

	payload := geminiRequest{
		Contents: []geminiContent{{
			Role: "user",
			Parts: []geminiPart{
				{Text: a.cfg.Prompt},
				{InlineData: &geminiInlineData{
					MimeType: "application/pdf",
					Data:     base64.StdEncoding.EncodeToString(pdfBytes),
				}},
				{Text: string(metaJSON)},
			},
		}},
		GenerationConfig: &geminiGenerationConfig{ResponseMIMEType: "application/json"},
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, keys, fmt.Errorf("marshal request payload: %w", err)
	}

	// The request is persisted before the call so a crashed or rejected
	// invocation still leaves its exact input on record.
	if _, err := a.blobs.PutObject(ctx, keys.RequestKey, "application/json", payloadJSON); err != nil {
		return nil, keys, fmt.Errorf("store request payload: %w", err)
	}

	a.logger.Info("call analysis service",
		zap.String("case_id", job.CaseID),
		zap.String("model", a.cfg.Model),
	)

	respBody, err := a.call(ctx, payloadJSON)
	if err != nil {
		recordAnalysis("service_error")
		return nil, keys, err
	}

	if _, err := a.blobs.PutObject(ctx, keys.ResponseKey, "application/json", respBody); err != nil {
		return nil, keys, fmt.Errorf("store response payload: %w", err)
	}

	outputJSON, err := extractOutputJSON(respBody)
	if err != nil {
		recordAnalysis("rejected")
		return nil, keys, &AnalysisError{Err: err}
	}

	out, err := ParseStructuredOutput(outputJSON)
	if err != nil {
		recordAnalysis("rejected")
		return nil, keys, &AnalysisError{Err: err}
	}

	if _, err := a.blobs.PutObject(ctx, keys.OutputKey, "application/json", outputJSON); err != nil {
		return nil, keys, fmt.Errorf("store output payload: %w", err)
	}

	recordAnalysis("ok")
	return out, keys, nil
}

// call posts the payload, retrying transport failures and transient HTTP
// statuses a bounded number of times. Non-transient failures and exhausted
// retries surface as *ServiceError.
func (a *GeminiAnalyzer) call(ctx context.Context, payloadJSON []byte) ([]byte, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent", strings.TrimRight(a.cfg.BaseURL, "/"), a.cfg.Model)

	var respBody []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payloadJSON))
			if err != nil {
				return &ServiceError{Err: err}
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("x-goog-api-key", a.cfg.APIKey)

			resp, err := a.client.Do(req)
			if err != nil {
				return &ServiceError{Err: err}
			}
			defer func() { _ = resp.Body.Close() }()

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return &ServiceError{Err: err}
			}
			if resp.StatusCode != http.StatusOK {
				return &ServiceError{StatusCode: resp.StatusCode, Err: errors.New(truncateForLog(body))}
			}
			respBody = body
			return nil
		},
		retry.Attempts(uint(a.cfg.MaxAttempts)),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var se *ServiceError
			if errors.As(err, &se) {
				return se.StatusCode == 0 || se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
			}
			return false
		}),
	)
	if err != nil {
		var se *ServiceError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, &ServiceError{Err: err}
	}
	return respBody, nil
}

// extractOutputJSON pulls the model's JSON text out of the response envelope.
func extractOutputJSON(respBody []byte) ([]byte, error) {
	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	if parsed.Error.Message != "" {
		return nil, fmt.Errorf("service reported error: %s (code %d)", parsed.Error.Message, parsed.Error.Code)
	}
	if parsed.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("prompt blocked: %s", parsed.PromptFeedback.BlockReason)
	}
	if len(parsed.Candidates) == 0 {
		return nil, errors.New("response has no candidates")
	}

	var text strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, errors.New("response candidate has no text")
	}
	return []byte(text.String()), nil
}

// truncateForLog bounds an error body for the persisted message, cutting on
// a rune boundary so the result stays valid UTF-8.
func truncateForLog(body []byte) string {
	const max = 512
	s := string(body)
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MaxDocumentBytes caps a source PDF at 100 MiB, declared or actual.
const MaxDocumentBytes = 100 * 1024 * 1024

// pdfMagic is the signature every source document must start with.
var pdfMagic = []byte("%PDF-")

// DocumentFetcher retrieves and validates source PDFs.
type DocumentFetcher struct {
	client *http.Client
	logger *zap.Logger
}

// NewDocumentFetcher creates a fetcher with the given timeout.
func NewDocumentFetcher(timeout time.Duration, logger *zap.Logger) *DocumentFetcher {
	return &DocumentFetcher{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Fetch downloads the document and validates content type, size and the PDF
// signature before anything is uploaded or analyzed. Returns *FetchError for
// transport/HTTP failures and *ValidationError for rejected documents.
func (f *DocumentFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "application/pdf") {
		return nil, &ValidationError{Reason: fmt.Sprintf("expected application/pdf, got %s", ct)}
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if size, perr := strconv.ParseInt(cl, 10, 64); perr == nil && size > MaxDocumentBytes {
			return nil, &ValidationError{Reason: fmt.Sprintf("declared size %d exceeds limit of %d bytes", size, MaxDocumentBytes)}
		}
	}

	// Read one byte past the limit so oversize bodies without a declared
	// length are still caught.
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentBytes+1))
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if len(data) > MaxDocumentBytes {
		return nil, &ValidationError{Reason: fmt.Sprintf("document exceeds limit of %d bytes", MaxDocumentBytes)}
	}

	if !bytes.HasPrefix(data, pdfMagic) {
		return nil, &ValidationError{Reason: "missing PDF signature (%PDF-)"}
	}

	f.logger.Debug("document fetched",
		zap.String("url", url),
		zap.Int("bytes", len(data)),
	)
	recordFetchedBytes(len(data))
	return data, nil
}

package ingest

import "fmt"

// FetchError reports a network or HTTP failure retrieving the source document.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("document fetch failed: %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("document fetch failed: %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ValidationError reports a document that failed type, size or signature
// checks. Permanent: retrying without operator intervention cannot succeed.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid document: %s", e.Reason)
}

// ServiceError reports a transport, auth or HTTP failure against the
// analysis service.
type ServiceError struct {
	StatusCode int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("analysis service error: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("analysis service error: %v", e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// AnalysisError reports a response that did not conform to the structured
// output schema. Never coerced: a malformed response fails the job.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis output rejected: %v", e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

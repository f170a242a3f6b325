package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CaptureRecord is the audit entry written once per proxied request.
type CaptureRecord struct {
	ID              string          `json:"id"`
	Timestamp       int64           `json:"ts"` // request start, epoch milliseconds
	Method          string          `json:"method"`
	Path            string          `json:"path"` // redacted path+query
	UpstreamBaseURL string          `json:"upstreamBaseUrl"`
	Status          int             `json:"status"`
	DurationMs      int64           `json:"durationMs"`
	Request         RequestCapture  `json:"request"`
	Response        ResponseCapture `json:"response"`
	Error           string          `json:"error,omitempty"`
}

// RequestCapture holds at most one of BodyText and BodyJSON.
type RequestCapture struct {
	Truncated    bool            `json:"truncated"`
	BodyText     string          `json:"bodyText,omitempty"`
	BodyJSON     json.RawMessage `json:"bodyJson,omitempty"`
	Summary      string          `json:"summary,omitempty"`
	Model        string          `json:"model,omitempty"`
	IsStream     *bool           `json:"isStream,omitempty"`
	PromptTokens int             `json:"promptTokens,omitempty"`
}

// ResponseCapture describes what came back from upstream. Stream is true
// whenever the upstream response carried a body.
type ResponseCapture struct {
	Truncated   bool   `json:"truncated"`
	Stream      bool   `json:"stream"`
	Aborted     bool   `json:"aborted,omitempty"`
	SnippetText string `json:"snippetText,omitempty"`
}

// NewRecord starts a record for a request beginning at start.
func NewRecord(start time.Time, method, path, upstreamBaseURL string) *CaptureRecord {
	return &CaptureRecord{
		ID:              uuid.NewString(),
		Timestamp:       start.UnixMilli(),
		Method:          method,
		Path:            path,
		UpstreamBaseURL: upstreamBaseURL,
	}
}

// StartedAt returns the request start time.
func (r *CaptureRecord) StartedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

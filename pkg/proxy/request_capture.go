package proxy

import (
	"encoding/json"
	"log"
	"strings"

	"github.com/ngoyal88/auditrelay/pkg/ai"
	"github.com/ngoyal88/auditrelay/pkg/config"
	"github.com/ngoyal88/auditrelay/pkg/redact"
	"github.com/ngoyal88/auditrelay/pkg/storage"
)

// buildRequestCapture turns the captured request prefix into its record
// section. JSON bodies are stored redacted with a summary; anything else is
// kept as redacted text.
func buildRequestCapture(text string, truncated bool, cfg *config.Config) storage.RequestCapture {
	rc := storage.RequestCapture{Truncated: truncated}
	if truncated {
		captureTruncations.WithLabelValues("request").Inc()
	}
	if text == "" {
		return rc
	}

	body, ok := parseJSON(text)
	if !ok {
		rc.BodyText = redact.String(text)
		return rc
	}
	if body == nil {
		return rc
	}

	redacted := redact.JSON(body)
	raw, err := json.Marshal(redacted)
	if err != nil {
		rc.BodyText = redact.String(text)
		return rc
	}
	rc.BodyJSON = raw

	summary := ai.ExtractSummary(redacted)
	rc.Summary = summary.Text
	rc.Model = summary.Model
	rc.IsStream = summary.Stream

	if cfg.Capture.CountTokens {
		if convo := ai.ConversationText(redacted); convo != "" {
			n, err := ai.CountTokens(summary.Model, convo)
			if err != nil {
				log.Printf("[CAPTURE] token count failed: %v", err)
			} else {
				rc.PromptTokens = n
				promptTokens.Observe(float64(n))
			}
		}
	}
	return rc
}

// parseJSON decodes a whole document, keeping number literals as written.
// Whitespace-only input decodes to nil.
func parseJSON(text string) (any, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, true
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.InputOffset() != int64(len(trimmed)) {
		return nil, false
	}
	return v, true
}

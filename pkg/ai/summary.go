package ai

import (
	"strings"
	"unicode/utf8"
)

// SummaryMaxChars bounds the excerpt kept for listings.
const SummaryMaxChars = 220

// Summary is a short, human readable excerpt of a chat style request.
type Summary struct {
	Text   string
	Model  string
	Stream *bool
}

// ExtractSummary pulls the model, stream flag and the last turn's text out of
// a decoded (and already redacted) request body. Two request shapes are
// recognised, tried in order:
//
//	{"messages": [{"role": ..., "content": "..." | [{"text": ...}]}]}
//	{"contents": [{"parts": [{"text": ...}]}]}
//
// Bodies that are not objects produce an empty Summary.
func ExtractSummary(body any) Summary {
	obj, ok := body.(map[string]any)
	if !ok {
		return Summary{}
	}

	var s Summary
	if model, ok := obj["model"].(string); ok {
		s.Model = model
	}
	if stream, ok := obj["stream"].(bool); ok {
		s.Stream = &stream
	}

	if messages, ok := obj["messages"].([]any); ok && len(messages) > 0 {
		if last, ok := messages[len(messages)-1].(map[string]any); ok {
			s.Text = excerpt(contentText(last["content"]))
		}
		return s
	}

	if contents, ok := obj["contents"].([]any); ok && len(contents) > 0 {
		if last, ok := contents[len(contents)-1].(map[string]any); ok {
			s.Text = excerpt(partsText(last["parts"]))
		}
		return s
	}

	return s
}

// ConversationText joins the text of every turn, used for token estimates.
func ConversationText(body any) string {
	obj, ok := body.(map[string]any)
	if !ok {
		return ""
	}

	var b strings.Builder
	if messages, ok := obj["messages"].([]any); ok {
		for _, m := range messages {
			if msg, ok := m.(map[string]any); ok {
				b.WriteString(contentText(msg["content"]))
			}
		}
	}
	if contents, ok := obj["contents"].([]any); ok {
		for _, c := range contents {
			if turn, ok := c.(map[string]any); ok {
				b.WriteString(partsText(turn["parts"]))
			}
		}
	}
	return b.String()
}

func contentText(content any) string {
	switch v := content.(type) {
	case string:
		return v
	case []any:
		return partsText(v)
	default:
		return ""
	}
}

func partsText(parts any) string {
	list, ok := parts.([]any)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, p := range list {
		part, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := part["text"].(string); ok {
			b.WriteString(text)
		}
	}
	return b.String()
}

func excerpt(s string) string {
	t := strings.TrimSpace(s)
	if utf8.RuneCountInString(t) <= SummaryMaxChars {
		return t
	}
	runes := []rune(t)
	return string(runes[:SummaryMaxChars]) + "…"
}

package proxy

import (
	"net/url"
	"testing"
)

func TestBuildUpstreamURL(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		incoming string
		expected string
	}{
		{"bare host", "https://api.example.com", "/v1/chat/completions?x=1", "https://api.example.com/v1/chat/completions?x=1"},
		{"base path", "https://api.example.com/openai", "/v1/models", "https://api.example.com/openai/v1/models"},
		{"base trailing slash", "https://api.example.com/openai/", "/v1/models", "https://api.example.com/openai/v1/models"},
		{"base query replaced", "https://api.example.com/p?old=1", "/v1", "https://api.example.com/p/v1"},
		{"escaped segment kept", "https://api.example.com", "/files/a%2Fb", "https://api.example.com/files/a%2Fb"},
		{"root", "https://api.example.com/", "/", "https://api.example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, _ := url.Parse(tt.base)
			in, _ := url.Parse(tt.incoming)
			if got := BuildUpstreamURL(base, in).String(); got != tt.expected {
				t.Errorf("BuildUpstreamURL() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestNeedsQueryKey(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"https://g.example.com/v1beta/models/gemini:generateContent", true},
		{"https://g.example.com/v1beta/models/gemini:streamGenerateContent?alt=sse", true},
		{"https://g.example.com/v1beta/models/gemini:generateContent?key=abc", false},
		{"https://g.example.com/v1beta/models/gemini:countTokens", false},
		{"https://g.example.com/v1/chat/completions", false},
	}
	for _, tt := range tests {
		u, _ := url.Parse(tt.raw)
		if got := NeedsQueryKey(u); got != tt.want {
			t.Errorf("NeedsQueryKey(%s) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestInjectQueryKey(t *testing.T) {
	u, _ := url.Parse("https://g.example.com/m:generateContent?alt=sse&q=a%20b")
	InjectQueryKey(u, "k/1")
	if u.RawQuery != "alt=sse&q=a%20b&key=k%2F1" {
		t.Errorf("RawQuery = %q", u.RawQuery)
	}
}

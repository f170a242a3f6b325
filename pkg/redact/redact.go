package redact

import (
	"net/url"
	"reflect"
	"regexp"
	"strings"
)

// Placeholder replaces sensitive values wholesale.
const Placeholder = "***"

var sensitiveKey = regexp.MustCompile(
	`(?i)^(?:authorization|proxy[_-]?token|token|api[_-]?key|key|access[_-]?token|refresh[_-]?token|secret|password)$`,
)

type tokenPattern struct {
	re      *regexp.Regexp
	replace string
}

// Applied in order over the whole string; later patterns see earlier output.
var tokenPatterns = []tokenPattern{
	{re: regexp.MustCompile(`(?i)\bBearer\s+[^\s]+`), replace: "Bearer ***"},
	{re: regexp.MustCompile(`\bsk-[A-Za-z0-9]{16,}\b`), replace: "sk-***"},
	{re: regexp.MustCompile(`\bAIza[0-9A-Za-z\-_]{16,}\b`), replace: "AIza***"},
	{re: regexp.MustCompile(`\beyJ[A-Za-z0-9\-_]+?\.[A-Za-z0-9\-_]+?\.[A-Za-z0-9\-_]+\b`), replace: "jwt_***"},
}

// IsSensitiveKey reports whether a field or query parameter name holds a secret.
func IsSensitiveKey(name string) bool {
	return sensitiveKey.MatchString(name)
}

// String scrubs bearer tokens and common API key shapes from free text.
func String(s string) string {
	out := s
	for _, p := range tokenPatterns {
		out = p.re.ReplaceAllLiteralString(out, p.replace)
	}
	return out
}

// URLForLog returns path+query with sensitive query parameter values replaced.
// Parameter order and the raw encoding of untouched parameters are preserved.
func URLForLog(u *url.URL) string {
	path := u.EscapedPath()
	if u.RawQuery == "" {
		return path
	}

	parts := strings.Split(u.RawQuery, "&")
	for i, part := range parts {
		rawName, _, _ := strings.Cut(part, "=")
		name, err := url.QueryUnescape(rawName)
		if err != nil {
			name = rawName
		}
		if IsSensitiveKey(name) {
			parts[i] = rawName + "=" + url.QueryEscape(Placeholder)
		}
	}
	return path + "?" + strings.Join(parts, "&")
}

// nodeID identifies a composite JSON node by its backing storage.
type nodeID struct {
	kind reflect.Kind
	ptr  uintptr
	n    int
}

// JSON returns a redacted deep copy of a decoded JSON value.
//
// Strings go through String, object fields whose name is sensitive become
// Placeholder, and arrays are walked element-wise. Shared or cyclic
// substructures are walked once: a revisited node yields the copy already
// produced for it. Types other than map[string]any, []any and string are
// returned as is.
func JSON(v any) any {
	w := walker{seen: make(map[nodeID]any)}
	return w.walk(v)
}

type walker struct {
	seen map[nodeID]any
}

func (w *walker) walk(v any) any {
	switch t := v.(type) {
	case string:
		return String(t)
	case map[string]any:
		if t == nil {
			return t
		}
		id := nodeID{kind: reflect.Map, ptr: reflect.ValueOf(t).Pointer()}
		if done, ok := w.seen[id]; ok {
			return done
		}
		out := make(map[string]any, len(t))
		w.seen[id] = out
		for k, val := range t {
			if IsSensitiveKey(k) {
				out[k] = Placeholder
				continue
			}
			out[k] = w.walk(val)
		}
		return out
	case []any:
		if t == nil {
			return t
		}
		id := nodeID{kind: reflect.Slice, ptr: reflect.ValueOf(t).Pointer(), n: len(t)}
		if done, ok := w.seen[id]; ok {
			return done
		}
		out := make([]any, len(t))
		w.seen[id] = out
		for i, item := range t {
			out[i] = w.walk(item)
		}
		return out
	default:
		return v
	}
}

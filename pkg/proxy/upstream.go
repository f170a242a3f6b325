package proxy

import (
	"net/url"
	"strings"
)

// BuildUpstreamURL appends the incoming path to the base URL's path and
// replaces the base query with the incoming one.
func BuildUpstreamURL(base, incoming *url.URL) *url.URL {
	u := *base
	u.User = nil
	raw := joinPath(base.EscapedPath(), incoming.EscapedPath())
	if p, err := url.PathUnescape(raw); err == nil {
		u.Path = p
		u.RawPath = raw
	} else {
		u.Path = joinPath(base.Path, incoming.Path)
		u.RawPath = ""
	}
	u.RawQuery = incoming.RawQuery
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	return &u
}

func joinPath(basePath, extraPath string) string {
	a := strings.TrimSuffix(basePath, "/")
	b := extraPath
	if !strings.HasPrefix(b, "/") {
		b = "/" + b
	}
	return a + b
}

// NeedsQueryKey reports whether u is a native generation call that
// authenticates with a key query parameter and does not carry one yet.
func NeedsQueryKey(u *url.URL) bool {
	if !strings.Contains(u.Path, ":generateContent") && !strings.Contains(u.Path, ":streamGenerateContent") {
		return false
	}
	return !u.Query().Has("key")
}

// InjectQueryKey appends key=<key> without re-encoding the existing query.
func InjectQueryKey(u *url.URL, key string) {
	param := "key=" + url.QueryEscape(key)
	if u.RawQuery == "" {
		u.RawQuery = param
		return
	}
	u.RawQuery += "&" + param
}

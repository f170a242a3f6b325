package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/ngoyal88/auditrelay/pkg/config"
)

// CookieName holds the proxy token for browser sessions.
const CookieName = "proxy_token"

// Authorized reports whether r carries the configured proxy token, either as
// "Authorization: Bearer <token>" or in the proxy_token cookie. An empty
// configured token denies everything.
func Authorized(r *http.Request, expected string) bool {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok && TokenMatches(token, expected) {
		return true
	}
	if c, err := r.Cookie(CookieName); err == nil && TokenMatches(c.Value, expected) {
		return true
	}
	return false
}

// TokenMatches compares in constant time. Blank tokens never match.
func TokenMatches(candidate, expected string) bool {
	expected = strings.TrimSpace(expected)
	if expected == "" || candidate == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(expected)) == 1
}

// RequireToken rejects unauthenticated requests with a 401 JSON body.
func RequireToken(cfgs config.Source) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Authorized(r, cfgs.Get().Auth.Token) {
				SetCORS(w.Header())
				RespondError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

package api

import (
	"net/http"
	"strings"

	"github.com/ngoyal88/auditrelay/pkg/middleware"
)

const sessionMaxAge = 30 * 24 * 60 * 60

func (api *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	token := strings.TrimSpace(q.Get("t"))
	next := safeNext(q.Get("next"))

	expected := strings.TrimSpace(api.cfgs.Get().Auth.Token)
	if expected == "" {
		middleware.RespondError(w, http.StatusInternalServerError, "PROXY_TOKEN not configured")
		return
	}
	if token == "" || !middleware.TokenMatches(token, expected) {
		middleware.RespondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, next, http.StatusFound)
}

func (api *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   isHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/login?next=%2Fapi%2Flogs", http.StatusFound)
}

// safeNext keeps redirects on this host.
func safeNext(next string) string {
	next = strings.TrimSpace(next)
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return logsPath
	}
	return next
}

func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

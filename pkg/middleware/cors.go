package middleware

import "net/http"

var corsHeaders = map[string]string{
	"Access-Control-Allow-Origin":  "*",
	"Access-Control-Allow-Headers": "authorization, content-type",
	"Access-Control-Allow-Methods": "GET,POST,PUT,PATCH,DELETE,OPTIONS",
}

// SetCORS overwrites the CORS headers on h.
func SetCORS(h http.Header) {
	for k, v := range corsHeaders {
		h.Set(k, v)
	}
}

// CORS answers preflight requests with 204 and decorates every other
// response. The proxy copies upstream headers itself and is wrapped in
// Preflight only.
func CORS(next http.Handler) http.Handler {
	return Preflight(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w.Header())
		next.ServeHTTP(w, r)
	}))
}

// Preflight only short-circuits OPTIONS requests.
func Preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			SetCORS(w.Header())
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

package middleware

import (
	"encoding/json"
	"net/http"
)

// RespondJSON writes v as a JSON body with the given status.
func RespondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// RespondError writes {"error": code}.
func RespondError(w http.ResponseWriter, status int, code string) {
	RespondJSON(w, status, map[string]string{"error": code})
}

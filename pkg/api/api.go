package api

import (
	"context"
	"errors"
	"log"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ngoyal88/auditrelay/pkg/config"
	"github.com/ngoyal88/auditrelay/pkg/middleware"
	"github.com/ngoyal88/auditrelay/pkg/storage"
)

const logsPath = "/api/logs"

// API serves the JSON view over stored capture records plus the session
// endpoints.
type API struct {
	cfgs  config.Source
	store storage.Store
	hub   *Hub
}

// New creates the API. hub may be nil, in which case no live tail is served.
func New(cfgs config.Source, store storage.Store, hub *Hub) *API {
	return &API{cfgs: cfgs, store: store, hub: hub}
}

// RegisterRoutes registers the API endpoints. Everything else on the mux is
// left to the caller (the proxy catches the rest).
func (api *API) RegisterRoutes(mux *http.ServeMux) {
	requireToken := middleware.RequireToken(api.cfgs)

	mux.HandleFunc("/health", api.handleHealth)
	mux.HandleFunc("/login", api.handleLogin)
	mux.HandleFunc("/logout", api.handleLogout)

	logs := middleware.CORS(requireToken(http.HandlerFunc(api.handleLogs)))
	mux.Handle(logsPath, logs)
	mux.Handle(logsPath+"/", logs)
	if api.hub != nil {
		mux.Handle(logsPath+"/stream", requireToken(api.hub))
	}
}

// Root redirects "/" to the log listing and hands every other path to next.
func Root(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, logsPath, http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (api *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := api.store.Ping(ctx); err != nil {
		log.Printf("[API] store health check failed: %v", err)
		middleware.RespondJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":    false,
			"error": "store_unavailable",
		})
		return
	}
	middleware.RespondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type listResponse struct {
	Logs       []*storage.CaptureRecord `json:"logs"`
	NextBefore *int64                   `json:"nextBefore,omitempty"`
}

func (api *API) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		middleware.RespondError(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, logsPath), "/")
	if id == "" {
		api.listLogs(ctx, w, r)
		return
	}

	rec, err := api.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		middleware.RespondError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		log.Printf("[API] get %s: %v", id, err)
		middleware.RespondError(w, http.StatusInternalServerError, "store_unavailable")
		return
	}
	middleware.RespondJSON(w, http.StatusOK, map[string]any{"log": rec})
}

func (api *API) listLogs(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	listing := api.cfgs.Get().Listing
	q := r.URL.Query()

	limit := listing.DefaultLimit
	if n, ok := intParam(q.Get("limit")); ok {
		limit = int(max(min(n, int64(listing.MaxLimit)), 1))
	}
	limit = min(max(limit, 1), listing.MaxLimit)

	var before *int64
	if n, ok := intParam(q.Get("before")); ok {
		before = &n
	}

	logs, err := api.store.List(ctx, limit, before)
	if err != nil {
		log.Printf("[API] list logs: %v", err)
		middleware.RespondError(w, http.StatusInternalServerError, "store_unavailable")
		return
	}

	resp := listResponse{Logs: logs}
	if resp.Logs == nil {
		resp.Logs = []*storage.CaptureRecord{}
	}
	if len(logs) == limit && limit > 0 {
		next := logs[len(logs)-1].Timestamp
		resp.NextBefore = &next
	}
	middleware.RespondJSON(w, http.StatusOK, resp)
}

// intParam accepts any finite number and floors it; blank or invalid input
// reports false.
func intParam(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return int64(math.Floor(f)), true
}

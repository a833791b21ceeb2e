package controllers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tdaniel1925/easemail-redux-sub002/internal/activity"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/auth"
	"github.com/tdaniel1925/easemail-redux-sub002/internal/config"
)

// ActivityController handles feed, search, stats, emit and streaming.
type ActivityController struct {
	svc *activity.Service
	cfg config.Config
}

// NewActivityController creates a new activity controller.
func NewActivityController(svc *activity.Service, cfg config.Config) *ActivityController {
	return &ActivityController{svc: svc, cfg: cfg}
}

// RegisterRoutes registers the activity endpoints with the given mux.
func (c *ActivityController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activity", c.handleList)
	mux.HandleFunc("/v1/activity/emit", c.handleEmit)
	mux.HandleFunc("/v1/activity/search", c.handleSearch)
	mux.HandleFunc("/v1/activity/stats", c.handleStats)
	mux.HandleFunc("/v1/activity/stream", c.handleStream)
}

type emitReq struct {
	Type     string          `json:"type"`
	EntityID string          `json:"entity_id"`
	Payload  json.RawMessage `json:"payload"`
}

func (c *ActivityController) handleEmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	scope, ok := auth.ScopeFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing scope")
		return
	}
	var req emitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := c.svc.Emit(r.Context(), scope, req.Type, req.EntityID, req.Payload)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(rec)
}

func (c *ActivityController) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	scope, ok := auth.ScopeFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing scope")
		return
	}
	q := r.URL.Query()
	opts := activity.ListOptions{
		Limit:    parseLimit(q.Get("limit")),
		BeforeID: parseUint(q.Get("before_id")),
		Types:    parseTypes(q.Get("types")),
	}
	if waitMs := parseUint(q.Get("wait_ms")); waitMs > 0 {
		if waitMs > 60000 {
			waitMs = 60000
		}
		opts.Wait = time.Duration(waitMs) * time.Millisecond
	}
	events, err := c.svc.List(r.Context(), scope, opts)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"events": events})
}

func (c *ActivityController) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	scope, ok := auth.ScopeFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing scope")
		return
	}
	q := r.URL.Query()
	events, err := c.svc.Search(r.Context(), scope, activity.SearchOptions{
		Limit:    parseLimit(q.Get("limit")),
		BeforeID: parseUint(q.Get("before_id")),
		Types:    parseTypes(q.Get("types")),
		Filter:   q.Get("filter"),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, map[string]any{"events": events})
}

func (c *ActivityController) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	scope, ok := auth.ScopeFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing scope")
		return
	}
	st, err := c.svc.Stats(r.Context(), scope)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, st)
}

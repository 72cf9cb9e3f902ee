// Copyright 2025 James Ross
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/flyingrobots/jobcoordinator/internal/audit"
	"github.com/flyingrobots/jobcoordinator/internal/jobs"
	"github.com/flyingrobots/jobcoordinator/internal/monitor"
	"github.com/flyingrobots/jobcoordinator/internal/registry"
	"github.com/flyingrobots/jobcoordinator/internal/store"
)

type jobHandlers struct {
	jobs      *jobs.Service
	registry  *registry.Registry
	populator *monitor.Populator
	audit     *audit.Logger
}

type populateRequest struct {
	BatchSize int    `json:"batch_size"`
	Operation string `json:"operation"`
}

// Populate handles POST /jobs/populate (admin): triggers an ad-hoc batch
// on top of the scheduled Populator loop.
func (h *jobHandlers) Populate(w http.ResponseWriter, r *http.Request) {
	var req populateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
			return
		}
	}
	if req.Operation != "" && !h.registry.Contains(req.Operation) {
		writeError(w, http.StatusBadRequest, "UNKNOWN_OPERATION", "unknown operation: "+req.Operation)
		return
	}

	var ids []string
	var err error
	if req.BatchSize > 0 {
		_, ids, err = h.populator.RunOnceWithOptions(r.Context(), req.BatchSize, req.Operation)
	} else {
		_, ids, err = h.populator.RunOnce(r.Context())
	}
	h.recordAudit(r, "jobs.populate", "", err, fmt.Sprintf("batch_size=%d operation=%q created=%d", req.BatchSize, req.Operation, len(ids)))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"created": ids})
}

func (h *jobHandlers) recordAudit(r *http.Request, action, target string, err error, detail string) {
	if h.audit == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	if auditErr := h.audit.Record(clientIP(r), action, target, outcome, detail); auditErr != nil {
		// Nothing upstream can react to an audit-write failure; the
		// mutation it describes already happened.
		_ = auditErr
	}
}

// List handles GET /jobs?status=&limit=&offset=.
func (h *jobHandlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.ListFilter{Status: q.Get("status")}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Offset = n
		}
	}
	out, err := h.jobs.List(r.Context(), f)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Get handles GET /jobs/{id}.
func (h *jobHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type claimRequest struct {
	BotID string `json:"bot_id"`
}

// Claim handles POST /jobs/claim.
func (h *jobHandlers) Claim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BotID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "bot_id is required")
		return
	}
	job, err := h.jobs.Claim(r.Context(), req.BotID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type botActionRequest struct {
	BotID      string  `json:"bot_id"`
	Result     float64 `json:"result"`
	Error      string  `json:"error"`
	DurationMs int64   `json:"duration_ms"`
}

// Start handles POST /jobs/{id}/start.
func (h *jobHandlers) Start(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req botActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BotID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "bot_id is required")
		return
	}
	if _, err := h.jobs.Start(r.Context(), id, req.BotID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Complete handles POST /jobs/{id}/complete.
func (h *jobHandlers) Complete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req botActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BotID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "bot_id is required")
		return
	}
	if _, _, err := h.jobs.Complete(r.Context(), id, req.BotID, req.Result, req.DurationMs); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Fail handles POST /jobs/{id}/fail.
func (h *jobHandlers) Fail(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req botActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BotID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "bot_id is required")
		return
	}
	if _, _, err := h.jobs.Fail(r.Context(), id, req.BotID, req.Error, req.DurationMs); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type releaseRequest struct {
	Reason string `json:"reason"`
}

// Release handles POST /jobs/{id}/release (admin).
func (h *jobHandlers) Release(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req releaseRequest
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "operator request"
	}
	_, err := h.jobs.Release(r.Context(), id, req.Reason)
	h.recordAudit(r, "jobs.release", id, err, "reason="+req.Reason)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Summary handles GET /metrics/summary.
func (h *jobHandlers) Summary(w http.ResponseWriter, r *http.Request) {
	counts, err := h.jobs.Summary(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// Operations handles GET /operations.
func (h *jobHandlers) Operations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"names": h.registry.Names()})
}

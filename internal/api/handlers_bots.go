// Copyright 2025 James Ross
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flyingrobots/jobcoordinator/internal/audit"
	"github.com/flyingrobots/jobcoordinator/internal/bots"
)

type botHandlers struct {
	bots  *bots.Service
	audit *audit.Logger
}

func (h *botHandlers) recordAudit(r *http.Request, action, target string, err error, detail string) {
	if h.audit == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	_ = h.audit.Record(clientIP(r), action, target, outcome, detail)
}

type registerBotRequest struct {
	ID                string  `json:"id"`
	AssignedOperation *string `json:"assigned_operation"`
}

// Register handles POST /bots/register.
func (h *botHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerBotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "id is required")
		return
	}
	bot, err := h.bots.Register(r.Context(), req.ID, req.AssignedOperation)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

type heartbeatRequest struct {
	ID string `json:"id"`
}

// Heartbeat handles POST /bots/heartbeat.
func (h *botHandlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "id is required")
		return
	}
	if err := h.bots.Heartbeat(r.Context(), req.ID); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type assignOperationRequest struct {
	Operation *string `json:"operation"`
}

// AssignOperation handles POST /bots/{id}/assign-operation (admin).
func (h *botHandlers) AssignOperation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req assignOperationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
			return
		}
	}
	bot, err := h.bots.AssignOperation(r.Context(), id, req.Operation)
	detail := "operation=unset"
	if req.Operation != nil {
		detail = "operation=" + *req.Operation
	}
	h.recordAudit(r, "bots.assign_operation", id, err, detail)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

// Delete handles DELETE /bots/{id} (admin).
func (h *botHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	err := h.bots.Delete(r.Context(), id)
	h.recordAudit(r, "bots.delete", id, err, "")
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Reset handles POST /bots/{id}/reset (admin).
func (h *botHandlers) Reset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	bot, err := h.bots.Reset(r.Context(), id)
	h.recordAudit(r, "bots.reset", id, err, "")
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bot)
}

// List handles GET /bots.
func (h *botHandlers) List(w http.ResponseWriter, r *http.Request) {
	out, err := h.bots.List(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

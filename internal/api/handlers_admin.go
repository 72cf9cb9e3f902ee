// Copyright 2025 James Ross
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/flyingrobots/jobcoordinator/internal/audit"
	"github.com/flyingrobots/jobcoordinator/internal/monitor"
)

type adminHandlers struct {
	retention *monitor.RetentionCleaner
	scheduler *monitor.Scheduler
	audit     *audit.Logger
}

// Cleanup handles POST /admin/cleanup?dry_run= (admin): an ad-hoc
// RetentionCleaner cycle, sharing the exact same RunOnce the scheduled
// cron trigger calls.
func (h *adminHandlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "true"
	report, err := h.retention.RunOnce(r.Context(), dryRun)
	if h.audit != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		_ = h.audit.Record(clientIP(r), "admin.cleanup", "", outcome, fmt.Sprintf("dry_run=%v processed=%d", dryRun, report.Processed))
	}
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"processed": report.Processed,
		"dry_run":   report.DryRun,
		"duration":  report.Duration.String(),
	})
}

// CleanupStatus handles GET /admin/cleanup/status (admin).
func (h *adminHandlers) CleanupStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"history":  h.retention.History(),
		"next_run": h.scheduler.RetentionNextRun(),
	})
}

// Healthz handles GET /healthz.
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "time": time.Now().UTC()})
}

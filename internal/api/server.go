// Copyright 2025 James Ross
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/flyingrobots/jobcoordinator/internal/audit"
	"github.com/flyingrobots/jobcoordinator/internal/bots"
	"github.com/flyingrobots/jobcoordinator/internal/config"
	"github.com/flyingrobots/jobcoordinator/internal/jobs"
	"github.com/flyingrobots/jobcoordinator/internal/monitor"
	"github.com/flyingrobots/jobcoordinator/internal/registry"
)

// Server is the coordinator's HTTP surface: a Start/Shutdown lifecycle
// around a gorilla/mux router, chosen over the standard library's
// ServeMux for its path-parameter support.
type Server struct {
	cfg    config.API
	log    *zap.Logger
	http   *http.Server
	router *mux.Router
}

func NewServer(cfg config.API, log *zap.Logger, jobsSvc *jobs.Service, botsSvc *bots.Service,
	reg *registry.Registry, populator *monitor.Populator, retention *monitor.RetentionCleaner, sched *monitor.Scheduler,
	auditLog *audit.Logger) *Server {

	jh := &jobHandlers{jobs: jobsSvc, registry: reg, populator: populator, audit: auditLog}
	bh := &botHandlers{bots: botsSvc, audit: auditLog}
	ah := &adminHandlers{retention: retention, scheduler: sched, audit: auditLog}

	router := mux.NewRouter()
	router.Use(RecoveryMiddleware(log))
	router.Use(RequestIDMiddleware())
	router.Use(CORSMiddleware())
	router.Use(RequestLogger(log))
	router.Use(RateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst))

	admin := AdminAuth(cfg.AdminToken, log)
	adminH := func(f http.HandlerFunc) http.Handler { return admin(f) }

	router.Handle("/jobs/populate", adminH(jh.Populate)).Methods(http.MethodPost)
	router.HandleFunc("/jobs", jh.List).Methods(http.MethodGet)
	router.HandleFunc("/jobs/{id}", jh.Get).Methods(http.MethodGet)
	router.HandleFunc("/jobs/claim", jh.Claim).Methods(http.MethodPost)
	router.HandleFunc("/jobs/{id}/start", jh.Start).Methods(http.MethodPost)
	router.HandleFunc("/jobs/{id}/complete", jh.Complete).Methods(http.MethodPost)
	router.HandleFunc("/jobs/{id}/fail", jh.Fail).Methods(http.MethodPost)
	router.Handle("/jobs/{id}/release", adminH(jh.Release)).Methods(http.MethodPost)

	router.HandleFunc("/bots/register", bh.Register).Methods(http.MethodPost)
	router.HandleFunc("/bots/heartbeat", bh.Heartbeat).Methods(http.MethodPost)
	router.Handle("/bots/{id}/assign-operation", adminH(bh.AssignOperation)).Methods(http.MethodPost)
	router.Handle("/bots/{id}", adminH(bh.Delete)).Methods(http.MethodDelete)
	router.Handle("/bots/{id}/reset", adminH(bh.Reset)).Methods(http.MethodPost)
	router.HandleFunc("/bots", bh.List).Methods(http.MethodGet)

	router.HandleFunc("/operations", jh.Operations).Methods(http.MethodGet)
	router.HandleFunc("/metrics/summary", jh.Summary).Methods(http.MethodGet)

	router.Handle("/admin/cleanup", adminH(ah.Cleanup)).Methods(http.MethodPost)
	router.Handle("/admin/cleanup/status", adminH(ah.CleanupStatus)).Methods(http.MethodGet)

	router.HandleFunc("/healthz", Healthz).Methods(http.MethodGet)

	return &Server{cfg: cfg, log: log, router: router}
}

// Start begins serving in the background and returns immediately; a
// listen failure is sent on the returned channel.
func (s *Server) Start() <-chan error {
	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.HTTPPort),
		Handler:      s.router,
		ReadTimeout:  s.cfg.RequestTimeout,
		WriteTimeout: s.cfg.RequestTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.Int("port", s.cfg.HTTPPort))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}


// Copyright 2025 James Ross
package obs

import (
	"fmt"
	"net/http"

	"github.com/flyingrobots/jobcoordinator/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobs_created_total",
		Help: "Total number of jobs created by the populator",
	})
	JobsClaimed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobs_claimed_total",
		Help: "Total number of successful job claims",
	})
	JobsSucceeded = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobs_succeeded_total",
		Help: "Total number of jobs completed successfully",
	})
	JobsFailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobs_failed_total",
		Help: "Total number of jobs that finished in the failed state",
	})
	JobsReleased = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "jobs_released_total",
		Help: "Total number of jobs returned to pending (admin release or monitor timeout)",
	})
	ClaimLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "job_claim_latency_seconds",
		Help:    "Histogram of time spent servicing a claim request",
		Buckets: prometheus.DefBuckets,
	})
	JobProcessingDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "job_processing_duration_seconds",
		Help:    "Histogram of bot-reported job processing durations",
		Buckets: prometheus.DefBuckets,
	})
	PendingJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "jobs_pending",
		Help: "Current count of pending jobs",
	})
	BotsByStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bots_by_status",
		Help: "Current number of bots in each computed status",
	}, []string{"status"})
	CircuitBreakerState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "datalake_circuit_breaker_state",
		Help: "0 Closed, 1 HalfOpen, 2 Open",
	})
	CircuitBreakerTrips = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "datalake_circuit_breaker_trips_total",
		Help: "Count of times the datalake sink's circuit breaker transitioned to Open",
	})
	DatalakeAppendsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "datalake_appends_dropped_total",
		Help: "Total number of result records dropped by the datalake sink",
	})
	MonitorRecovered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_recovered_total",
		Help: "Total number of jobs recovered by a monitor cycle, by monitor name",
	}, []string{"monitor"})
	FatalErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_fatal_errors_total",
		Help: "Total number of store invariant violations surfaced to a caller, by invariant name",
	}, []string{"invariant"})
)

func init() {
	prometheus.MustRegister(JobsCreated, JobsClaimed, JobsSucceeded, JobsFailed, JobsReleased,
		ClaimLatency, JobProcessingDuration, PendingJobs, BotsByStatus,
		CircuitBreakerState, CircuitBreakerTrips, DatalakeAppendsDropped, MonitorRecovered,
		FatalErrors)
}

// StartMetricsServer exposes /metrics on its own port, separate from the
// main API server, so scraping never competes with request-handling load.
func StartMetricsServer(cfg *config.Config) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Observability.MetricsPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Copyright 2025 James Ross
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/flyingrobots/jobcoordinator/internal/datalake"
	"github.com/flyingrobots/jobcoordinator/internal/obs"
	"github.com/flyingrobots/jobcoordinator/internal/registry"
	"github.com/flyingrobots/jobcoordinator/internal/store"
)

// ErrUnknownOperation mirrors store.ErrUnknownOperation at the service
// boundary so callers that only import jobs don't need to reach into store.
var ErrUnknownOperation = store.ErrUnknownOperation

// Appender is the subset of datalake.Sink the service depends on, kept as
// an interface so tests can substitute a recording fake without touching
// the filesystem.
type Appender interface {
	Append(rec datalake.ResultRecord)
}

// Service wraps the store's job operations with registry validation and
// metrics/datalake side effects behind a stable API the HTTP layer calls
// without ever touching SQL directly.
type Service struct {
	store    *store.Store
	registry *registry.Registry
	sink     Appender
	log      *zap.Logger
}

func New(st *store.Store, reg *registry.Registry, sink Appender, log *zap.Logger) *Service {
	return &Service{store: st, registry: reg, sink: sink, log: log}
}

// Create validates the operation against the registry and inserts a new
// pending job. Used by the Populator.
func (s *Service) Create(ctx context.Context, a, b float64, operation string) (*store.Job, error) {
	if !s.registry.Contains(operation) {
		return nil, ErrUnknownOperation
	}
	job, err := s.store.CreateJob(ctx, a, b, operation)
	if err == nil {
		obs.JobsCreated.Inc()
	}
	return job, err
}

func (s *Service) Get(ctx context.Context, id string) (*store.Job, error) {
	return s.store.GetJob(ctx, id)
}

func (s *Service) List(ctx context.Context, f store.ListFilter) ([]*store.Job, error) {
	return s.store.ListJobs(ctx, f)
}

// Claim attempts to hand a bot the oldest eligible pending job. Returns
// (nil, nil) when there is no work.
func (s *Service) Claim(ctx context.Context, botID string) (*store.Job, error) {
	start := time.Now()
	job, err := s.store.Claim(ctx, botID)
	obs.ClaimLatency.Observe(time.Since(start).Seconds())
	if err == nil && job != nil {
		obs.JobsClaimed.Inc()
	}
	return job, err
}

func (s *Service) Start(ctx context.Context, jobID, botID string) (*store.Job, error) {
	return s.store.Start(ctx, jobID, botID)
}

// Complete finalizes a job as succeeded and best-effort mirrors the result
// to the datalake. The datalake append happens strictly after the store
// transaction commits and its failure is never surfaced to the caller --
// the Job/Result rows are already durable at that point.
func (s *Service) Complete(ctx context.Context, jobID, botID string, result float64, durationMs int64) (*store.Job, *store.Result, error) {
	job, res, err := s.store.Complete(ctx, jobID, botID, result, durationMs)
	if err != nil {
		s.reportFatal(jobID, err)
		return nil, nil, err
	}
	obs.JobsSucceeded.Inc()
	obs.JobProcessingDuration.Observe(float64(durationMs) / 1000.0)
	s.appendResult(res)
	return job, res, nil
}

// Fail finalizes a job as failed with a bot-reported reason.
func (s *Service) Fail(ctx context.Context, jobID, botID, reason string, durationMs int64) (*store.Job, *store.Result, error) {
	job, res, err := s.store.Fail(ctx, jobID, botID, reason, durationMs)
	if err != nil {
		s.reportFatal(jobID, err)
		return nil, nil, err
	}
	obs.JobsFailed.Inc()
	obs.JobProcessingDuration.Observe(float64(durationMs) / 1000.0)
	s.appendResult(res)
	return job, res, nil
}

// ForceFail is the monitor-driven counterpart to Fail.
func (s *Service) ForceFail(ctx context.Context, jobID, reason string, durationMs int64) (*store.Job, *store.Result, error) {
	job, res, err := s.store.ForceFail(ctx, jobID, reason, durationMs)
	if err != nil {
		return nil, nil, err
	}
	obs.JobsFailed.Inc()
	s.appendResult(res)
	return job, res, nil
}

// Release forces a non-terminal job back to pending. Shared by the admin
// /release endpoint and the ClaimedJobMonitor.
func (s *Service) Release(ctx context.Context, jobID, reason string) (*store.Job, error) {
	job, err := s.store.Release(ctx, jobID, reason)
	if err == nil {
		obs.JobsReleased.Inc()
	}
	return job, err
}

func (s *Service) CountPending(ctx context.Context) (int, error) {
	return s.store.CountPendingJobs(ctx)
}

// reportFatal logs and counts a store.FatalError with the job ID and
// violated invariant attached, so an invariant violation is never just a
// 500 response with no trace of what broke. No-op for any other error.
func (s *Service) reportFatal(jobID string, err error) {
	var fatal *store.FatalError
	if !errors.As(err, &fatal) {
		return
	}
	obs.FatalErrors.WithLabelValues(fatal.Invariant).Inc()
	if s.log != nil {
		s.log.Error("store invariant violated",
			zap.String("job_id", jobID),
			zap.String("invariant", fatal.Invariant),
			zap.Error(fatal.Err))
	}
}

func (s *Service) appendResult(res *store.Result) {
	if s.sink == nil || res == nil {
		return
	}
	var errPtr *string
	if res.Error != nil {
		e := *res.Error
		errPtr = &e
	}
	s.sink.Append(datalake.ResultRecord{
		ID:          res.ID,
		JobID:       res.JobID,
		A:           res.A,
		B:           res.B,
		Operation:   res.Operation,
		Result:      res.Result,
		ProcessedBy: res.ProcessedBy,
		ProcessedAt: res.ProcessedAt,
		DurationMs:  res.DurationMs,
		Status:      res.Status,
		Error:       errPtr,
	})
}

// Summary reports counts by status, backing GET /metrics/summary.
func (s *Service) Summary(ctx context.Context) (map[string]int, error) {
	out := map[string]int{}
	for _, status := range []string{store.JobPending, store.JobClaimed, store.JobProcessing, store.JobSucceeded, store.JobFailed} {
		n, err := s.store.CountByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("summary status %s: %w", status, err)
		}
		out[status] = n
	}
	return out, nil
}

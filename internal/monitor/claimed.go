// Copyright 2025 James Ross
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/flyingrobots/jobcoordinator/internal/jobs"
	"github.com/flyingrobots/jobcoordinator/internal/obs"
	"github.com/flyingrobots/jobcoordinator/internal/store"
)

// ClaimedJobMonitor finds jobs stuck in claimed (a bot claimed but never
// called start) and releases them back to pending, marking the owning
// bot potentially-stuck first. Runs a scan-then-act loop each cycle.
type ClaimedJobMonitor struct {
	store     *store.Store
	jobs      *jobs.Service
	timeout   time.Duration
	batchSize int
	log       *zap.Logger
	history   *History
}

func NewClaimedJobMonitor(st *store.Store, j *jobs.Service, timeout time.Duration, batchSize int, log *zap.Logger, historySize int) *ClaimedJobMonitor {
	return &ClaimedJobMonitor{store: st, jobs: j, timeout: timeout, batchSize: batchSize, log: log, history: NewHistory(historySize)}
}

func (m *ClaimedJobMonitor) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	stale, err := m.store.FindTimedOutClaimed(ctx, m.timeout, m.batchSize)
	if err != nil {
		r := Report{Monitor: "claimed_job_monitor", StartedAt: start, Duration: time.Since(start), Err: err}
		m.history.Record(r)
		return r, err
	}

	processed := 0
	for _, job := range stale {
		if job.ClaimedBy != nil {
			if healthErr := m.store.SetBotHealth(ctx, *job.ClaimedBy, store.HealthPotentiallyStuck, &job.ID); healthErr != nil {
				m.log.Warn("mark bot potentially stuck failed", zap.String("bot_id", *job.ClaimedBy), zap.Error(healthErr))
			}
		}
		if _, err := m.jobs.Release(ctx, job.ID, "timeout-in-claimed"); err != nil {
			m.log.Error("release timed-out claimed job failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		processed++
	}

	obs.MonitorRecovered.WithLabelValues("claimed_job_monitor").Add(float64(processed))
	r := Report{Monitor: "claimed_job_monitor", StartedAt: start, Duration: time.Since(start), Processed: processed}
	m.history.Record(r)
	return r, nil
}

func (m *ClaimedJobMonitor) History() []Report { return m.history.Recent() }

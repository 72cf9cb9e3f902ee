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

// ProcessingJobMonitor finds jobs stuck in processing (a bot started but
// never completed or failed) and terminally fails them, marking the
// owning bot unhealthy first.
type ProcessingJobMonitor struct {
	store     *store.Store
	jobs      *jobs.Service
	timeout   time.Duration
	batchSize int
	log       *zap.Logger
	history   *History
}

func NewProcessingJobMonitor(st *store.Store, j *jobs.Service, timeout time.Duration, batchSize int, log *zap.Logger, historySize int) *ProcessingJobMonitor {
	return &ProcessingJobMonitor{store: st, jobs: j, timeout: timeout, batchSize: batchSize, log: log, history: NewHistory(historySize)}
}

func (m *ProcessingJobMonitor) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	stale, err := m.store.FindTimedOutProcessing(ctx, m.timeout, m.batchSize)
	if err != nil {
		r := Report{Monitor: "processing_job_monitor", StartedAt: start, Duration: time.Since(start), Err: err}
		m.history.Record(r)
		return r, err
	}

	processed := 0
	for _, job := range stale {
		if job.ClaimedBy != nil {
			if healthErr := m.store.SetBotHealth(ctx, *job.ClaimedBy, store.HealthUnhealthy, &job.ID); healthErr != nil {
				m.log.Warn("mark bot unhealthy failed", zap.String("bot_id", *job.ClaimedBy), zap.Error(healthErr))
			}
		}
		durationMs := time.Since(job.CreatedAt).Milliseconds()
		if job.StartedAt != nil {
			durationMs = time.Since(*job.StartedAt).Milliseconds()
		}
		if _, _, err := m.jobs.ForceFail(ctx, job.ID, "timeout-in-processing", durationMs); err != nil {
			m.log.Error("force-fail timed-out processing job failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		processed++
	}

	obs.MonitorRecovered.WithLabelValues("processing_job_monitor").Add(float64(processed))
	r := Report{Monitor: "processing_job_monitor", StartedAt: start, Duration: time.Since(start), Processed: processed}
	m.history.Record(r)
	return r, nil
}

func (m *ProcessingJobMonitor) History() []Report { return m.history.Recent() }

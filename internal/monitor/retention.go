// Copyright 2025 James Ross
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/flyingrobots/jobcoordinator/internal/obs"
	"github.com/flyingrobots/jobcoordinator/internal/store"
)

// RetentionCleaner physically deletes soft-deleted bots past the retention
// window and purges orphaned results. Supports a
// dry-run mode that reports counts without mutating anything, used by both
// its scheduled runs (always live) and the admin-triggered ad-hoc endpoint
// (caller chooses).
type RetentionCleaner struct {
	store     *store.Store
	retention time.Duration
	log       *zap.Logger
	history   *History
}

func NewRetentionCleaner(st *store.Store, retention time.Duration, log *zap.Logger, historySize int) *RetentionCleaner {
	return &RetentionCleaner{store: st, retention: retention, log: log, history: NewHistory(historySize)}
}

func (m *RetentionCleaner) RunOnce(ctx context.Context, dryRun bool) (Report, error) {
	start := time.Now()
	cutoff := start.Add(-m.retention)

	bots, err := m.store.PurgeDeletedBots(ctx, cutoff, dryRun)
	if err != nil {
		r := Report{Monitor: "retention_cleaner", StartedAt: start, Duration: time.Since(start), DryRun: dryRun, Err: err}
		m.history.Record(r)
		return r, err
	}
	results, err := m.store.PurgeOrphanedResults(ctx, dryRun)
	if err != nil {
		r := Report{Monitor: "retention_cleaner", StartedAt: start, Duration: time.Since(start), DryRun: dryRun, Err: err}
		m.history.Record(r)
		return r, err
	}

	processed := bots + results
	if !dryRun {
		obs.MonitorRecovered.WithLabelValues("retention_cleaner").Add(float64(processed))
	}
	r := Report{Monitor: "retention_cleaner", StartedAt: start, Duration: time.Since(start), Processed: processed, DryRun: dryRun}
	m.history.Record(r)
	return r, nil
}

func (m *RetentionCleaner) History() []Report { return m.history.Recent() }

// Copyright 2025 James Ross
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler drives the four monitors on independent cron schedules. Each
// monitor catches and logs its own errors -- a failed cycle never stops
// the schedule ("Monitors run as independent long-lived
// tasks... no process-wide lock").
type Scheduler struct {
	cron       *cron.Cron
	log        *zap.Logger
	populator  *Populator
	claimed    *ClaimedJobMonitor
	processing *ProcessingJobMonitor
	retention  *RetentionCleaner

	retentionEntryID cron.EntryID
}

func NewScheduler(log *zap.Logger, p *Populator, c *ClaimedJobMonitor, proc *ProcessingJobMonitor, r *RetentionCleaner) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		log:        log,
		populator:  p,
		claimed:    c,
		processing: proc,
		retention:  r,
	}
}

// Start registers all four monitors at the given intervals and starts the
// cron scheduler. It does not block.
func (s *Scheduler) Start(ctx context.Context, populatorInterval, claimedInterval, processingInterval, retentionInterval time.Duration) error {
	if _, err := s.cron.AddFunc(everySpec(populatorInterval), func() {
		if _, _, err := s.populator.RunOnce(ctx); err != nil {
			s.log.Error("populator cycle failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule populator: %w", err)
	}

	if _, err := s.cron.AddFunc(everySpec(claimedInterval), func() {
		if _, err := s.claimed.RunOnce(ctx); err != nil {
			s.log.Error("claimed job monitor cycle failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule claimed job monitor: %w", err)
	}

	if _, err := s.cron.AddFunc(everySpec(processingInterval), func() {
		if _, err := s.processing.RunOnce(ctx); err != nil {
			s.log.Error("processing job monitor cycle failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule processing job monitor: %w", err)
	}

	entryID, err := s.cron.AddFunc(everySpec(retentionInterval), func() {
		if _, err := s.retention.RunOnce(ctx, false); err != nil {
			s.log.Error("retention cleaner cycle failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule retention cleaner: %w", err)
	}
	s.retentionEntryID = entryID

	s.cron.Start()
	return nil
}

// Stop cancels future scheduled runs and waits for any in-flight cycle.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RetentionNextRun backs GET /admin/cleanup/status's next_run field.
func (s *Scheduler) RetentionNextRun() time.Time {
	return s.cron.Entry(s.retentionEntryID).Next
}

func everySpec(d time.Duration) string {
	return fmt.Sprintf("@every %s", d.String())
}

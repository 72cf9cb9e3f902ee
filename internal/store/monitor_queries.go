// Copyright 2025 James Ross
package store

import (
	"context"
	"time"
)

// FindTimedOutClaimed returns up to limit jobs stuck in 'claimed' longer
// than timeout, oldest first. Used by the ClaimedJobMonitor.
func (s *Store) FindTimedOutClaimed(ctx context.Context, timeout time.Duration, limit int) ([]*Job, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	const q = `SELECT id, a, b, operation, status, claimed_by, claimed_at, started_at,
		finished_at, created_at, attempts, error, version FROM jobs
		WHERE status = 'claimed' AND claimed_at < $1 ORDER BY claimed_at ASC LIMIT $2`
	return s.queryJobs(ctx, q, cutoff, limit)
}

// FindTimedOutProcessing returns up to limit jobs stuck in 'processing'
// longer than timeout, oldest first. Used by the ProcessingJobMonitor.
func (s *Store) FindTimedOutProcessing(ctx context.Context, timeout time.Duration, limit int) ([]*Job, error) {
	cutoff := time.Now().UTC().Add(-timeout)
	const q = `SELECT id, a, b, operation, status, claimed_by, claimed_at, started_at,
		finished_at, created_at, attempts, error, version FROM jobs
		WHERE status = 'processing' AND started_at < $1 ORDER BY started_at ASC LIMIT $2`
	return s.queryJobs(ctx, q, cutoff, limit)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...interface{}) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewTransientError("query jobs", err)
	}
	defer rows.Close()
	var out []*Job
	for rows.Next() {
		var j Job
		if err := rows.Scan(&j.ID, &j.A, &j.B, &j.Operation, &j.Status, &j.ClaimedBy, &j.ClaimedAt,
			&j.StartedAt, &j.FinishedAt, &j.CreatedAt, &j.Attempts, &j.Error, &j.Version); err != nil {
			return nil, NewTransientError("scan job", err)
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}

// SetBotHealth records a monitor's health assessment of a bot.
func (s *Store) SetBotHealth(ctx context.Context, botID, health string, stuckJobID *string) error {
	now := time.Now().UTC()
	const q = `UPDATE bots SET health_status = $2, stuck_job_id = $3, health_checked_at = $4 WHERE id = $1`
	_, err := s.db.ExecContext(ctx, q, botID, health, stuckJobID, now)
	if err != nil {
		return NewTransientError("set bot health", err)
	}
	return nil
}

// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"time"
)

// Claim implements the coordinator's core invariant: atomic, non-blocking,
// FIFO-within-operation claiming with dynamic operation pinning, all in one
// transactional update, using SELECT ... FOR UPDATE SKIP LOCKED plus an
// ownership check via RowsAffected.
//
// bot must already be registered, present, and not currently holding a job.
// If the bot has no assigned_operation yet, this call pins it to the
// operation of the job it claims, in the same transaction (dynamic
// pinning). Returns (nil, nil) when there is no claimable job: an empty
// queue is a normal, non-error outcome.
func (s *Store) Claim(ctx context.Context, botID string) (*Job, error) {
	var claimed *Job
	err := s.transaction(ctx, func(ctx context.Context, q querier) error {
		bot, err := s.getBotForUpdate(ctx, q, botID)
		if err != nil {
			return err
		}
		if bot.DeletedAt != nil {
			return ErrBotNotFound
		}
		if bot.CurrentJobID != nil {
			return ErrBotBusy
		}

		// Skip-locked scan: oldest created_at, then lexicographically
		// smallest id, restricted to the bot's pinned operation if any.
		// No head-of-line blocking -- a job another claimer is already
		// locking is simply skipped, not waited on.
		var row *sql.Row
		if bot.AssignedOperation != nil {
			const query = `SELECT id, a, b, operation, status, claimed_by, claimed_at, started_at,
				finished_at, created_at, attempts, error, version FROM jobs
				WHERE status = 'pending' AND operation = $1
				ORDER BY created_at ASC, id ASC
				FOR UPDATE SKIP LOCKED LIMIT 1`
			row = q.QueryRowContext(ctx, query, *bot.AssignedOperation)
		} else {
			const query = `SELECT id, a, b, operation, status, claimed_by, claimed_at, started_at,
				finished_at, created_at, attempts, error, version FROM jobs
				WHERE status = 'pending'
				ORDER BY created_at ASC, id ASC
				FOR UPDATE SKIP LOCKED LIMIT 1`
			row = q.QueryRowContext(ctx, query)
		}

		job, err := scanJob(row)
		if err == sql.ErrNoRows {
			return nil // no pending job: empty result, not an error
		}
		if err != nil {
			return NewTransientError("claim scan", err)
		}

		now := time.Now().UTC()
		const updJob = `UPDATE jobs SET status = 'claimed', claimed_by = $1, claimed_at = $2,
			version = version + 1 WHERE id = $3 AND status = 'pending'`
		res, err := q.ExecContext(ctx, updJob, botID, now, job.ID)
		if err != nil {
			return NewTransientError("claim update job", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Lost the race between the scan and the update -- treat as
			// "no job this cycle" rather than surfacing a spurious error.
			return nil
		}

		const updBot = `UPDATE bots SET status = 'busy', current_job_id = $1,
			assigned_operation = COALESCE(assigned_operation, $2) WHERE id = $3`
		if _, err := q.ExecContext(ctx, updBot, job.ID, job.Operation, botID); err != nil {
			return NewTransientError("claim pin bot", err)
		}

		job.Status = JobClaimed
		job.ClaimedBy = &botID
		job.ClaimedAt = &now
		job.Version++
		claimed = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (s *Store) getBotForUpdate(ctx context.Context, q querier, id string) (*Bot, error) {
	const query = `SELECT id, status, current_job_id, last_heartbeat_at, created_at, deleted_at,
		assigned_operation, health_status, stuck_job_id, health_checked_at
		FROM bots WHERE id = $1 FOR UPDATE`
	row := q.QueryRowContext(ctx, query, id)
	b, err := scanBot(row)
	if err == sql.ErrNoRows {
		return nil, ErrBotNotFound
	}
	if err != nil {
		return nil, NewTransientError("get bot for update", err)
	}
	return b, nil
}

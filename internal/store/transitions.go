// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// getJobForUpdate row-locks a job for the duration of the enclosing
// transaction; every transition below starts from this.
func (s *Store) getJobForUpdate(ctx context.Context, q querier, id string) (*Job, error) {
	const query = `SELECT id, a, b, operation, status, claimed_by, claimed_at, started_at,
		finished_at, created_at, attempts, error, version FROM jobs WHERE id = $1 FOR UPDATE`
	row := q.QueryRowContext(ctx, query, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, NewTransientError("get job for update", err)
	}
	return j, nil
}

// Start transitions claimed -> processing. Idempotent on replay: calling
// Start again for the same bot against an already-processing job just
// returns the current job
func (s *Store) Start(ctx context.Context, jobID, botID string) (*Job, error) {
	var out *Job
	err := s.transaction(ctx, func(ctx context.Context, q querier) error {
		job, err := s.getJobForUpdate(ctx, q, jobID)
		if err != nil {
			return err
		}
		if job.Status == JobProcessing && job.ClaimedBy != nil && *job.ClaimedBy == botID {
			out = job
			return nil
		}
		if job.Status != JobClaimed {
			return NewConflictError("job_state_consistency", "job", jobID, "job is not in claimed state")
		}
		if job.ClaimedBy == nil || *job.ClaimedBy != botID {
			return NewConflictError("job_state_consistency", "job", jobID, "job is not claimed by this bot")
		}
		now := time.Now().UTC()
		const upd = `UPDATE jobs SET status = 'processing', started_at = $2, version = version + 1 WHERE id = $1`
		if _, err := q.ExecContext(ctx, upd, jobID, now); err != nil {
			return NewTransientError("start job", err)
		}
		job.Status = JobProcessing
		job.StartedAt = &now
		job.Version++
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Complete transitions processing -> succeeded, writes the Result row,
// clears the bot's binding and sets it idle -- all in one transaction.
// Idempotent on replay against the same terminal state; AlreadyTerminal on
// a conflicting replay (different result/bot)
func (s *Store) Complete(ctx context.Context, jobID, botID string, result float64, durationMs int64) (*Job, *Result, error) {
	var outJob *Job
	var outResult *Result
	err := s.transaction(ctx, func(ctx context.Context, q querier) error {
		job, err := s.getJobForUpdate(ctx, q, jobID)
		if err != nil {
			return err
		}
		if job.Status == JobSucceeded {
			existing, err := s.getResultInTx(ctx, q, jobID)
			if err != nil {
				return err
			}
			if existing.ProcessedBy == botID && existing.Result != nil && *existing.Result == result {
				outJob, outResult = job, existing
				return nil
			}
			return ErrAlreadyTerminal
		}
		if job.Status == JobFailed {
			return ErrAlreadyTerminal
		}
		if job.Status != JobProcessing {
			return NewConflictError("job_state_consistency", "job", jobID, "job is not in processing state")
		}
		if job.ClaimedBy == nil || *job.ClaimedBy != botID {
			return NewConflictError("job_state_consistency", "job", jobID, "job is not claimed by this bot")
		}

		now := time.Now().UTC()
		const updJob = `UPDATE jobs SET status = 'succeeded', finished_at = $2, version = version + 1 WHERE id = $1`
		if _, err := q.ExecContext(ctx, updJob, jobID, now); err != nil {
			return NewTransientError("complete job", err)
		}

		res := &Result{
			ID:          uuid.New().String(),
			JobID:       jobID,
			A:           job.A,
			B:           job.B,
			Operation:   job.Operation,
			Result:      &result,
			ProcessedBy: botID,
			ProcessedAt: now,
			DurationMs:  durationMs,
			Status:      ResultSucceeded,
		}
		if err := s.insertResult(ctx, q, res); err != nil {
			return err
		}
		if err := s.clearBotBinding(ctx, q, botID); err != nil {
			return err
		}

		job.Status = JobSucceeded
		job.FinishedAt = &now
		job.Version++
		outJob, outResult = job, res
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outJob, outResult, nil
}

// Fail transitions processing -> failed, writing a failed Result row and
// clearing the bot binding, mirroring Complete.
func (s *Store) Fail(ctx context.Context, jobID, botID, reason string, durationMs int64) (*Job, *Result, error) {
	var outJob *Job
	var outResult *Result
	err := s.transaction(ctx, func(ctx context.Context, q querier) error {
		job, err := s.getJobForUpdate(ctx, q, jobID)
		if err != nil {
			return err
		}
		if job.Status == JobFailed {
			existing, err := s.getResultInTx(ctx, q, jobID)
			if err != nil {
				return err
			}
			if existing.ProcessedBy == botID {
				outJob, outResult = job, existing
				return nil
			}
			return ErrAlreadyTerminal
		}
		if job.Status == JobSucceeded {
			return ErrAlreadyTerminal
		}
		if job.Status != JobProcessing {
			return NewConflictError("job_state_consistency", "job", jobID, "job is not in processing state")
		}
		if job.ClaimedBy == nil || *job.ClaimedBy != botID {
			return NewConflictError("job_state_consistency", "job", jobID, "job is not claimed by this bot")
		}

		now := time.Now().UTC()
		const updJob = `UPDATE jobs SET status = 'failed', finished_at = $2, error = $3, version = version + 1 WHERE id = $1`
		if _, err := q.ExecContext(ctx, updJob, jobID, now, reason); err != nil {
			return NewTransientError("fail job", err)
		}

		res := &Result{
			ID:          uuid.New().String(),
			JobID:       jobID,
			A:           job.A,
			B:           job.B,
			Operation:   job.Operation,
			ProcessedBy: botID,
			ProcessedAt: now,
			DurationMs:  durationMs,
			Status:      ResultFailed,
			Error:       &reason,
		}
		if err := s.insertResult(ctx, q, res); err != nil {
			return err
		}
		if err := s.clearBotBinding(ctx, q, botID); err != nil {
			return err
		}

		job.Status = JobFailed
		job.FinishedAt = &now
		job.Error = &reason
		job.Version++
		outJob, outResult = job, res
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outJob, outResult, nil
}

// ForceFail is the system-initiated counterpart to Fail, used by the
// ProcessingJobMonitor when a processing job exceeds its timeout. Unlike
// Fail, it does not require a matching bot -- the bot may itself be
// unresponsive, which is exactly why the monitor is forcing the
// transition on its behalf.
func (s *Store) ForceFail(ctx context.Context, jobID, reason string, durationMs int64) (*Job, *Result, error) {
	var outJob *Job
	var outResult *Result
	err := s.transaction(ctx, func(ctx context.Context, q querier) error {
		job, err := s.getJobForUpdate(ctx, q, jobID)
		if err != nil {
			return err
		}
		if job.Status != JobProcessing {
			return NewConflictError("job_state_consistency", "job", jobID, "job is not in processing state")
		}
		processedBy := ""
		if job.ClaimedBy != nil {
			processedBy = *job.ClaimedBy
		}

		now := time.Now().UTC()
		const updJob = `UPDATE jobs SET status = 'failed', finished_at = $2, error = $3, version = version + 1 WHERE id = $1`
		if _, err := q.ExecContext(ctx, updJob, jobID, now, reason); err != nil {
			return NewTransientError("force fail job", err)
		}

		res := &Result{
			ID:          uuid.New().String(),
			JobID:       jobID,
			A:           job.A,
			B:           job.B,
			Operation:   job.Operation,
			ProcessedBy: processedBy,
			ProcessedAt: now,
			DurationMs:  durationMs,
			Status:      ResultFailed,
			Error:       &reason,
		}
		if err := s.insertResult(ctx, q, res); err != nil {
			return err
		}
		if processedBy != "" {
			if err := s.clearBotBinding(ctx, q, processedBy); err != nil {
				return err
			}
		}

		job.Status = JobFailed
		job.FinishedAt = &now
		job.Error = &reason
		job.Version++
		outJob, outResult = job, res
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return outJob, outResult, nil
}

// Release forces a non-terminal job back to pending: clears both
// bindings, increments attempts, records reason in Job.error. Shared by
// the admin-only /release endpoint and the timeout monitors (with reasons
// "timeout-in-claimed" / a distinct terminal-fail path for processing
// timeouts) -- one code path, no privileged shortcut
func (s *Store) Release(ctx context.Context, jobID, reason string) (*Job, error) {
	var out *Job
	err := s.transaction(ctx, func(ctx context.Context, q querier) error {
		job, err := s.getJobForUpdate(ctx, q, jobID)
		if err != nil {
			return err
		}
		if job.Status == JobPending {
			return ErrAlreadyPending
		}
		if job.Status == JobSucceeded || job.Status == JobFailed {
			return NewConflictError("job_state_consistency", "job", jobID, "cannot release a terminal job")
		}

		if job.ClaimedBy != nil {
			if err := releaseJobLocked(ctx, q, jobID, reason); err != nil {
				return err
			}
		}
		out, err = s.getJobForUpdate(ctx, q, jobID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// releaseJobLocked is the shared primitive: clears the job back to
// pending and clears whichever bot currently holds it. The caller must
// already be inside a transaction with the job (and ideally the bot)
// locked. Used by Release, SoftDelete, and Reset.
func releaseJobLocked(ctx context.Context, q querier, jobID, reason string) error {
	const updJob = `UPDATE jobs SET status = 'pending', claimed_by = NULL, claimed_at = NULL,
		started_at = NULL, attempts = attempts + 1, error = $2, version = version + 1 WHERE id = $1`
	if _, err := q.ExecContext(ctx, updJob, jobID, reason); err != nil {
		return NewTransientError("release job", err)
	}
	const updBot = `UPDATE bots SET current_job_id = NULL, status = 'idle' WHERE current_job_id = $1`
	if _, err := q.ExecContext(ctx, updBot, jobID); err != nil {
		return NewTransientError("release clear bot", err)
	}
	return nil
}

func (s *Store) clearBotBinding(ctx context.Context, q querier, botID string) error {
	const upd = `UPDATE bots SET current_job_id = NULL, status = 'idle' WHERE id = $1`
	_, err := q.ExecContext(ctx, upd, botID)
	if err != nil {
		return NewTransientError("clear bot binding", err)
	}
	return nil
}

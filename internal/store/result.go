// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
)

func (s *Store) insertResult(ctx context.Context, q querier, r *Result) error {
	const ins = `INSERT INTO results (id, job_id, a, b, operation, result, processed_by,
		processed_at, duration_ms, status, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := q.ExecContext(ctx, ins, r.ID, r.JobID, r.A, r.B, r.Operation, r.Result,
		r.ProcessedBy, r.ProcessedAt, r.DurationMs, r.Status, r.Error)
	if err != nil {
		return NewTransientError("insert result", err)
	}
	return nil
}

func (s *Store) getResultInTx(ctx context.Context, q querier, jobID string) (*Result, error) {
	const query = `SELECT id, job_id, a, b, operation, result, processed_by, processed_at,
		duration_ms, status, error FROM results WHERE job_id = $1`
	row := q.QueryRowContext(ctx, query, jobID)
	var r Result
	err := row.Scan(&r.ID, &r.JobID, &r.A, &r.B, &r.Operation, &r.Result, &r.ProcessedBy,
		&r.ProcessedAt, &r.DurationMs, &r.Status, &r.Error)
	if err == sql.ErrNoRows {
		return nil, NewFatalError("terminal_job_has_result", sql.ErrNoRows)
	}
	if err != nil {
		return nil, NewTransientError("get result", err)
	}
	return &r, nil
}

// GetResultByJobID fetches a Result for API/test consumption.
func (s *Store) GetResultByJobID(ctx context.Context, jobID string) (*Result, error) {
	return s.getResultInTx(ctx, s.db, jobID)
}

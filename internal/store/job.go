// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateJob inserts a new pending job. Used by the Populator.
func (s *Store) CreateJob(ctx context.Context, a, b float64, operation string) (*Job, error) {
	j := &Job{
		ID:        uuid.New().String(),
		A:         a,
		B:         b,
		Operation: operation,
		Status:    JobPending,
		CreatedAt: time.Now().UTC(),
		Version:   1,
	}
	const q = `INSERT INTO jobs (id, a, b, operation, status, created_at, attempts, version)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 1)`
	_, err := s.db.ExecContext(ctx, q, j.ID, j.A, j.B, j.Operation, j.Status, j.CreatedAt)
	if err != nil {
		return nil, NewTransientError("create job", err)
	}
	return j, nil
}

// GetJob fetches a single job by id.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.getJob(ctx, s.db, id)
}

func (s *Store) getJob(ctx context.Context, q querier, id string) (*Job, error) {
	const query = `SELECT id, a, b, operation, status, claimed_by, claimed_at, started_at,
		finished_at, created_at, attempts, error, version FROM jobs WHERE id = $1`
	row := q.QueryRowContext(ctx, query, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, NewTransientError("get job", err)
	}
	return j, nil
}

func scanJob(row *sql.Row) (*Job, error) {
	var j Job
	if err := row.Scan(&j.ID, &j.A, &j.B, &j.Operation, &j.Status, &j.ClaimedBy, &j.ClaimedAt,
		&j.StartedAt, &j.FinishedAt, &j.CreatedAt, &j.Attempts, &j.Error, &j.Version); err != nil {
		return nil, err
	}
	return &j, nil
}

// ListJobs returns jobs ordered per the status-priority contract
// (pending < claimed < processing < succeeded < failed, then created_at
// DESC), a query-level guarantee that consumers must not
// re-sort.
func (s *Store) ListJobs(ctx context.Context, f ListFilter) ([]*Job, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args := []interface{}{}
	where := ""
	if f.Status != "" {
		where = "WHERE status = $1"
		args = append(args, f.Status)
	}
	args = append(args, limit, f.Offset)
	limitPos := len(args) - 1
	offsetPos := len(args)
	query := fmt.Sprintf(`SELECT id, a, b, operation, status, claimed_by, claimed_at, started_at,
		finished_at, created_at, attempts, error, version FROM jobs %s
		ORDER BY CASE status
			WHEN 'pending' THEN 0 WHEN 'claimed' THEN 1 WHEN 'processing' THEN 2
			WHEN 'succeeded' THEN 3 WHEN 'failed' THEN 4 END, created_at DESC
		LIMIT $%d OFFSET $%d`, where, limitPos, offsetPos)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, NewTransientError("list jobs", err)
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

// CountPendingJobs is used by the Populator to respect the pending-job
// ceiling.
func (s *Store) CountPendingJobs(ctx context.Context) (int, error) {
	return s.CountByStatus(ctx, JobPending)
}

// CountByStatus backs GET /metrics/summary's per-status counts.
func (s *Store) CountByStatus(ctx context.Context, status string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM jobs WHERE status = $1`, status).Scan(&n)
	if err != nil {
		return 0, NewTransientError("count jobs by status", err)
	}
	return n, nil
}

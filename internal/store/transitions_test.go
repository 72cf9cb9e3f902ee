// Copyright 2025 James Ross
package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestRelease_AlreadyPending_IsBadRequestNotSilentNoOp(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, a, b, operation, status, claimed_by, claimed_at, started_at,\s*finished_at, created_at, attempts, error, version FROM jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "a", "b", "operation", "status", "claimed_by", "claimed_at",
			"started_at", "finished_at", "created_at", "attempts", "error", "version"}).
			AddRow("job-1", 1.0, 2.0, "sum", JobPending, nil, nil, nil, nil, now, 0, nil, 1))
	mock.ExpectRollback()

	_, err := s.Release(ctx, "job-1", "operator request")
	require.ErrorIs(t, err, ErrAlreadyPending)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestComplete_IdempotentReplay_SameResultReturnsExistingResult(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	botID := "bot-1"

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, a, b, operation, status, claimed_by, claimed_at, started_at,\s*finished_at, created_at, attempts, error, version FROM jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "a", "b", "operation", "status", "claimed_by", "claimed_at",
			"started_at", "finished_at", "created_at", "attempts", "error", "version"}).
			AddRow("job-1", 1.0, 2.0, "sum", JobSucceeded, &botID, &now, &now, &now, now, 0, nil, 3))
	mock.ExpectQuery(`SELECT id, job_id, a, b, operation, result, processed_by, processed_at,\s*duration_ms, status, error FROM results WHERE job_id = \$1`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "a", "b", "operation", "result", "processed_by",
			"processed_at", "duration_ms", "status", "error"}).
			AddRow("res-1", "job-1", 1.0, 2.0, "sum", 3.0, botID, now, 120, ResultSucceeded, nil))
	mock.ExpectCommit()

	job, res, err := s.Complete(ctx, "job-1", botID, 3.0, 120)
	require.NoError(t, err)
	require.Equal(t, JobSucceeded, job.Status)
	require.Equal(t, 3.0, *res.Result)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestComplete_ConflictingReplay_ReturnsAlreadyTerminal(t *testing.T) {
	s, mock := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	botID := "bot-1"

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, a, b, operation, status, claimed_by, claimed_at, started_at,\s*finished_at, created_at, attempts, error, version FROM jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "a", "b", "operation", "status", "claimed_by", "claimed_at",
			"started_at", "finished_at", "created_at", "attempts", "error", "version"}).
			AddRow("job-1", 1.0, 2.0, "sum", JobSucceeded, &botID, &now, &now, &now, now, 0, nil, 3))
	mock.ExpectQuery(`SELECT id, job_id, a, b, operation, result, processed_by, processed_at,\s*duration_ms, status, error FROM results WHERE job_id = \$1`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "job_id", "a", "b", "operation", "result", "processed_by",
			"processed_at", "duration_ms", "status", "error"}).
			AddRow("res-1", "job-1", 1.0, 2.0, "sum", 3.0, botID, now, 120, ResultSucceeded, nil))
	mock.ExpectRollback()

	_, _, err := s.Complete(ctx, "job-1", botID, 999.0, 120)
	require.ErrorIs(t, err, ErrAlreadyTerminal)
	require.NoError(t, mock.ExpectationsWereMet())
}

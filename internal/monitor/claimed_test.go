// Copyright 2025 James Ross
package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flyingrobots/jobcoordinator/internal/jobs"
	"github.com/flyingrobots/jobcoordinator/internal/store"
)

func TestClaimedJobMonitor_RunOnce_ReleasesStaleClaim(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := store.NewWithDB(db)
	svc := jobs.New(st, nil, nil, zap.NewNop())

	now := time.Now().UTC()
	botID := "bot-1"
	jobCols := []string{"id", "a", "b", "operation", "status", "claimed_by", "claimed_at",
		"started_at", "finished_at", "created_at", "attempts", "error", "version"}

	mock.ExpectQuery(`SELECT id, a, b, operation, status, claimed_by, claimed_at, started_at,\s*finished_at, created_at, attempts, error, version FROM jobs\s*WHERE status = 'claimed' AND claimed_at < \$1 ORDER BY claimed_at ASC LIMIT \$2`).
		WithArgs(sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow("job-1", 1.0, 2.0, "sum", store.JobClaimed, &botID, &now, nil, nil, now, 0, nil, 2))

	mock.ExpectExec(`UPDATE bots SET health_status = \$2, stuck_job_id = \$3, health_checked_at = \$4 WHERE id = \$1`).
		WithArgs(botID, store.HealthPotentiallyStuck, "job-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, a, b, operation, status, claimed_by, claimed_at, started_at,\s*finished_at, created_at, attempts, error, version FROM jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow("job-1", 1.0, 2.0, "sum", store.JobClaimed, &botID, &now, nil, nil, now, 0, nil, 2))
	mock.ExpectExec(`UPDATE jobs SET status = 'pending'`).
		WithArgs("job-1", "timeout-in-claimed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bots SET current_job_id = NULL, status = 'idle' WHERE current_job_id = \$1`).
		WithArgs("job-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT id, a, b, operation, status, claimed_by, claimed_at, started_at,\s*finished_at, created_at, attempts, error, version FROM jobs WHERE id = \$1 FOR UPDATE`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows(jobCols).
			AddRow("job-1", 1.0, 2.0, "sum", store.JobPending, nil, nil, nil, nil, now, 1, "timeout-in-claimed", 3))
	mock.ExpectCommit()

	m := NewClaimedJobMonitor(st, svc, 300*time.Second, 10, zap.NewNop(), 10)
	report, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Processed)
	require.NoError(t, mock.ExpectationsWereMet())
}

// Copyright 2025 James Ross
package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func jobRowCols() []string {
	return []string{"id", "a", "b", "operation", "status", "claimed_by", "claimed_at",
		"started_at", "finished_at", "created_at", "attempts", "error", "version"}
}

func addJobRows(rows *sqlmock.Rows, status string, n int, now time.Time) *sqlmock.Rows {
	for i := 0; i < n; i++ {
		rows.AddRow("job", 1.0, 2.0, "sum", status, nil, nil, nil, nil, now, 0, nil, 1)
	}
	return rows
}

// ListJobs orders pending before claimed before processing before succeeded
// before failed, and paginates across that combined ordering with a single
// LIMIT/OFFSET rather than per-status windows. A store holding 60 pending
// jobs followed by 60 succeeded jobs (in status-priority order) must page
// as: page one all pending, page two a pending/succeeded split, page three
// all succeeded.
func TestListJobs_PaginatesAcrossStatusPriorityOrdering(t *testing.T) {
	now := time.Now().UTC()

	cases := []struct {
		name           string
		limit, offset  int
		pendingInPage  int
		succeededInPage int
	}{
		{"first page all pending", 50, 0, 50, 0},
		{"second page straddles the boundary", 50, 50, 10, 40},
		{"third page all succeeded", 50, 100, 0, 20},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			st := NewWithDB(db)

			rows := sqlmock.NewRows(jobRowCols())
			addJobRows(rows, JobPending, tc.pendingInPage, now)
			addJobRows(rows, JobSucceeded, tc.succeededInPage, now)

			mock.ExpectQuery(`SELECT id, a, b, operation, status, claimed_by, claimed_at, started_at,\s*finished_at, created_at, attempts, error, version FROM jobs\s*ORDER BY CASE status\s*WHEN 'pending' THEN 0 WHEN 'claimed' THEN 1 WHEN 'processing' THEN 2\s*WHEN 'succeeded' THEN 3 WHEN 'failed' THEN 4 END, created_at DESC\s*LIMIT \$1 OFFSET \$2`).
				WithArgs(tc.limit, tc.offset).
				WillReturnRows(rows)

			out, err := st.ListJobs(context.Background(), ListFilter{Limit: tc.limit, Offset: tc.offset})
			require.NoError(t, err)
			require.Len(t, out, tc.pendingInPage+tc.succeededInPage)

			for i, j := range out {
				if i < tc.pendingInPage {
					require.Equal(t, JobPending, j.Status)
				} else {
					require.Equal(t, JobSucceeded, j.Status)
				}
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

// ListJobs defaults the page size to 50 when the caller passes a
// non-positive limit, rather than returning every row.
func TestListJobs_DefaultsLimitWhenNotPositive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := NewWithDB(db)

	rows := sqlmock.NewRows(jobRowCols())
	mock.ExpectQuery(`LIMIT \$1 OFFSET \$2`).
		WithArgs(50, 0).
		WillReturnRows(rows)

	_, err = st.ListJobs(context.Background(), ListFilter{})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// A non-empty Status filter adds a WHERE clause and shifts the
// limit/offset placeholder positions to $2/$3.
func TestListJobs_FiltersByStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	st := NewWithDB(db)

	now := time.Now().UTC()
	rows := sqlmock.NewRows(jobRowCols())
	addJobRows(rows, JobFailed, 3, now)

	mock.ExpectQuery(`SELECT id, a, b, operation, status, claimed_by, claimed_at, started_at,\s*finished_at, created_at, attempts, error, version FROM jobs WHERE status = \$1\s*ORDER BY`).
		WithArgs(JobFailed, 50, 0).
		WillReturnRows(rows)

	out, err := st.ListJobs(context.Background(), ListFilter{Status: JobFailed})
	require.NoError(t, err)
	require.Len(t, out, 3)
	require.NoError(t, mock.ExpectationsWereMet())
}

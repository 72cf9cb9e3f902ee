// Copyright 2025 James Ross
package store

import (
	"context"
	"fmt"
	"strings"
)

// migration is a forward-only, idempotent schema step. This is a minimal
// hand-rolled stand-in for golang-migrate: the coordinator's schema is
// small and fixed, so tables bootstrap via plain "CREATE TABLE IF NOT
// EXISTS" statements rather than pulling in a migration framework.
type migration struct {
	name string
	sql  string
}

var baseMigrations = []migration{
	{
		name: "0001_schema_migrations",
		sql: `CREATE TABLE IF NOT EXISTS schema_migrations (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	},
	{
		name: "0002_bots",
		sql: `CREATE TABLE IF NOT EXISTS bots (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL CHECK (status IN ('idle','busy','down')),
			current_job_id TEXT NULL,
			last_heartbeat_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ NULL,
			assigned_operation TEXT NULL,
			health_status TEXT NOT NULL DEFAULT 'normal' CHECK (health_status IN ('normal','potentially_stuck','unhealthy')),
			stuck_job_id TEXT NULL,
			health_checked_at TIMESTAMPTZ NULL
		)`,
	},
	{
		name: "0003_jobs",
		sql: `CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			a DOUBLE PRECISION NOT NULL,
			b DOUBLE PRECISION NOT NULL,
			operation TEXT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('pending','claimed','processing','succeeded','failed')),
			claimed_by TEXT NULL REFERENCES bots(id) ON DELETE SET NULL,
			claimed_at TIMESTAMPTZ NULL,
			started_at TIMESTAMPTZ NULL,
			finished_at TIMESTAMPTZ NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			attempts INT NOT NULL DEFAULT 0,
			error TEXT NULL,
			version INT NOT NULL DEFAULT 1,
			CONSTRAINT pending_iff_unclaimed CHECK ((status = 'pending') = (claimed_by IS NULL))
		)`,
	},
	{
		name: "0004_bots_current_job_fk",
		sql: `DO $$
		BEGIN
			IF NOT EXISTS (
				SELECT 1 FROM pg_constraint WHERE conname = 'bots_current_job_fk'
			) THEN
				ALTER TABLE bots ADD CONSTRAINT bots_current_job_fk
					FOREIGN KEY (current_job_id) REFERENCES jobs(id) ON DELETE SET NULL;
			END IF;
		END $$`,
	},
	{
		name: "0005_bots_current_job_unique",
		sql: `CREATE UNIQUE INDEX IF NOT EXISTS bots_current_job_unique
			ON bots (current_job_id) WHERE current_job_id IS NOT NULL`,
	},
	{
		name: "0006_jobs_pending_operation_idx",
		sql: `CREATE INDEX IF NOT EXISTS jobs_pending_operation_idx
			ON jobs (operation, created_at) WHERE status = 'pending'`,
	},
	{
		name: "0007_results",
		sql: `CREATE TABLE IF NOT EXISTS results (
			id TEXT PRIMARY KEY,
			job_id TEXT NOT NULL UNIQUE REFERENCES jobs(id),
			a DOUBLE PRECISION NOT NULL,
			b DOUBLE PRECISION NOT NULL,
			operation TEXT NOT NULL,
			result DOUBLE PRECISION NULL,
			processed_by TEXT NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL,
			status TEXT NOT NULL CHECK (status IN ('succeeded','failed')),
			error TEXT NULL
		)`,
	},
}

// EnsureSchema applies every base migration exactly once, recorded in
// schema_migrations, then (re)builds the Job.operation CHECK constraint
// from the operation registry's loaded name set. The registry is a
// one-shot startup load with no hot-reload, so this runs
// once during process start, after the registry has loaded.
func (s *Store) EnsureSchema(ctx context.Context, operationNames []string) error {
	for _, m := range baseMigrations {
		if err := s.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("migration %s: %w", m.name, err)
		}
	}
	return s.applyOperationConstraint(ctx, operationNames)
}

func (s *Store) applyMigration(ctx context.Context, m migration) error {
	var count int
	row := s.db.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations WHERE name = $1`, m.name)
	// schema_migrations itself might not exist yet on the very first migration;
	// ignore the lookup error for that one case and fall through to apply.
	_ = row.Scan(&count)
	if count > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1) ON CONFLICT DO NOTHING`, m.name)
	return err
}

// applyOperationConstraint derives the Job.operation CHECK constraint from
// the currently loaded operation registry ("Job.operation
// check constraint derived from loaded set via migration").
func (s *Store) applyOperationConstraint(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return fmt.Errorf("refusing to install an operation constraint with zero allowed operations")
	}
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + strings.ReplaceAll(n, "'", "''") + "'"
	}
	list := strings.Join(quoted, ", ")

	if _, err := s.db.ExecContext(ctx, `ALTER TABLE jobs DROP CONSTRAINT IF EXISTS jobs_operation_allowed`); err != nil {
		return err
	}
	stmt := fmt.Sprintf(`ALTER TABLE jobs ADD CONSTRAINT jobs_operation_allowed CHECK (operation IN (%s))`, list)
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// Copyright 2025 James Ross
package store

import (
	"context"
	"database/sql"
	"time"
)

func scanBot(row *sql.Row) (*Bot, error) {
	var b Bot
	if err := row.Scan(&b.ID, &b.Status, &b.CurrentJobID, &b.LastHeartbeatAt, &b.CreatedAt,
		&b.DeletedAt, &b.AssignedOperation, &b.HealthStatus, &b.StuckJobID, &b.HealthCheckedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBot fetches a bot by id, including soft-deleted ones (callers decide
// whether deleted bots are visible).
func (s *Store) GetBot(ctx context.Context, id string) (*Bot, error) {
	const query = `SELECT id, status, current_job_id, last_heartbeat_at, created_at, deleted_at,
		assigned_operation, health_status, stuck_job_id, health_checked_at
		FROM bots WHERE id = $1`
	row := s.db.QueryRowContext(ctx, query, id)
	b, err := scanBot(row)
	if err == sql.ErrNoRows {
		return nil, ErrBotNotFound
	}
	if err != nil {
		return nil, NewTransientError("get bot", err)
	}
	return b, nil
}

// RegisterBot is idempotent on id: a first-time id creates an idle bot; an
// existing soft-deleted id is revived (deleted_at cleared, status reset to
// idle) with assigned_operation preserved across the revive, per the
// DESIGN.md Open Question decision. An existing, non-deleted id just
// refreshes its heartbeat.
func (s *Store) RegisterBot(ctx context.Context, id string) (*Bot, error) {
	now := time.Now().UTC()
	var bot *Bot
	err := s.transaction(ctx, func(ctx context.Context, q querier) error {
		existing, err := s.getBotInTx(ctx, q, id)
		if err == ErrBotNotFound {
			const ins = `INSERT INTO bots (id, status, last_heartbeat_at, created_at, health_status)
				VALUES ($1, 'idle', $2, $2, 'normal')`
			if _, err := q.ExecContext(ctx, ins, id, now); err != nil {
				return NewTransientError("register bot insert", err)
			}
			bot = &Bot{ID: id, Status: BotIdle, LastHeartbeatAt: now, CreatedAt: now, HealthStatus: HealthNormal}
			return nil
		}
		if err != nil {
			return err
		}
		if existing.DeletedAt != nil {
			const revive = `UPDATE bots SET deleted_at = NULL, status = 'idle',
				last_heartbeat_at = $2, health_status = 'normal', stuck_job_id = NULL,
				health_checked_at = NULL WHERE id = $1`
			if _, err := q.ExecContext(ctx, revive, id, now); err != nil {
				return NewTransientError("revive bot", err)
			}
			existing.DeletedAt = nil
			existing.Status = BotIdle
			existing.LastHeartbeatAt = now
			existing.HealthStatus = HealthNormal
			existing.StuckJobID = nil
			existing.HealthCheckedAt = nil
			bot = existing
			return nil
		}
		const touch = `UPDATE bots SET last_heartbeat_at = $2 WHERE id = $1`
		if _, err := q.ExecContext(ctx, touch, id, now); err != nil {
			return NewTransientError("touch bot", err)
		}
		existing.LastHeartbeatAt = now
		bot = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bot, nil
}

func (s *Store) getBotInTx(ctx context.Context, q querier, id string) (*Bot, error) {
	const query = `SELECT id, status, current_job_id, last_heartbeat_at, created_at, deleted_at,
		assigned_operation, health_status, stuck_job_id, health_checked_at
		FROM bots WHERE id = $1`
	row := q.QueryRowContext(ctx, query, id)
	b, err := scanBot(row)
	if err == sql.ErrNoRows {
		return nil, ErrBotNotFound
	}
	if err != nil {
		return nil, NewTransientError("get bot in tx", err)
	}
	return b, nil
}

// Heartbeat bumps last_heartbeat_at. 404s (via ErrBotNotFound) if the bot
// is unknown or soft-deleted
func (s *Store) Heartbeat(ctx context.Context, id string) error {
	now := time.Now().UTC()
	const q = `UPDATE bots SET last_heartbeat_at = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, q, id, now)
	if err != nil {
		return NewTransientError("heartbeat", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBotNotFound
	}
	return nil
}

// AssignOperation sets or clears (operation == nil) a bot's pin. Admin-only.
func (s *Store) AssignOperation(ctx context.Context, id string, operation *string) error {
	const q = `UPDATE bots SET assigned_operation = $2 WHERE id = $1 AND deleted_at IS NULL`
	res, err := s.db.ExecContext(ctx, q, id, operation)
	if err != nil {
		return NewTransientError("assign operation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrBotNotFound
	}
	return nil
}

// SoftDelete marks a bot deleted and releases any job it is holding back
// to pending, in one transaction.
func (s *Store) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	return s.transaction(ctx, func(ctx context.Context, q querier) error {
		bot, err := s.getBotInTx(ctx, q, id)
		if err != nil {
			return err
		}
		if bot.DeletedAt != nil {
			return nil // idempotent
		}
		if bot.CurrentJobID != nil {
			if err := releaseJobLocked(ctx, q, *bot.CurrentJobID, "bot soft-deleted"); err != nil {
				return err
			}
		}
		const del = `UPDATE bots SET deleted_at = $2, status = 'down', current_job_id = NULL WHERE id = $1`
		_, err = q.ExecContext(ctx, del, id, now)
		if err != nil {
			return NewTransientError("soft delete bot", err)
		}
		return nil
	})
}

// Reset is the admin escape hatch: clears current_job_id, resets status to
// idle and health to normal, and releases any held job back to pending.
func (s *Store) Reset(ctx context.Context, id string) error {
	return s.transaction(ctx, func(ctx context.Context, q querier) error {
		bot, err := s.getBotInTx(ctx, q, id)
		if err != nil {
			return err
		}
		if bot.CurrentJobID != nil {
			if err := releaseJobLocked(ctx, q, *bot.CurrentJobID, "bot reset"); err != nil {
				return err
			}
		}
		const reset = `UPDATE bots SET current_job_id = NULL, status = 'idle',
			health_status = 'normal', stuck_job_id = NULL, health_checked_at = NULL WHERE id = $1`
		_, err = q.ExecContext(ctx, reset, id)
		if err != nil {
			return NewTransientError("reset bot", err)
		}
		return nil
	})
}

// ListBots lists bots, optionally including soft-deleted ones.
func (s *Store) ListBots(ctx context.Context, includeDeleted bool) ([]*Bot, error) {
	query := `SELECT id, status, current_job_id, last_heartbeat_at, created_at, deleted_at,
		assigned_operation, health_status, stuck_job_id, health_checked_at FROM bots`
	if !includeDeleted {
		query += ` WHERE deleted_at IS NULL`
	}
	query += ` ORDER BY created_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, NewTransientError("list bots", err)
	}
	defer rows.Close()
	var out []*Bot
	for rows.Next() {
		var b Bot
		if err := rows.Scan(&b.ID, &b.Status, &b.CurrentJobID, &b.LastHeartbeatAt, &b.CreatedAt,
			&b.DeletedAt, &b.AssignedOperation, &b.HealthStatus, &b.StuckJobID, &b.HealthCheckedAt); err != nil {
			return nil, NewTransientError("scan bot", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// PurgeDeletedBots removes soft-deleted bots older than cutoff. Used by
// the RetentionCleaner. Returns the number removed.
func (s *Store) PurgeDeletedBots(ctx context.Context, cutoff time.Time, dryRun bool) (int, error) {
	if dryRun {
		var n int
		err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM bots WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cutoff).Scan(&n)
		if err != nil {
			return 0, NewTransientError("count purgeable bots", err)
		}
		return n, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM bots WHERE deleted_at IS NOT NULL AND deleted_at < $1`, cutoff)
	if err != nil {
		return 0, NewTransientError("purge bots", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// PurgeOrphanedResults deletes Result rows that reference a bot
// (processed_by) no longer present in the bots table -- the bots it
// references were themselves already physically removed by
// PurgeDeletedBots. Jobs are never physically deleted, so job_id can
// never go orphaned; processed_by is the only foreign reference that
// does. Bounded to the RetentionCleaner.
func (s *Store) PurgeOrphanedResults(ctx context.Context, dryRun bool) (int, error) {
	const sel = `SELECT count(*) FROM results r WHERE r.processed_by <> '' AND NOT EXISTS (SELECT 1 FROM bots b WHERE b.id = r.processed_by)`
	if dryRun {
		var n int
		if err := s.db.QueryRowContext(ctx, sel).Scan(&n); err != nil {
			return 0, NewTransientError("count orphaned results", err)
		}
		return n, nil
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM results r WHERE r.processed_by <> '' AND NOT EXISTS (SELECT 1 FROM bots b WHERE b.id = r.processed_by)`)
	if err != nil {
		return 0, NewTransientError("purge orphaned results", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

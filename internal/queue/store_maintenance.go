package queue

import (
	"context"
	"fmt"
	"time"
)

// RecoverRunning repairs items left in running after an unclean shutdown.
// Each becomes failed with attempts unchanged and an immediate retry
// deadline, so the next tick re-dispatches them without burning an attempt
// on the crash. Returns the ids that were recovered.
func (s *Store) RecoverRunning(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM work_items WHERE status = ?", StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("find running items: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan running item id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate running items: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	for _, id := range ids {
		_, err := s.db.ExecContext(ctx,
			`UPDATE work_items SET status = ?, next_retry_at = ?,
                last_error = ?, updated_at = ?
             WHERE id = ? AND status = ?`,
			StatusFailed, formatTime(now),
			"interrupted by daemon restart", formatTime(now),
			id, StatusRunning)
		if err != nil {
			return nil, fmt.Errorf("recover work item %d: %w", id, err)
		}
	}
	return ids, nil
}

// Stats summarizes the queue by status.
type Stats struct {
	Total     int
	Pending   int
	Running   int
	Failed    int
	Cancelled int
	Succeeded int
}

// Stats counts items per status.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(1) FROM work_items GROUP BY status")
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("scan stats row: %w", err)
		}
		stats.Total += count
		switch Status(status) {
		case StatusPending:
			stats.Pending = count
		case StatusRunning:
			stats.Running = count
		case StatusFailed:
			stats.Failed = count
		case StatusCancelled:
			stats.Cancelled = count
		case StatusSucceeded:
			stats.Succeeded = count
		}
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate stats rows: %w", err)
	}
	return stats, nil
}

// ClearTerminal deletes cancelled and succeeded items, returning the number
// removed. In-flight items are never touched.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM work_items WHERE status IN (?, ?)",
		StatusCancelled, StatusSucceeded)
	if err != nil {
		return 0, fmt.Errorf("clear terminal items: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

// Health verifies the database responds.
func (s *Store) Health(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("work item store unhealthy: %w", err)
	}
	return nil
}

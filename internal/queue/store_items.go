package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateForSlot inserts a new pending item for the given channel and slot.
// Creation is idempotent: if an item already exists for the pair, the
// existing item is returned and created is false.
func (s *Store) CreateForSlot(ctx context.Context, channelID string, slot time.Time, dryRun bool, seed *TopicSeed) (item *Item, created bool, err error) {
	now := time.Now().UTC()
	payload := Payload{Seed: seed}
	payloadJSON, err := marshalPayload(payload)
	if err != nil {
		return nil, false, err
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT OR IGNORE INTO work_items (
            uuid, channel_id, scheduled_slot, stage, status,
            attempts_json, payload_json, dry_run, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		channelID,
		formatTime(slot),
		StageResearch,
		StatusPending,
		"{}",
		payloadJSON,
		boolToInt(dryRun),
		formatTime(now),
		formatTime(now),
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert work item: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		existing, err := s.GetBySlot(ctx, channelID, slot)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("last insert id: %w", err)
	}
	fresh, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return fresh, true, nil
}

// GetByID fetches a single item.
func (s *Store) GetByID(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM work_items WHERE id = ?", id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get work item %d: %w", id, err)
	}
	return item, nil
}

// GetBySlot fetches the item for a (channel, slot) pair, or nil when none
// exists.
func (s *Store) GetBySlot(ctx context.Context, channelID string, slot time.Time) (*Item, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM work_items WHERE channel_id = ? AND scheduled_slot = ?",
		channelID, formatTime(slot))
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get work item for slot: %w", err)
	}
	return item, nil
}

// List returns items filtered by status, newest first. With no statuses it
// returns every item.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]*Item, error) {
	query := "SELECT " + itemColumns + " FROM work_items"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += " WHERE status IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY id DESC"
	return s.queryItems(ctx, query, args...)
}

// Due returns items eligible for dispatch at the given time, oldest slot
// first so earlier scheduled work drains before later slots.
func (s *Store) Due(ctx context.Context, now time.Time) ([]*Item, error) {
	return s.queryItems(ctx,
		"SELECT "+itemColumns+` FROM work_items
         WHERE status = ? OR (status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?))
         ORDER BY scheduled_slot ASC, id ASC`,
		StatusPending, StatusFailed, formatTime(now))
}

// InFlightCount counts a channel's non-terminal items. Cancelled and
// succeeded items release their concurrency slot.
func (s *Store) InFlightCount(ctx context.Context, channelID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM work_items WHERE channel_id = ? AND status NOT IN (?, ?)",
		channelID, StatusCancelled, StatusSucceeded).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count in-flight items: %w", err)
	}
	return count, nil
}

// CountCreatedSince counts items created at or after the cutoff. An empty
// channelID counts across all channels, backing the global daily cap.
func (s *Store) CountCreatedSince(ctx context.Context, channelID string, cutoff time.Time) (int, error) {
	query := "SELECT COUNT(1) FROM work_items WHERE created_at >= ?"
	args := []any{formatTime(cutoff)}
	if channelID != "" {
		query += " AND channel_id = ?"
		args = append(args, channelID)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count created items: %w", err)
	}
	return count, nil
}

// RecentTopicTitles returns the topic titles of the channel's most recently
// created items, newest first. Items that never chose a topic are skipped.
func (s *Store) RecentTopicTitles(ctx context.Context, channelID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	items, err := s.queryItems(ctx,
		"SELECT "+itemColumns+` FROM work_items
         WHERE channel_id = ?
         ORDER BY id DESC LIMIT ?`,
		channelID, limit)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(items))
	for _, item := range items {
		if topic := item.Payload.Topic; topic != nil && topic.Title != "" {
			titles = append(titles, topic.Title)
		}
	}
	return titles, nil
}

// PublishedAwaitingAbsorption returns succeeded items whose analytics were
// collected but not yet folded into the score model.
func (s *Store) PublishedAwaitingAbsorption(ctx context.Context) ([]*Item, error) {
	return s.queryItems(ctx,
		"SELECT "+itemColumns+` FROM work_items
         WHERE status = ? AND analytics_absorbed_at IS NULL
         ORDER BY id ASC`,
		StatusSucceeded)
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query work items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan work item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate work items: %w", err)
	}
	return items, nil
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}

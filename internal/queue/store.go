package queue

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"shortreel/internal/config"
)

// Store manages work item persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the work item database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.DataDir, "workitems.db"))
}

// OpenPath opens the database at an explicit path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

const itemColumns = "id, uuid, channel_id, scheduled_slot, stage, status, attempts_json, next_retry_at, payload_json, dry_run, last_error, created_at, updated_at, analytics_absorbed_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id          int64
		uuidStr     string
		channelID   string
		slotRaw     string
		stageStr    string
		statusStr   string
		attemptsRaw string
		retryRaw    sql.NullString
		payloadRaw  string
		dryRun      int64
		lastError   sql.NullString
		createdRaw  string
		updatedRaw  string
		absorbedRaw sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&uuidStr,
		&channelID,
		&slotRaw,
		&stageStr,
		&statusStr,
		&attemptsRaw,
		&retryRaw,
		&payloadRaw,
		&dryRun,
		&lastError,
		&createdRaw,
		&updatedRaw,
		&absorbedRaw,
	); err != nil {
		return nil, err
	}

	attempts, err := unmarshalAttempts(attemptsRaw)
	if err != nil {
		return nil, err
	}
	payload, err := unmarshalPayload(payloadRaw)
	if err != nil {
		return nil, err
	}

	item := &Item{
		ID:        id,
		UUID:      uuidStr,
		ChannelID: channelID,
		Stage:     Stage(stageStr),
		Status:    Status(statusStr),
		Attempts:  attempts,
		Payload:   payload,
		DryRun:    dryRun != 0,
		LastError: lastError.String,
	}
	if slot, err := parseTimeString(slotRaw); err == nil {
		item.ScheduledSlot = slot
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	if retryRaw.Valid {
		if retry, err := parseTimeString(retryRaw.String); err == nil {
			item.NextRetryAt = &retry
		}
	}
	if absorbedRaw.Valid {
		if absorbed, err := parseTimeString(absorbedRaw.String); err == nil {
			item.AnalyticsAbsorbedAt = &absorbed
		}
	}
	return item, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed, nil
	}
	return time.Parse(time.RFC3339, value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

package queue

import (
	"context"
	"fmt"
	"time"
)

// ClaimForStage atomically moves the item from pending or failed to running
// for its current stage. Exactly one caller can win the claim; everyone
// else gets ErrStale. The in-memory item is updated on success.
func (s *Store) ClaimForStage(ctx context.Context, item *Item) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE work_items SET status = ?, next_retry_at = NULL, updated_at = ?
         WHERE id = ? AND stage = ? AND status IN (?, ?)`,
		StatusRunning, formatTime(now),
		item.ID, item.Stage, StatusPending, StatusFailed)
	if err != nil {
		return fmt.Errorf("claim work item %d: %w", item.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("claim work item %d: %w", item.ID, ErrStale)
	}
	item.Status = StatusRunning
	item.NextRetryAt = nil
	item.UpdatedAt = now
	return nil
}

// MarkStageSucceeded applies the stage's payload delta, advances the item
// to the next stage, and returns it to pending. Completing the final stage
// moves the item to done/succeeded. The write only applies while the item
// is still running its current stage; a concurrent cancel wins instead.
func (s *Store) MarkStageSucceeded(ctx context.Context, item *Item, delta PayloadDelta) error {
	payload := item.Payload
	if err := payload.Apply(delta); err != nil {
		return fmt.Errorf("work item %d stage %s: %w", item.ID, item.Stage, err)
	}
	payloadJSON, err := marshalPayload(payload)
	if err != nil {
		return err
	}

	nextStage := item.Stage.Next()
	nextStatus := StatusPending
	if nextStage == StageDone {
		nextStatus = StatusSucceeded
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE work_items SET stage = ?, status = ?, payload_json = ?,
            next_retry_at = NULL, last_error = NULL, updated_at = ?
         WHERE id = ? AND stage = ? AND status = ?`,
		nextStage, nextStatus, payloadJSON, formatTime(now),
		item.ID, item.Stage, StatusRunning)
	if err != nil {
		return fmt.Errorf("advance work item %d: %w", item.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("advance work item %d: %w", item.ID, ErrStale)
	}

	item.Stage = nextStage
	item.Status = nextStatus
	item.Payload = payload
	item.NextRetryAt = nil
	item.LastError = ""
	item.UpdatedAt = now
	return nil
}

// MarkStageFailed records a retryable failure: the stage's attempt counter
// increments and the item parks as failed until retryAt.
func (s *Store) MarkStageFailed(ctx context.Context, item *Item, message string, retryAt time.Time) error {
	attempts := cloneAttempts(item.Attempts)
	attempts[item.Stage]++
	attemptsJSON, err := marshalAttempts(attempts)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE work_items SET status = ?, attempts_json = ?, next_retry_at = ?,
            last_error = ?, updated_at = ?
         WHERE id = ? AND stage = ? AND status = ?`,
		StatusFailed, attemptsJSON, formatTime(retryAt),
		nullableString(message), formatTime(now),
		item.ID, item.Stage, StatusRunning)
	if err != nil {
		return fmt.Errorf("fail work item %d: %w", item.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("fail work item %d: %w", item.ID, ErrStale)
	}

	item.Status = StatusFailed
	item.Attempts = attempts
	retry := retryAt
	item.NextRetryAt = &retry
	item.LastError = message
	item.UpdatedAt = now
	return nil
}

// MarkCancelled terminates a running item. Fatal failures consume the
// attempt that triggered them; safety rejections do not, preserving the
// audit record of how far the item got.
func (s *Store) MarkCancelled(ctx context.Context, item *Item, message string, consumeAttempt bool) error {
	attempts := cloneAttempts(item.Attempts)
	if consumeAttempt {
		attempts[item.Stage]++
	}
	attemptsJSON, err := marshalAttempts(attempts)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE work_items SET status = ?, attempts_json = ?, next_retry_at = NULL,
            last_error = ?, updated_at = ?
         WHERE id = ? AND stage = ? AND status = ?`,
		StatusCancelled, attemptsJSON,
		nullableString(message), formatTime(now),
		item.ID, item.Stage, StatusRunning)
	if err != nil {
		return fmt.Errorf("cancel work item %d: %w", item.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("cancel work item %d: %w", item.ID, ErrStale)
	}

	item.Status = StatusCancelled
	item.Attempts = attempts
	item.NextRetryAt = nil
	item.LastError = message
	item.UpdatedAt = now
	return nil
}

// CheckpointPayload persists the item's payload mid-stage without touching
// stage or status. The publish stage uses this to record the platform id
// the moment an upload completes, so a crash before the success transition
// cannot cause a duplicate upload.
func (s *Store) CheckpointPayload(ctx context.Context, item *Item) error {
	payloadJSON, err := marshalPayload(item.Payload)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE work_items SET payload_json = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		payloadJSON, formatTime(now), item.ID, StatusRunning)
	if err != nil {
		return fmt.Errorf("checkpoint work item %d: %w", item.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("checkpoint work item %d: %w", item.ID, ErrStale)
	}
	item.UpdatedAt = now
	return nil
}

// Stop cancels an item on operator request. Pending and failed items stop
// immediately. Running items flip to cancelled here and the stage's result
// is discarded at the next transition, which observes ErrStale.
func (s *Store) Stop(ctx context.Context, id int64, reason string) (*Item, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE work_items SET status = ?, next_retry_at = NULL, last_error = ?, updated_at = ?
         WHERE id = ? AND status IN (?, ?, ?)`,
		StatusCancelled, nullableString(reason), formatTime(now),
		id, StatusPending, StatusRunning, StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("stop work item %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("stop work item %d: %w", id, ErrNotCancellable)
	}
	return s.GetByID(ctx, id)
}

// RetryNow returns a failed item to pending without waiting out its
// backoff. Attempt counters are preserved.
func (s *Store) RetryNow(ctx context.Context, id int64) (*Item, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE work_items SET status = ?, next_retry_at = NULL, updated_at = ?
         WHERE id = ? AND status = ?`,
		StatusPending, formatTime(now), id, StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("retry work item %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("retry work item %d: item is not failed", id)
	}
	return s.GetByID(ctx, id)
}

// ClearAttempts zeroes every stage counter and re-admits a failed or
// cancelled item as pending at its current stage.
func (s *Store) ClearAttempts(ctx context.Context, id int64) (*Item, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE work_items SET attempts_json = '{}', status = ?,
            next_retry_at = NULL, last_error = NULL, updated_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		StatusPending, formatTime(now), id, StatusFailed, StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("clear attempts for work item %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		if _, getErr := s.GetByID(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("clear attempts for work item %d: item is not failed or cancelled", id)
	}
	return s.GetByID(ctx, id)
}

// MarkAnalyticsAbsorbed stamps the item after its analytics result has been
// folded into the score model, ensuring each result is absorbed exactly
// once.
func (s *Store) MarkAnalyticsAbsorbed(ctx context.Context, id int64, when time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE work_items SET analytics_absorbed_at = ?, updated_at = ?
         WHERE id = ? AND analytics_absorbed_at IS NULL`,
		formatTime(when), formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("mark analytics absorbed for work item %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("mark analytics absorbed for work item %d: %w", id, ErrStale)
	}
	return nil
}

func cloneAttempts(attempts map[Stage]int) map[Stage]int {
	cloned := make(map[Stage]int, len(attempts))
	for stage, count := range attempts {
		cloned[stage] = count
	}
	return cloned
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/stageexec"
	"shortreel/internal/stages/analytics"
)

// RunItem drives a single item through its remaining stages in the calling
// goroutine, bypassing the tick loop. One-shot operator runs use this to
// watch an item finish without a daemon. Backoff and breaker deadlines are
// honored by sleeping; an analytics stage whose soak window has not opened
// ends the run early with the item still queued for the daemon.
func (m *Manager) RunItem(ctx context.Context, id int64) (*queue.Item, error) {
	for {
		item, err := m.store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if item.Status.Terminal() {
			m.absorbResults(ctx)
			if err := m.model.Save(m.cfg.Scoring.SnapshotFile); err != nil {
				m.logger.Error("failed to save scoring model", logging.Error(err))
			}
			return m.store.GetByID(ctx, id)
		}
		if item.Status == queue.StatusRunning {
			return nil, fmt.Errorf("work item %d is already claimed by another worker", id)
		}

		if item.NextRetryAt != nil {
			if wait := item.NextRetryAt.Sub(m.now()); wait > 0 {
				m.logger.Info("waiting out retry backoff",
					logging.Int64(logging.FieldItemID, item.ID),
					logging.String(logging.FieldStage, string(item.Stage)),
					logging.Duration("wait", wait))
				if err := sleepContext(ctx, wait); err != nil {
					return item, err
				}
			}
		}

		handler, ok := m.handlers[item.Stage]
		if !ok {
			return nil, fmt.Errorf("no handler registered for stage %s", item.Stage)
		}
		if item.Stage == queue.StageAnalytics && !analytics.CollectionDue(m.cfg, item, m.now()) {
			m.logger.Info("analytics soak window still open, leaving item for the daemon",
				logging.Int64(logging.FieldItemID, item.ID))
			return item, nil
		}
		if allowed, reopensAt := m.breaker.Allow(handler.Collaborator()); !allowed {
			wait := reopensAt.Sub(m.now())
			m.logger.Info("collaborator breaker open, waiting",
				logging.String(logging.FieldCollaborator, handler.Collaborator()),
				logging.Duration("wait", wait))
			if err := sleepContext(ctx, wait); err != nil {
				return item, err
			}
			continue
		}

		if err := m.store.ClaimForStage(ctx, item); err != nil {
			if errors.Is(err, queue.ErrStale) {
				continue
			}
			return nil, err
		}
		if err := stageexec.Run(ctx, stageexec.Options{
			Logger:  m.logger,
			Store:   m.store,
			Handler: handler,
			Breaker: m.breaker,
			Tuning:  m.cfg.TuningFor(string(item.Stage)),
			Item:    item,
		}); err != nil {
			return nil, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

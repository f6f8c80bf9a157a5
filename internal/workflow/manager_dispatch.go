package workflow

import (
	"context"
	"errors"
	"time"

	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/stage"
	"shortreel/internal/stageexec"
	"shortreel/internal/stages/analytics"
)

// dispatchDue claims every ready item whose collaborator is available and
// hands it to a worker. The semaphore bounds concurrent stage executions;
// items that cannot get a worker stay queued for the next tick.
func (m *Manager) dispatchDue(ctx context.Context) {
	items, err := m.store.Due(ctx, m.now())
	if err != nil {
		m.logger.Error("failed to list due items", logging.Error(err))
		m.setLastError(err)
		return
	}

	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		handler, ok := m.handlers[item.Stage]
		if !ok {
			m.logger.Warn("no handler registered for stage",
				logging.String(logging.FieldStage, string(item.Stage)),
				logging.Int64(logging.FieldItemID, item.ID))
			continue
		}
		if item.Stage == queue.StageAnalytics && !analytics.CollectionDue(m.cfg, item, m.now()) {
			continue
		}
		if allowed, reopensAt := m.breaker.Allow(handler.Collaborator()); !allowed {
			m.logger.Debug("collaborator breaker open, holding item",
				logging.String(logging.FieldEventType, "breaker_hold"),
				logging.String(logging.FieldCollaborator, handler.Collaborator()),
				logging.Int64(logging.FieldItemID, item.ID),
				logging.String("reopens_at", reopensAt.Format(time.RFC3339)))
			continue
		}
		if !m.markInFlight(item.ID) {
			continue
		}

		select {
		case m.sem <- struct{}{}:
		default:
			m.clearInFlight(item.ID)
			return
		}

		if err := m.store.ClaimForStage(ctx, item); err != nil {
			<-m.sem
			m.clearInFlight(item.ID)
			if !errors.Is(err, queue.ErrStale) {
				m.logger.Error("failed to claim work item",
					logging.Int64(logging.FieldItemID, item.ID),
					logging.Error(err))
				m.setLastError(err)
			}
			continue
		}

		m.wg.Add(1)
		go m.runStage(ctx, handler, item)
	}
}

func (m *Manager) runStage(ctx context.Context, handler stage.Handler, item *queue.Item) {
	defer m.wg.Done()
	defer m.clearInFlight(item.ID)
	defer func() { <-m.sem }()

	err := stageexec.Run(ctx, stageexec.Options{
		Logger:  m.logger,
		Store:   m.store,
		Handler: handler,
		Breaker: m.breaker,
		Tuning:  m.cfg.TuningFor(string(item.Stage)),
		Item:    item,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		m.logger.Error("stage execution failed",
			logging.Int64(logging.FieldItemID, item.ID),
			logging.String(logging.FieldStage, string(item.Stage)),
			logging.Error(err))
		m.setLastError(err)
	}
}

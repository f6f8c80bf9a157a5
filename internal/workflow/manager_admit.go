package workflow

import (
	"context"
	"errors"

	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/scheduler"
)

// admitItems asks the scheduler whether each channel is owed a new work
// item and creates one per channel per tick at most. Creation is
// idempotent on (channel, slot), so racing a previous tick is harmless.
func (m *Manager) admitItems(ctx context.Context) {
	for _, channel := range m.cfg.Channels {
		decision, err := m.sched.Decide(ctx, channel)
		if err != nil {
			m.logger.Error("admission decision failed",
				logging.String(logging.FieldChannel, channel.ID),
				logging.Error(err))
			m.setLastError(err)
			continue
		}
		if !decision.Admit {
			if decision.Reason != scheduler.ReasonNotDue {
				m.logger.Debug("admission denied",
					logging.String(logging.FieldChannel, channel.ID),
					logging.String("reason", decision.Reason))
			}
			continue
		}
		item, created, err := m.store.CreateForSlot(ctx, channel.ID, decision.Slot, false, nil)
		if err != nil {
			m.logger.Error("failed to create work item",
				logging.String(logging.FieldChannel, channel.ID),
				logging.Error(err))
			m.setLastError(err)
			continue
		}
		if created {
			m.logger.Info("work item admitted",
				logging.String(logging.FieldEventType, "item_admitted"),
				logging.String(logging.FieldChannel, channel.ID),
				logging.Int64(logging.FieldItemID, item.ID),
				logging.String("slot", decision.Slot.Format("2006-01-02T15:04:05Z07:00")),
			)
		}
	}
}

// absorbResults folds completed analytics samples into the scoring model
// exactly once per item.
func (m *Manager) absorbResults(ctx context.Context) {
	items, err := m.store.PublishedAwaitingAbsorption(ctx)
	if err != nil {
		m.logger.Error("failed to list items awaiting absorption", logging.Error(err))
		m.setLastError(err)
		return
	}
	for _, item := range items {
		if m.absorbOne(ctx, item) {
			m.logger.Info("analytics absorbed into scoring model",
				logging.String(logging.FieldEventType, "analytics_absorbed"),
				logging.Int64(logging.FieldItemID, item.ID),
				logging.String(logging.FieldChannel, item.ChannelID),
			)
		}
	}
}

// absorbOne consumes one analytics result. The stamp is written before the
// model is touched: if the stamp cannot land, the sample stays unconsumed
// for a later tick, and if another loop already stamped it, the model is
// left alone. Either way a result feeds the model at most once.
func (m *Manager) absorbOne(ctx context.Context, item *queue.Item) bool {
	if err := m.store.MarkAnalyticsAbsorbed(ctx, item.ID, m.now()); err != nil {
		if !errors.Is(err, queue.ErrStale) {
			m.logger.Warn("failed to mark analytics absorbed",
				logging.Int64(logging.FieldItemID, item.ID),
				logging.Error(err))
		}
		return false
	}
	return m.model.AbsorbItem(m.cfg, item)
}

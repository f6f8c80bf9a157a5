package workflow

import (
	"context"
	"time"

	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/stage"
	"shortreel/internal/stageexec"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running      bool
	LastError    string
	QueueStats   queue.Stats
	CreatedToday int
	DailyRunCap  int
	StageHealth  map[queue.Stage]stage.Health
	Breakers     []stageexec.BreakerStatus
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.Lock()
	running := m.running
	lastErr := m.lastErr
	m.mu.Unlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	now := m.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	createdToday, err := m.store.CountCreatedSince(ctx, "", dayStart)
	if err != nil {
		m.logger.Warn("failed to count today's runs", logging.Error(err))
	}

	health := make(map[queue.Stage]stage.Health, len(m.handlers))
	for stg, handler := range m.handlers {
		health[stg] = handler.HealthCheck(ctx)
	}

	summary := StatusSummary{
		Running:      running,
		QueueStats:   stats,
		CreatedToday: createdToday,
		DailyRunCap:  m.cfg.Workflow.MaxDailyRuns,
		StageHealth:  health,
		Breakers:     m.breaker.Snapshot(),
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	return summary
}

package workflow

import (
	"context"
	"errors"
	"time"

	"shortreel/internal/logging"
)

// Start begins background processing. It recovers items a previous
// daemon left running before the first tick so their attempt budgets
// survive the restart intact.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	recovered, err := m.store.RecoverRunning(runCtx)
	if err != nil {
		m.logger.Error("startup recovery failed", logging.Error(err))
		m.setLastError(err)
	} else if len(recovered) > 0 {
		m.logger.Info("recovered interrupted work items",
			logging.String(logging.FieldEventType, "startup_recovery"),
			logging.Int("count", len(recovered)),
		)
	}

	go m.loop(runCtx)
	return nil
}

// Stop terminates background processing, waits for in-flight stages, and
// saves the scoring model.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	if err := m.model.Save(m.cfg.Scoring.SnapshotFile); err != nil {
		m.logger.Error("failed to save scoring model on shutdown", logging.Error(err))
	}
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()

	interval := time.Duration(m.cfg.Workflow.TickIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	m.admitItems(ctx)
	m.absorbResults(ctx)
	m.dispatchDue(ctx)
	m.maybeSaveModel()
}

func (m *Manager) maybeSaveModel() {
	interval := time.Duration(m.cfg.Scoring.SaveEverySecs) * time.Second
	m.mu.Lock()
	due := m.lastSave.IsZero() || !m.now().Before(m.lastSave.Add(interval))
	if due {
		m.lastSave = m.now()
	}
	m.mu.Unlock()
	if !due {
		return
	}
	if err := m.model.Save(m.cfg.Scoring.SnapshotFile); err != nil {
		m.logger.Warn("failed to save scoring model", logging.Error(err))
		m.setLastError(err)
	}
}

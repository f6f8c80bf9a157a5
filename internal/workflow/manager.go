package workflow

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"shortreel/internal/config"
	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/scheduler"
	"shortreel/internal/scoring"
	"shortreel/internal/stage"
	"shortreel/internal/stageexec"
	"shortreel/internal/stages/analytics"
	"shortreel/internal/stages/assets"
	"shortreel/internal/stages/compose"
	"shortreel/internal/stages/publish"
	"shortreel/internal/stages/research"
	"shortreel/internal/stages/scriptgen"
	"shortreel/internal/stages/voiceover"
)

// Manager coordinates item admission, stage dispatch, and score
// absorption.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	model    *scoring.Model
	sched    *scheduler.Scheduler
	breaker  *stageexec.BreakerSet
	handlers map[queue.Stage]stage.Handler
	now      func() time.Time

	sem chan struct{}

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inFlight map[int64]struct{}
	lastErr  error
	lastSave time.Time
}

// NewManager constructs a manager with the full production stage set and
// loads the persisted scoring model snapshot.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) (*Manager, error) {
	model := scoring.NewModel(cfg)
	if err := model.Load(cfg.Scoring.SnapshotFile); err != nil {
		return nil, err
	}

	gatherer, err := assets.NewGatherer(cfg, logger)
	if err != nil {
		return nil, err
	}
	composer, err := compose.NewComposer(cfg, logger)
	if err != nil {
		return nil, err
	}
	handlers := map[queue.Stage]stage.Handler{
		queue.StageResearch:  research.NewResearcher(cfg, model, store, logger),
		queue.StageScript:    scriptgen.NewGenerator(cfg, logger),
		queue.StageVoiceover: voiceover.NewSynthesizer(cfg, logger),
		queue.StageAssets:    gatherer,
		queue.StageCompose:   composer,
		queue.StagePublish:   publish.NewPublisher(cfg, store, logger),
		queue.StageAnalytics: analytics.NewCollector(cfg, logger),
	}
	return NewManagerWithHandlers(cfg, store, logger, model, handlers), nil
}

// NewManagerWithHandlers allows injecting custom stage handlers (used for tests).
func NewManagerWithHandlers(cfg *config.Config, store *queue.Store, logger *slog.Logger, model *scoring.Model, handlers map[queue.Stage]stage.Handler) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		model:    model,
		sched:    scheduler.New(cfg, store),
		breaker:  stageexec.NewBreakerSet(cfg.Breaker),
		handlers: handlers,
		now:      time.Now,
		sem:      make(chan struct{}, cfg.Workflow.WorkerPoolSize),
		inFlight: make(map[int64]struct{}),
	}
}

// Model exposes the scoring model for the daemon API.
func (m *Manager) Model() *scoring.Model { return m.model }

// Breaker exposes circuit breaker state for the daemon API.
func (m *Manager) Breaker() *stageexec.BreakerSet { return m.breaker }

// SetClock overrides the manager's time source for tests. The scheduler
// shares the clock.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
	m.sched.SetClock(now)
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) markInFlight(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.inFlight[id]; busy {
		return false
	}
	m.inFlight[id] = struct{}{}
	return true
}

func (m *Manager) clearInFlight(id int64) {
	m.mu.Lock()
	delete(m.inFlight, id)
	m.mu.Unlock()
}

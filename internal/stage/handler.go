package stage

import (
	"context"
	"log/slog"

	"shortreel/internal/queue"
)

// Handler describes the contract the workflow manager needs from each
// pipeline stage. Prepare validates inputs and fails fast before any
// external call; Execute does the work and returns the payload section the
// stage produced.
type Handler interface {
	Prepare(context.Context, *queue.Item) error
	Execute(context.Context, *queue.Item) (queue.PayloadDelta, error)
	HealthCheck(context.Context) Health
	// Collaborator names the external service the stage depends on, used
	// to key the circuit breaker. Stages without an external dependency
	// return "".
	Collaborator() string
}

// LoggerAware lets the executor hand stages a logger enriched with item
// and stage context.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}

package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"shortreel/internal/config"
	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/services"
	"shortreel/internal/stage"
)

// Options controls stage execution and work item persistence behavior.
type Options struct {
	Logger  *slog.Logger
	Store   *queue.Store
	Handler stage.Handler
	Breaker *BreakerSet
	Tuning  config.StageTuning
	Item    *queue.Item
}

// Run executes one stage of a claimed work item and persists the outcome.
//
// The item must already be running; Run never claims. Failures are
// classified through the services taxonomy: retryable errors park the item
// with a backoff deadline until the attempt budget runs out, fatal errors
// cancel it, and safety rejections cancel without consuming the attempt.
// A handled failure returns nil; only infrastructure problems surface as
// errors.
func Run(ctx context.Context, opts Options) error {
	if opts.Handler == nil {
		return fmt.Errorf("stage handler is required")
	}
	if opts.Store == nil {
		return fmt.Errorf("work item store is required")
	}
	if opts.Item == nil {
		return fmt.Errorf("work item is required")
	}
	item := opts.Item
	if item.Status != queue.StatusRunning {
		return fmt.Errorf("work item %d is %s, expected running", item.ID, item.Status)
	}

	stageCtx := services.WithItemID(ctx, item.ID)
	stageCtx = services.WithStage(stageCtx, string(item.Stage))
	stageCtx = services.WithChannel(stageCtx, item.ChannelID)
	stageLogger := logging.WithContext(stageCtx, opts.Logger)
	if aware, ok := opts.Handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("attempt", item.AttemptsFor(item.Stage)+1),
		logging.Bool("dry_run", item.DryRun),
	)

	delta, stageErr := execute(stageCtx, opts)

	if stageErr == nil {
		if opts.Breaker != nil {
			opts.Breaker.Success(opts.Handler.Collaborator())
		}
		if err := opts.Store.MarkStageSucceeded(stageCtx, item, delta); err != nil {
			if errors.Is(err, queue.ErrStale) {
				stageLogger.Info("stage result discarded, item was stopped",
					logging.String(logging.FieldEventType, "stage_discarded"))
				return nil
			}
			return fmt.Errorf("persist stage result: %w", err)
		}
		stageLogger.Info(
			"stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.String("next_stage", string(item.Stage)),
		)
		return nil
	}

	return handleFailure(stageCtx, stageLogger, opts, stageErr)
}

func execute(ctx context.Context, opts Options) (queue.PayloadDelta, error) {
	runCtx := ctx
	cancel := func() {}
	if opts.Tuning.TimeoutSeconds > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(opts.Tuning.TimeoutSeconds)*time.Second)
	}
	defer cancel()

	// A re-run after a retryable failure may carry a half-written section
	// from the previous attempt.
	opts.Item.Payload.ClearSection(opts.Item.Stage)

	if err := opts.Handler.Prepare(runCtx, opts.Item); err != nil {
		return queue.PayloadDelta{}, timeoutAware(runCtx, opts.Item, "prepare", err)
	}
	delta, err := opts.Handler.Execute(runCtx, opts.Item)
	if err != nil {
		return queue.PayloadDelta{}, timeoutAware(runCtx, opts.Item, "execute", err)
	}
	return delta, nil
}

// timeoutAware rewraps context deadline errors as the retryable timeout
// sentinel so classification treats a slow collaborator like any other
// transient fault.
func timeoutAware(ctx context.Context, item *queue.Item, operation string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, string(item.Stage), operation,
			"stage timed out", err)
	}
	return err
}

func handleFailure(ctx context.Context, logger *slog.Logger, opts Options, stageErr error) error {
	item := opts.Item
	message := strings.TrimSpace(services.Details(stageErr).Message)
	if message == "" {
		message = strings.TrimSpace(stageErr.Error())
	}

	// Daemon shutdown: leave the item running and let startup recovery
	// return it to the queue without consuming an attempt.
	if services.IsCancellation(stageErr) && ctx.Err() != nil {
		logger.Info("stage interrupted by shutdown",
			logging.String(logging.FieldEventType, "stage_interrupted"))
		return stageErr
	}

	switch {
	case services.IsSafetyRejection(stageErr):
		logger.Warn(
			"stage rejected by safety gate",
			logging.String(logging.FieldEventType, "stage_safety_rejection"),
			logging.String("error_message", message),
		)
		return discardStale(logger, opts.Store.MarkCancelled(ctx, item, message, false))

	case services.IsFatal(stageErr):
		logger.Error(
			"stage failed fatally",
			logging.String(logging.FieldEventType, "stage_fatal"),
			logging.String("error_message", message),
			logging.Error(stageErr),
		)
		return discardStale(logger, opts.Store.MarkCancelled(ctx, item, message, true))
	}

	if opts.Breaker != nil {
		opts.Breaker.Failure(opts.Handler.Collaborator())
	}

	attempt := item.AttemptsFor(item.Stage) + 1
	if opts.Tuning.MaxAttempts > 0 && attempt >= opts.Tuning.MaxAttempts {
		exhausted := fmt.Sprintf("retries exhausted after %d attempts: %s", attempt, message)
		logger.Error(
			"stage retries exhausted",
			logging.String(logging.FieldEventType, "stage_exhausted"),
			logging.Int("attempts", attempt),
			logging.String("error_message", message),
			logging.Error(stageErr),
		)
		return discardStale(logger, opts.Store.MarkCancelled(ctx, item, exhausted, true))
	}

	delay := backoffDelay(opts.Tuning, attempt)
	retryAt := time.Now().UTC().Add(delay)
	logger.Warn(
		"stage failed, will retry",
		logging.String(logging.FieldEventType, "stage_retry"),
		logging.Int("attempt", attempt),
		logging.Duration("backoff", delay),
		logging.String("error_message", message),
		logging.Error(stageErr),
	)
	return discardStale(logger, opts.Store.MarkStageFailed(ctx, item, message, retryAt))
}

// discardStale converts lost transition races into a clean no-op: the item
// was stopped while the stage ran and its result is intentionally dropped.
func discardStale(logger *slog.Logger, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, queue.ErrStale) {
		logger.Info("stage outcome discarded, item was stopped",
			logging.String(logging.FieldEventType, "stage_discarded"))
		return nil
	}
	return fmt.Errorf("persist stage outcome: %w", err)
}

// Package services defines shared utilities consumed by the pipeline stage
// handlers and external collaborator clients.
//
// Key responsibilities:
//   - Context helpers that stamp work item IDs, stage names, channel names,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures as
//     retryable or fatal for the stage executor framework.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services

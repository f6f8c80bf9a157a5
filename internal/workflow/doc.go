// Package workflow drives the production pipeline.
//
// The Manager ticks on a fixed interval. Each tick admits new work items
// for channels whose publish cadence calls for one, dispatches due items
// to their stage handlers through a bounded worker pool, folds finished
// analytics samples into the scoring model, and persists the model
// snapshot. Startup recovers items a previous daemon left running;
// shutdown waits for in-flight stages and saves the model.
//
// Dispatch consults the circuit breaker before claiming: stages whose
// collaborator is cooling down stay queued and are reconsidered on a
// later tick without consuming a retry attempt.
package workflow

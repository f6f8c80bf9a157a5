// Package stageexec runs a single pipeline stage against a claimed work
// item and applies the retry, cancellation, and circuit breaker semantics
// shared by every stage.
package stageexec

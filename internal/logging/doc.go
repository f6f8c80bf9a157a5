// Package logging wraps log/slog with the handlers and attribute helpers used
// across the pipeline: a console handler for interactive use, a JSON handler
// for machine consumption, context-derived structured fields, and a no-op
// logger for tests.
package logging

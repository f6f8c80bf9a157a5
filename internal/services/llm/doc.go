// Package llm wraps an OpenRouter-compatible chat completion API behind a
// small client used by topic research and script generation.
//
// The client sends JSON-only completion requests and maps transport and
// HTTP outcomes onto the shared services error taxonomy, so stage handlers
// never inspect status codes themselves. A thin in-client retry smooths
// over single dropped requests; the stage executor owns the real retry
// budget.
package llm

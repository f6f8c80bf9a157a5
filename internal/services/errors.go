package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Retryable markers. Stages tagged with one of these re-enter the retry path
// with backoff until the per-stage attempt budget runs out.
var (
	ErrTransient   = errors.New("transient failure")
	ErrRateLimited = errors.New("rate limited")
	ErrTimeout     = errors.New("timeout")
	ErrUnavailable = errors.New("collaborator unavailable")
)

// Fatal markers. Stages tagged with one of these cancel the work item
// immediately with no retry.
var (
	ErrValidation    = errors.New("validation error")
	ErrSafety        = errors.New("safety rejection")
	ErrConfiguration = errors.New("configuration error")
	ErrAuth          = errors.New("authentication error")
	ErrNotFound      = errors.New("not found")
)

var retryableMarkers = []error{ErrTransient, ErrRateLimited, ErrTimeout, ErrUnavailable}

var fatalMarkers = []error{ErrValidation, ErrSafety, ErrConfiguration, ErrAuth, ErrNotFound}

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above; unknown or nil markers default to
// ErrTransient.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsRetryable reports whether an error should re-enter the retry path.
// Untagged errors are treated as retryable so that unexpected collaborator
// failures burn budget instead of silently cancelling items; only explicit
// fatal markers short-circuit.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsFatal(err) {
		return false
	}
	return true
}

// IsFatal reports whether an error carries a fatal marker.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	for _, marker := range fatalMarkers {
		if errors.Is(err, marker) {
			return true
		}
	}
	return false
}

// IsSafetyRejection reports whether an error represents a policy or
// banned-term rejection. Safety rejections cancel without consuming the
// attempt that raised them.
func IsSafetyRejection(err error) bool {
	return errors.Is(err, ErrSafety)
}

// IsCancellation reports whether an error stems from context cancellation
// rather than a collaborator failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ErrorDetails captures the operator-facing portions of a stage error.
type ErrorDetails struct {
	Message   string
	Retryable bool
}

// Details extracts a trimmed operator-facing message and classification.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	msg := strings.TrimSpace(err.Error())
	for _, marker := range append(append([]error{}, retryableMarkers...), fatalMarkers...) {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			msg = strings.TrimPrefix(msg, prefix)
			break
		}
	}
	return ErrorDetails{Message: msg, Retryable: IsRetryable(err)}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

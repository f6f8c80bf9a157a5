package services_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"shortreel/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "script", "complete", "request failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"script", "complete", "request failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		fatal     bool
	}{
		{"transient", services.Wrap(services.ErrTransient, "assets", "fetch", "", nil), true, false},
		{"rate limited", services.Wrap(services.ErrRateLimited, "publish", "upload", "", nil), true, false},
		{"untagged", errors.New("surprise"), true, false},
		{"validation", services.Wrap(services.ErrValidation, "compose", "inputs", "missing audio", nil), false, true},
		{"safety", services.Wrap(services.ErrSafety, "script", "screen", "banned term", nil), false, true},
		{"auth", services.Wrap(services.ErrAuth, "publish", "token", "", nil), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsRetryable(tc.err); got != tc.retryable {
				t.Fatalf("IsRetryable = %v, want %v", got, tc.retryable)
			}
			if got := services.IsFatal(tc.err); got != tc.fatal {
				t.Fatalf("IsFatal = %v, want %v", got, tc.fatal)
			}
		})
	}
	if services.IsRetryable(nil) {
		t.Fatal("nil error must not be retryable")
	}
}

func TestSafetyRejectionDetection(t *testing.T) {
	err := services.Wrap(services.ErrSafety, "script", "screen", "policy violation", nil)
	if !services.IsSafetyRejection(err) {
		t.Fatalf("expected safety rejection, got %v", err)
	}
	other := services.Wrap(services.ErrValidation, "script", "parse", "", nil)
	if services.IsSafetyRejection(other) {
		t.Fatal("validation error must not read as safety rejection")
	}
}

func TestDetailsStripsMarkerPrefix(t *testing.T) {
	err := services.Wrap(services.ErrTimeout, "voiceover", "synthesize", "deadline hit", nil)
	details := services.Details(err)
	if strings.HasPrefix(details.Message, "timeout:") {
		t.Fatalf("marker prefix not stripped: %q", details.Message)
	}
	if !strings.Contains(details.Message, "voiceover") {
		t.Fatalf("expected stage name in message, got %q", details.Message)
	}
	if !details.Retryable {
		t.Fatal("timeout should classify retryable")
	}
}

func TestIsCancellation(t *testing.T) {
	if !services.IsCancellation(context.Canceled) {
		t.Fatal("context.Canceled should classify as cancellation")
	}
	if services.IsCancellation(errors.New("boom")) {
		t.Fatal("plain error should not classify as cancellation")
	}
}

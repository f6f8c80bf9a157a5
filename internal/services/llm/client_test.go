package llm_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"shortreel/internal/config"
	"shortreel/internal/services"
	"shortreel/internal/services/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *llm.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return llm.NewClient(config.LLM{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
	}, llm.WithSleeper(func(context.Context, time.Duration) error { return nil }))
}

func TestCompleteJSONReturnsContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"title\":\"hello\"}"}}]}`))
	})

	content, err := client.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON failed: %v", err)
	}
	var parsed struct {
		Title string `json:"title"`
	}
	if err := llm.DecodeJSON(content, &parsed); err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	if parsed.Title != "hello" {
		t.Fatalf("unexpected title %q", parsed.Title)
	}
}

func TestCompleteJSONRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	})

	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestCompleteJSONClassifiesAuthErrors(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected error")
	}
	if !services.IsFatal(err) {
		t.Fatalf("auth failure must be fatal, got %v", err)
	}
}

func TestCompleteJSONClassifiesRateLimit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if err == nil {
		t.Fatal("expected error")
	}
	if !services.IsRetryable(err) {
		t.Fatalf("rate limit must be retryable, got %v", err)
	}
}

func TestCompleteJSONSurfacesRefusalAsSafety(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"","refusal":"cannot help"}}]}`))
	})

	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if !services.IsSafetyRejection(err) {
		t.Fatalf("refusal must classify as safety rejection, got %v", err)
	}
}

func TestCompleteJSONRequiresAPIKey(t *testing.T) {
	client := llm.NewClient(config.LLM{BaseURL: "http://127.0.0.1:0", Model: "m"})
	_, err := client.CompleteJSON(context.Background(), "system", "user")
	if !services.IsFatal(err) {
		t.Fatalf("missing key must be fatal, got %v", err)
	}
}

func TestDecodeJSONStripsCodeFences(t *testing.T) {
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := llm.DecodeJSON("```json\n{\"ok\":true}\n```", &parsed); err != nil {
		t.Fatalf("DecodeJSON failed: %v", err)
	}
	if !parsed.OK {
		t.Fatal("expected ok=true")
	}

	if err := llm.DecodeJSON("Sure, here you go: {\"ok\":true}", &parsed); err != nil {
		t.Fatalf("DecodeJSON with prose failed: %v", err)
	}
}

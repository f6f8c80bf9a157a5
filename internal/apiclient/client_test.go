package apiclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"shortreel/internal/apiclient"
	"shortreel/internal/daemon"
)

func TestClientSendsTokenAndDecodesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/api/status" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(daemon.StatusView{Running: true, PID: 42})
	}))
	defer server.Close()

	client := apiclient.New(server.URL, "sekrit")
	status, err := client.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.PID != 42 {
		t.Fatalf("status = %+v", status)
	}
}

func TestClientItemsPassesStatusFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query()["status"]; len(got) != 2 || got[0] != "failed" || got[1] != "pending" {
			t.Errorf("status query = %v", got)
		}
		json.NewEncoder(w).Encode(daemon.ItemListResponse{Items: []daemon.ItemView{{ID: 7}}})
	}))
	defer server.Close()

	client := apiclient.New(server.URL, "")
	resp, err := client.Items(context.Background(), []string{"failed", "pending"})
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != 7 {
		t.Fatalf("items = %+v", resp.Items)
	}
}

func TestClientStopPostsReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/items/3/stop" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body struct {
			Reason string `json:"reason"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Reason != "bad topic" {
			t.Errorf("reason = %q", body.Reason)
		}
		json.NewEncoder(w).Encode(daemon.ItemView{ID: 3, Status: "cancelled"})
	}))
	defer server.Close()

	client := apiclient.New(server.URL, "")
	item, err := client.Stop(context.Background(), 3, "bad topic")
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if item.Status != "cancelled" {
		t.Fatalf("status = %q", item.Status)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(daemon.ErrorResponse{Error: "work item not found"})
	}))
	defer server.Close()

	client := apiclient.New(server.URL, "")
	_, err := client.Item(context.Background(), 99)
	var statusErr *apiclient.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("error = %v, want StatusError", err)
	}
	if statusErr.Code != http.StatusNotFound || statusErr.Message != "work item not found" {
		t.Fatalf("statusErr = %+v", statusErr)
	}
}

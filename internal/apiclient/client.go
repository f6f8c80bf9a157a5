package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shortreel/internal/daemon"
)

// Client talks to the daemon's HTTP inspection API. The wire types are the
// daemon's own view structs, so client and server cannot drift apart.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New builds a client for the API at baseURL. The token may be empty when
// the daemon runs without authentication.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// StatusError reports a non-2xx API response with the daemon's message.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("daemon api: %s (status %d)", e.Message, e.Code)
	}
	return fmt.Sprintf("daemon api: status %d", e.Code)
}

// Status retrieves the daemon status snapshot.
func (c *Client) Status(ctx context.Context) (*daemon.StatusView, error) {
	var view daemon.StatusView
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Items lists work items, optionally filtered by status names.
func (c *Client) Items(ctx context.Context, statuses []string) (*daemon.ItemListResponse, error) {
	path := "/api/items"
	if len(statuses) > 0 {
		values := url.Values{}
		for _, status := range statuses {
			values.Add("status", status)
		}
		path += "?" + values.Encode()
	}
	var resp daemon.ItemListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Item fetches a single work item by id.
func (c *Client) Item(ctx context.Context, id int64) (*daemon.ItemView, error) {
	var view daemon.ItemView
	if err := c.do(ctx, http.MethodGet, itemPath(id, ""), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Stop cancels a work item.
func (c *Client) Stop(ctx context.Context, id int64, reason string) (*daemon.ItemView, error) {
	body := map[string]string{"reason": reason}
	var view daemon.ItemView
	if err := c.do(ctx, http.MethodPost, itemPath(id, "stop"), body, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Retry clears a failed item's backoff so the next tick dispatches it.
func (c *Client) Retry(ctx context.Context, id int64) (*daemon.ItemView, error) {
	var view daemon.ItemView
	if err := c.do(ctx, http.MethodPost, itemPath(id, "retry"), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ClearAttempts re-admits a failed or cancelled item with a fresh budget.
func (c *Client) ClearAttempts(ctx context.Context, id int64) (*daemon.ItemView, error) {
	var view daemon.ItemView
	if err := c.do(ctx, http.MethodPost, itemPath(id, "clear-attempts"), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// Weights retrieves the scoring model report, optionally scoped.
func (c *Client) Weights(ctx context.Context, scope string) (*daemon.WeightsResponse, error) {
	path := "/api/weights"
	if scope != "" {
		path += "?scope=" + url.QueryEscape(scope)
	}
	var resp daemon.WeightsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func itemPath(id int64, action string) string {
	path := "/api/items/" + strconv.FormatInt(id, 10)
	if action != "" {
		path += "/" + action
	}
	return path
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr daemon.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return &StatusError{Code: resp.StatusCode, Message: apiErr.Error}
		}
		return &StatusError{Code: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

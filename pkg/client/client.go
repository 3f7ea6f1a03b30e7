// Package client provides a Go SDK for the runtime's admin control plane.
//
// Unlike the teacher's generated client, there is no OpenAPI document to
// codegen from here — the admin surface is a small, hand-stable set of
// JSON endpoints, so this client is hand-written directly against
// internal/httpapi's routes, reusing the same scheduler.WorkerStats and
// journal.Entry types the server serializes.
//
// # Basic Usage
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	workers, err := c.ListWorkers(ctx)
//
// # WebSocket Events
//
//	if err := c.ConnectWebSocket(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.CloseWebSocket()
//
//	for event := range c.Events() {
//	    fmt.Printf("event: %s\n", event.Type)
//	}
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/sukryu/stellane/internal/journal"
	"github.com/sukryu/stellane/internal/scheduler"
)

// Client is a small HTTP client for a runtime's admin surface.
type Client struct {
	baseURL string
	opts    *options
	ws      *WebSocketClient
}

// New creates a new admin Client.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Client{baseURL: baseURL, opts: o}, nil
}

// ConnectWebSocket establishes a WebSocket connection for real-time events.
func (c *Client) ConnectWebSocket(ctx context.Context) error {
	if c.ws != nil && c.ws.IsConnected() {
		return nil
	}
	c.ws = newWebSocketClient(c.baseURL, c.opts.apiKey)
	return c.ws.Connect(ctx)
}

// Events returns a channel that receives WebSocket events. Requires a prior
// call to ConnectWebSocket.
func (c *Client) Events() <-chan *Event {
	if c.ws == nil {
		ch := make(chan *Event)
		close(ch)
		return ch
	}
	return c.ws.Events()
}

// CloseWebSocket closes the WebSocket connection.
func (c *Client) CloseWebSocket() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

// SubscribeEvents subscribes to specific event types over an already
// connected WebSocket.
func (c *Client) SubscribeEvents(eventTypes ...EventType) error {
	if c.ws == nil {
		return fmt.Errorf("websocket not connected")
	}
	return c.ws.Subscribe(eventTypes...)
}

// WorkerListResponse is the body of GET /admin/workers.
type WorkerListResponse struct {
	Workers []scheduler.WorkerStats `json:"workers"`
	Count   int                     `json:"count"`
}

// QueueDepth is one worker's entry in GET /admin/queues.
type QueueDepth struct {
	Depth  int64 `json:"depth"`
	Paused bool  `json:"paused"`
}

// QueueStatsResponse is the body of GET /admin/queues.
type QueueStatsResponse struct {
	Queues     map[string]QueueDepth `json:"queues"`
	TotalDepth int64                 `json:"total_depth"`
}

// JournalEntriesResponse is the body of both journal listing endpoints.
type JournalEntriesResponse struct {
	Entries []*journal.Entry `json:"entries"`
	Count   int              `json:"count"`
}

// HealthResponse is the body of GET /admin/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Runtime string `json:"runtime"`
	Workers int    `json:"workers,omitempty"`
}

// ListWorkers returns every worker's current stats.
func (c *Client) ListWorkers(ctx context.Context) (*WorkerListResponse, error) {
	var out WorkerListResponse
	if err := c.do(ctx, http.MethodGet, "/admin/workers", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetWorker returns a single worker's stats by ID.
func (c *Client) GetWorker(ctx context.Context, workerID int) (*scheduler.WorkerStats, error) {
	var out scheduler.WorkerStats
	path := "/admin/workers/" + strconv.Itoa(workerID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PauseWorker pauses a worker by ID.
func (c *Client) PauseWorker(ctx context.Context, workerID int) error {
	path := "/admin/workers/" + strconv.Itoa(workerID) + "/pause"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// ResumeWorker resumes a paused worker by ID.
func (c *Client) ResumeWorker(ctx context.Context, workerID int) error {
	path := "/admin/workers/" + strconv.Itoa(workerID) + "/resume"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

// GetQueueStatistics returns per-worker queue depth.
func (c *Client) GetQueueStatistics(ctx context.Context) (*QueueStatsResponse, error) {
	var out QueueStatsResponse
	if err := c.do(ctx, http.MethodGet, "/admin/queues", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRecoverable returns journal entries still eligible for recovery.
func (c *Client) ListRecoverable(ctx context.Context) (*JournalEntriesResponse, error) {
	var out JournalEntriesResponse
	if err := c.do(ctx, http.MethodGet, "/admin/journal/recoverable", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDeadLettered returns journal entries that exhausted their recovery budget.
func (c *Client) ListDeadLettered(ctx context.Context) (*JournalEntriesResponse, error) {
	var out JournalEntriesResponse
	if err := c.do(ctx, http.MethodGet, "/admin/journal/dead-letter", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RetryEntry manually re-enters recovery for a journal entry by ID.
func (c *Client) RetryEntry(ctx context.Context, id string) error {
	body, err := json.Marshal(map[string]string{"id": id})
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/admin/journal/retry", bytes.NewReader(body), nil)
}

// CheckHealth checks the runtime's liveness.
func (c *Client) CheckHealth(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/admin/health", nil, &out)
	if err != nil && out.Status == "" {
		return nil, err
	}
	return &out, nil
}

// do executes a JSON request against the admin surface, decoding the
// response body into out (when non-nil) on any 2xx status.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.opts.apiKey != "" {
		req.Header.Set("X-API-Key", c.opts.apiKey)
	}
	for k, v := range c.opts.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.opts.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Message)
		}
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

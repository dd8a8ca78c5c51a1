package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPStageClient invokes the dispatch stages over HTTP, preserving the
// original function-to-function topology. The base URL normally points at
// this same service.
type HTTPStageClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPStageClient creates a stage client with an explicit per-call
// timeout.
func NewHTTPStageClient(baseURL string, timeout time.Duration) *HTTPStageClient {
	return &HTTPStageClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type stageRequest struct {
	Limit int `json:"limit"`
}

// ProcessEvents calls POST /process-events. A non-2xx response is an error;
// the orchestrator counts it against the stage without aborting the tick.
func (c *HTTPStageClient) ProcessEvents(ctx context.Context, limit int) (ProcessResult, error) {
	var res ProcessResult
	err := c.post(ctx, "/process-events", limit, &res)
	return res, err
}

// RunNotifications calls POST /run-notifications.
func (c *HTTPStageClient) RunNotifications(ctx context.Context, limit int) (RunResult, error) {
	var res RunResult
	err := c.post(ctx, "/run-notifications", limit, &res)
	return res, err
}

func (c *HTTPStageClient) post(ctx context.Context, path string, limit int, out interface{}) error {
	body, err := json.Marshal(stageRequest{Limit: limit})
	if err != nil {
		return fmt.Errorf("failed to marshal stage request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build stage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("stage call %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read stage response from %s: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stage call %s returned %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse stage response from %s: %w", path, err)
	}

	return nil
}

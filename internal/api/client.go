package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// APIError is a non-2xx daemon response.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("daemon error (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("daemon error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Client talks to a running daemon over its HTTP API.
type Client struct {
	base string
	http *http.Client
}

// NewClient builds a client for the daemon bound at address (host:port).
func NewClient(address string) *Client {
	base := strings.TrimSpace(address)
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// Submit posts an edit request payload and returns the admitted job.
func (c *Client) Submit(ctx context.Context, payload []byte) (JobView, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs", payload, &resp); err != nil {
		return JobView{}, err
	}
	return resp.Job, nil
}

// Jobs lists jobs, optionally filtered by state.
func (c *Client) Jobs(ctx context.Context, states ...string) ([]JobView, error) {
	path := "/api/jobs"
	if len(states) > 0 {
		values := url.Values{}
		for _, state := range states {
			values.Add("state", state)
		}
		path += "?" + values.Encode()
	}
	var resp JobListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Job fetches one job by identifier.
func (c *Client) Job(ctx context.Context, id int64) (JobView, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/jobs/%d", id), nil, &resp); err != nil {
		return JobView{}, err
	}
	return resp.Job, nil
}

// Cancel stops a queued or running job.
func (c *Client) Cancel(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/jobs/%d/cancel", id), nil, nil)
}

// Retry re-queues one failed job for another attempt.
func (c *Client) Retry(ctx context.Context, id int64) (JobView, error) {
	var resp JobResponse
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/jobs/%d/retry", id), nil, &resp); err != nil {
		return JobView{}, err
	}
	return resp.Job, nil
}

// RetryAll re-queues every failed job and returns how many were re-queued.
func (c *Client) RetryAll(ctx context.Context) (int64, error) {
	var resp JobsRetriedResponse
	if err := c.do(ctx, http.MethodPost, "/api/jobs/retry", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Retried, nil
}

// Remove deletes a finished job record.
func (c *Client) Remove(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/jobs/%d", id), nil, nil)
}

// ClearJobs deletes finished job records, or every record when all is set.
func (c *Client) ClearJobs(ctx context.Context, all bool) (int64, error) {
	path := "/api/jobs/clear"
	if all {
		path += "?scope=all"
	}
	var resp JobsClearedResponse
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return DaemonStatus{}, err
	}
	return resp, nil
}

// Fonts fetches the installed caption font catalog.
func (c *Client) Fonts(ctx context.Context) ([]FontView, error) {
	var resp FontListResponse
	if err := c.do(ctx, http.MethodGet, "/api/fonts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Fonts, nil
}

// ClearStorage purges uploads and finalized outputs.
func (c *Client) ClearStorage(ctx context.Context) (ClearStorageResponse, error) {
	var resp ClearStorageResponse
	if err := c.do(ctx, http.MethodPost, "/api/storage/clear", nil, &resp); err != nil {
		return ClearStorageResponse{}, err
	}
	return resp, nil
}

// Download streams a finished artifact to destPath and returns the bytes written.
func (c *Client) Download(ctx context.Context, id int64, destPath string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+fmt.Sprintf("/api/jobs/%d/download", id), nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, decodeError(resp)
	}

	out, err := os.Create(destPath)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	written, err := io.Copy(out, resp.Body)
	if err != nil {
		_ = os.Remove(destPath)
		return 0, fmt.Errorf("download artifact: %w", err)
	}
	return written, out.Close()
}

func (c *Client) do(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	var payload ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Kind = payload.Kind
	}
	return apiErr
}

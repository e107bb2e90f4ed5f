package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// QueueClient is the request-shaping facade the edge tier and the
// worker use to talk to the coordinator. It hides transport details
// and maps response codes to the sentinel errors in store.go.
type QueueClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewQueueClient(baseURL, token string) *QueueClient {
	return &QueueClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *QueueClient) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.http.Do(req)
}

// AddJob enqueues a new job and returns the id assigned to it.
func (c *QueueClient) AddJob(ctx context.Context, jobID string, payload JobPayload) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/queue/add", addRequest{JobID: jobID, Data: payload})
	if err != nil {
		return "", fmt.Errorf("add job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("add job: unexpected status %d", resp.StatusCode)
	}
	var out struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("add job: %w", err)
	}
	return out.JobID, nil
}

// GetJob asks for the next pending job. ErrQueueEmpty means none is
// waiting; ErrRateLimited means the coordinator asked us to back off.
func (c *QueueClient) GetJob(ctx context.Context) (*JobRecord, error) {
	resp, err := c.do(ctx, http.MethodGet, "/internal/queue/next", nil)
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		var rec JobRecord
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return nil, fmt.Errorf("get job: %w", err)
		}
		return &rec, nil
	case http.StatusNoContent:
		return nil, ErrQueueEmpty
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	default:
		return nil, fmt.Errorf("get job: unexpected status %d", resp.StatusCode)
	}
}

// UpdateJobStatus reports progress or a terminal state for jobID.
func (c *QueueClient) UpdateJobStatus(ctx context.Context, jobID string, upd StatusUpdate) error {
	resp, err := c.do(ctx, http.MethodPost, "/internal/jobs/"+jobID+"/status", upd)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("update job %s: unexpected status %d", jobID, resp.StatusCode)
	}
	return nil
}

// GetJobInfo looks up a single record. 404 maps to ErrJobNotFound.
func (c *QueueClient) GetJobInfo(ctx context.Context, jobID string) (*JobRecord, error) {
	resp, err := c.do(ctx, http.MethodGet, "/jobs/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("get job info %s: %w", jobID, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		var rec JobRecord
		if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
			return nil, fmt.Errorf("get job info %s: %w", jobID, err)
		}
		return &rec, nil
	case http.StatusNotFound:
		return nil, ErrJobNotFound
	default:
		return nil, fmt.Errorf("get job info %s: unexpected status %d", jobID, resp.StatusCode)
	}
}

func (c *QueueClient) DeleteJob(ctx context.Context, jobID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/jobs/"+jobID, nil)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", jobID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete job %s: unexpected status %d", jobID, resp.StatusCode)
	}
	return nil
}

// CleanupOldJobs is a no-op: the coordinator owns the stale-record
// sweep on its own timer.
func (c *QueueClient) CleanupOldJobs(ctx context.Context) error {
	return nil
}

package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"conveyor/internal/config"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPClient implements Client against the execution subsystem's HTTP API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client (useful for tests).
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewHTTPClient constructs an executor client from configuration.
func NewHTTPClient(cfg config.Executor, opts ...Option) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("executor base URL is required")
	}
	timeout := defaultHTTPTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	client := &HTTPClient{
		baseURL:    base,
		token:      strings.TrimSpace(cfg.APIToken),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type dispatchRequest struct {
	Payload Payload `json:"payload"`
}

type dispatchResponse struct {
	JobID string `json:"job_id"`
}

type statusResponse struct {
	State string `json:"state"`
	Error string `json:"error,omitempty"`
}

// Dispatch submits a payload and returns the assigned job id.
func (c *HTTPClient) Dispatch(ctx context.Context, payload Payload) (string, error) {
	body, err := json.Marshal(dispatchRequest{Payload: payload})
	if err != nil {
		return "", fmt.Errorf("marshal dispatch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/jobs", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("dispatch job: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("dispatch job: unexpected status %s", resp.Status)
	}

	var decoded dispatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode dispatch response: %w", err)
	}
	if strings.TrimSpace(decoded.JobID) == "" {
		return "", errors.New("dispatch response missing job id")
	}
	return decoded.JobID, nil
}

// Status queries the job ledger for the current state of a job.
func (c *HTTPClient) Status(ctx context.Context, jobID string) (Result, error) {
	if strings.TrimSpace(jobID) == "" {
		return Result{}, errors.New("job id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs/"+jobID, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build status request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("query job status: %w", err)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, fmt.Errorf("query job status: unexpected status %s", resp.Status)
	}

	var decoded statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("decode status response: %w", err)
	}
	state, ok := ParseJobState(decoded.State)
	if !ok {
		return Result{}, fmt.Errorf("unknown job state %q", decoded.State)
	}
	return Result{State: state, Error: decoded.Error}, nil
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}

package main

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

	"conveyor/internal/api"
	"conveyor/internal/broadcast"
)

// apiClient talks to the conveyord control plane over HTTP.
type apiClient struct {
	address    string
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(address string) *apiClient {
	base := address
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &apiClient{
		address:    address,
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *apiClient) Status(ctx context.Context) (api.DaemonStatus, error) {
	var status api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, &status)
	return status, err
}

func (c *apiClient) QueueList(ctx context.Context, statuses []string) ([]api.PhaseView, error) {
	path := "/api/queue"
	if len(statuses) > 0 {
		values := url.Values{}
		for _, status := range statuses {
			values.Add("status", status)
		}
		path += "?" + values.Encode()
	}
	var resp api.QueueListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Phases, nil
}

func (c *apiClient) QueueByParent(ctx context.Context, parentTaskID string) ([]api.PhaseView, error) {
	var resp api.QueueListResponse
	if err := c.do(ctx, http.MethodGet, "/api/queue/"+url.PathEscape(parentTaskID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Phases, nil
}

func (c *apiClient) Submit(ctx context.Context, batch api.BatchRequest) ([]api.PhaseView, error) {
	var resp api.QueueListResponse
	if err := c.do(ctx, http.MethodPost, "/api/queue", batch, &resp); err != nil {
		return nil, err
	}
	return resp.Phases, nil
}

func (c *apiClient) Remove(ctx context.Context, queueID string) error {
	return c.do(ctx, http.MethodDelete, "/api/queue/"+url.PathEscape(queueID), nil, nil)
}

func (c *apiClient) Retry(ctx context.Context, queueID string) (api.PhaseView, error) {
	var view api.PhaseView
	err := c.do(ctx, http.MethodPost, "/api/queue/"+url.PathEscape(queueID)+"/retry", nil, &view)
	return view, err
}

func (c *apiClient) GetConfig(ctx context.Context) (api.ConfigView, error) {
	var view api.ConfigView
	err := c.do(ctx, http.MethodGet, "/api/queue/config", nil, &view)
	return view, err
}

func (c *apiClient) SetPaused(ctx context.Context, paused bool) (api.ConfigView, error) {
	var view api.ConfigView
	err := c.do(ctx, http.MethodPost, "/api/queue/config/pause", api.PauseRequest{Paused: paused}, &view)
	return view, err
}

type eventsResponse struct {
	Events []broadcast.Event `json:"events"`
	Next   uint64            `json:"next"`
}

func (c *apiClient) Events(ctx context.Context, since uint64, wait bool) ([]broadcast.Event, uint64, error) {
	values := url.Values{}
	values.Set("since", strconv.FormatUint(since, 10))
	if wait {
		values.Set("wait", "true")
	}
	var resp eventsResponse
	if err := c.do(ctx, http.MethodGet, "/api/events?"+values.Encode(), nil, &resp); err != nil {
		return nil, since, err
	}
	return resp.Events, resp.Next, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapConnectError(err, c.address)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr api.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("daemon returned %s", resp.Status)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

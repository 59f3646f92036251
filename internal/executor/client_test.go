package executor_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"conveyor/internal/config"
	"conveyor/internal/executor"
)

func TestDispatchPostsPayload(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-7"})
	}))
	defer server.Close()

	client, err := executor.NewHTTPClient(config.Executor{BaseURL: server.URL, APIToken: "secret"})
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}

	jobID, err := client.Dispatch(context.Background(), executor.Payload{
		Title:      "build",
		Body:       "run the build",
		References: []string{"doc/build.md"},
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if jobID != "job-7" {
		t.Fatalf("expected job-7, got %s", jobID)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("expected bearer token, got %q", gotAuth)
	}
	payload, ok := gotBody["payload"].(map[string]any)
	if !ok || payload["title"] != "build" {
		t.Fatalf("unexpected request body: %#v", gotBody)
	}
}

func TestDispatchRejectsMissingJobID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	client, err := executor.NewHTTPClient(config.Executor{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	if _, err := client.Dispatch(context.Background(), executor.Payload{Title: "x"}); err == nil {
		t.Fatal("expected error for missing job id")
	}
}

func TestStatusParsesTerminalStates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/jobs/job-ok":
			json.NewEncoder(w).Encode(map[string]string{"state": "succeeded"})
		case "/jobs/job-bad":
			json.NewEncoder(w).Encode(map[string]string{"state": "failed", "error": "exit status 1"})
		case "/jobs/job-weird":
			json.NewEncoder(w).Encode(map[string]string{"state": "exploded"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := executor.NewHTTPClient(config.Executor{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewHTTPClient failed: %v", err)
	}
	ctx := context.Background()

	result, err := client.Status(ctx, "job-ok")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if result.State != executor.JobSucceeded {
		t.Fatalf("expected succeeded, got %s", result.State)
	}

	result, err = client.Status(ctx, "job-bad")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if result.State != executor.JobFailed || result.Error != "exit status 1" {
		t.Fatalf("unexpected result: %#v", result)
	}

	if _, err := client.Status(ctx, "job-weird"); err == nil {
		t.Fatal("expected error for unknown state")
	}
	if _, err := client.Status(ctx, "job-missing"); err == nil {
		t.Fatal("expected error for 404 response")
	}
	if _, err := client.Status(ctx, ""); err == nil {
		t.Fatal("expected error for empty job id")
	}
}

func TestNewHTTPClientRequiresBaseURL(t *testing.T) {
	if _, err := executor.NewHTTPClient(config.Executor{}); err == nil {
		t.Fatal("expected error for missing base URL")
	}
}

func TestJobStateHelpers(t *testing.T) {
	if !executor.JobSucceeded.IsTerminal() || !executor.JobFailed.IsTerminal() {
		t.Fatal("expected terminal states")
	}
	if executor.JobPending.IsTerminal() || executor.JobRunning.IsTerminal() {
		t.Fatal("expected non-terminal states")
	}
	if state, ok := executor.ParseJobState(" Succeeded "); !ok || state != executor.JobSucceeded {
		t.Fatalf("unexpected parse result: %s %v", state, ok)
	}
	if _, ok := executor.ParseJobState("unknown"); ok {
		t.Fatal("expected unknown state rejected")
	}
}

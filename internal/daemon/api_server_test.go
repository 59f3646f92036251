package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"conveyor/internal/api"
	"conveyor/internal/broadcast"
	"conveyor/internal/config"
	"conveyor/internal/coordinator"
	"conveyor/internal/executor"
	"conveyor/internal/notifications"
	"conveyor/internal/phase"
	"conveyor/internal/queue"
	"conveyor/internal/testsupport"
)

type fakeExecutor struct {
	mu      sync.Mutex
	nextJob int
	results map[string]executor.Result
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{results: make(map[string]executor.Result)}
}

func (f *fakeExecutor) Dispatch(ctx context.Context, payload executor.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextJob++
	jobID := fmt.Sprintf("job-%d", f.nextJob)
	f.results[jobID] = executor.Result{State: executor.JobRunning}
	return jobID, nil
}

func (f *fakeExecutor) Status(ctx context.Context, jobID string) (executor.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[jobID], nil
}

type testDaemon struct {
	daemon *Daemon
	store  *queue.Store
	base   string
}

func startTestDaemon(t *testing.T) *testDaemon {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	hub := broadcast.NewHub(cfg.Coordinator.EventBuffer)
	svc := phase.NewService(store, hub, notifications.NewService(cfg), nil)
	coord := coordinator.New(cfg, store, svc, newFakeExecutor(), nil)

	d, err := New(cfg, store, svc, coord, hub, nil)
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start failed: %v", err)
	}
	t.Cleanup(func() {
		d.Stop()
		cancel()
	})

	return &testDaemon{daemon: d, store: store, base: "http://" + d.api.addr()}
}

func (td *testDaemon) request(t *testing.T, method, path string, payload, out any) int {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("encode request: %v", err)
		}
		body = bytes.NewReader(encoded)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, td.base+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func batchRequest(parent string, titles ...string) api.BatchRequest {
	phases := make([]api.BatchPhase, len(titles))
	for i, title := range titles {
		phases[i] = api.BatchPhase{Title: title}
	}
	return api.BatchRequest{ParentTaskID: parent, Phases: phases}
}

func TestSubmitDispatchesFirstPhaseImmediately(t *testing.T) {
	td := startTestDaemon(t)

	var resp api.QueueListResponse
	status := td.request(t, http.MethodPost, "/api/queue", batchRequest("task-1", "plan", "build"), &resp)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if len(resp.Phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(resp.Phases))
	}

	// Submission dispatches phase 1 without waiting for a poll tick.
	first, err := td.store.GetByID(context.Background(), resp.Phases[0].QueueID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if first.Status != queue.StatusRunning || first.ExternalJobID == "" {
		t.Fatalf("expected phase 1 running, got %#v", first)
	}
}

func TestSubmitWhilePausedLeavesPhaseReady(t *testing.T) {
	td := startTestDaemon(t)

	var cfgView api.ConfigView
	if status := td.request(t, http.MethodPost, "/api/queue/config/pause", api.PauseRequest{Paused: true}, &cfgView); status != http.StatusOK {
		t.Fatalf("pause failed with status %d", status)
	}
	if !cfgView.Paused {
		t.Fatal("expected paused config echoed")
	}

	var resp api.QueueListResponse
	if status := td.request(t, http.MethodPost, "/api/queue", batchRequest("task-2", "plan"), &resp); status != http.StatusCreated {
		t.Fatalf("submit failed with status %d", status)
	}

	first, err := td.store.GetByID(context.Background(), resp.Phases[0].QueueID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if first.Status != queue.StatusReady {
		t.Fatalf("expected phase held ready while paused, got %s", first.Status)
	}
}

func TestSubmitValidationErrors(t *testing.T) {
	td := startTestDaemon(t)

	if status := td.request(t, http.MethodPost, "/api/queue", batchRequest("", "plan"), nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing parent, got %d", status)
	}

	if status := td.request(t, http.MethodPost, "/api/queue", batchRequest("task-3", "plan"), nil); status != http.StatusCreated {
		t.Fatal("expected first batch accepted")
	}
	if status := td.request(t, http.MethodPost, "/api/queue", batchRequest("task-3", "again"), nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicate parent, got %d", status)
	}
}

func TestQueueEndpoints(t *testing.T) {
	td := startTestDaemon(t)

	var submitted api.QueueListResponse
	td.request(t, http.MethodPost, "/api/queue", batchRequest("task-4", "plan", "build", "verify"), &submitted)

	var listed api.QueueListResponse
	if status := td.request(t, http.MethodGet, "/api/queue", nil, &listed); status != http.StatusOK {
		t.Fatalf("list failed with status %d", status)
	}
	if len(listed.Phases) != 3 {
		t.Fatalf("expected 3 phases, got %d", len(listed.Phases))
	}

	var queued api.QueueListResponse
	if status := td.request(t, http.MethodGet, "/api/queue?status=queued", nil, &queued); status != http.StatusOK {
		t.Fatalf("filtered list failed with status %d", status)
	}
	if len(queued.Phases) != 2 {
		t.Fatalf("expected 2 queued phases, got %d", len(queued.Phases))
	}
	if status := td.request(t, http.MethodGet, "/api/queue?status=bogus", nil, nil); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status filter, got %d", status)
	}

	var byParent api.QueueListResponse
	if status := td.request(t, http.MethodGet, "/api/queue/task-4", nil, &byParent); status != http.StatusOK {
		t.Fatalf("parent list failed with status %d", status)
	}
	if len(byParent.Phases) != 3 {
		t.Fatalf("expected 3 phases for parent, got %d", len(byParent.Phases))
	}

	// Phase 1 is running: removal is rejected, queued phase 3 removes fine.
	if status := td.request(t, http.MethodDelete, "/api/queue/"+submitted.Phases[0].QueueID, nil, nil); status != http.StatusConflict {
		t.Fatalf("expected 409 removing running phase, got %d", status)
	}
	if status := td.request(t, http.MethodDelete, "/api/queue/"+submitted.Phases[2].QueueID, nil, nil); status != http.StatusNoContent {
		t.Fatalf("expected 204 removing queued phase, got %d", status)
	}
	if status := td.request(t, http.MethodDelete, "/api/queue/no-such-id", nil, nil); status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown phase, got %d", status)
	}
}

func TestRetryEndpoint(t *testing.T) {
	td := startTestDaemon(t)
	ctx := context.Background()

	var submitted api.QueueListResponse
	td.request(t, http.MethodPost, "/api/queue", batchRequest("task-5", "plan", "build"), &submitted)

	// Fail the running phase through the service to set up the retry.
	if err := td.daemon.service.MarkFailed(ctx, submitted.Phases[0].QueueID, "boom"); err != nil {
		t.Fatalf("MarkFailed failed: %v", err)
	}

	var retried api.PhaseView
	if status := td.request(t, http.MethodPost, "/api/queue/"+submitted.Phases[0].QueueID+"/retry", nil, &retried); status != http.StatusOK {
		t.Fatalf("retry failed with status %d", status)
	}
	if retried.Status != string(queue.StatusReady) {
		t.Fatalf("expected retried phase ready, got %s", retried.Status)
	}

	second, err := td.store.GetByID(ctx, submitted.Phases[1].QueueID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if second.Status != queue.StatusQueued {
		t.Fatalf("expected dependent re-armed to queued, got %s", second.Status)
	}

	if status := td.request(t, http.MethodPost, "/api/queue/"+submitted.Phases[1].QueueID+"/retry", nil, nil); status != http.StatusConflict {
		t.Fatalf("expected 409 retrying queued phase, got %d", status)
	}
}

func TestStatusAndEventsEndpoints(t *testing.T) {
	td := startTestDaemon(t)

	td.request(t, http.MethodPost, "/api/queue", batchRequest("task-6", "plan"), nil)

	var status api.DaemonStatus
	if code := td.request(t, http.MethodGet, "/api/status", nil, &status); code != http.StatusOK {
		t.Fatalf("status failed with code %d", code)
	}
	if !status.Running || status.Health.Total != 1 {
		t.Fatalf("unexpected daemon status: %#v", status)
	}

	var events struct {
		Events []broadcast.Event `json:"events"`
		Next   uint64            `json:"next"`
	}
	if code := td.request(t, http.MethodGet, "/api/events?since=0", nil, &events); code != http.StatusOK {
		t.Fatalf("events failed with code %d", code)
	}
	if len(events.Events) == 0 || events.Next == 0 {
		t.Fatalf("expected submission events, got %#v", events)
	}
}

func TestSecondInstanceRejected(t *testing.T) {
	td := startTestDaemon(t)

	cfg := td.daemon.cfg
	store2, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	defer store2.Close()

	hub := broadcast.NewHub(16)
	svc := phase.NewService(store2, hub, notifications.NewService(cfg), nil)
	coord := coordinator.New(cfg, store2, svc, newFakeExecutor(), nil)

	second, err := New(bindlessCopy(cfg), store2, svc, coord, hub, nil)
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("expected second instance to fail on lock")
	}
}

// bindlessCopy strips the API bind so the second instance contends only for
// the file lock, not the port.
func bindlessCopy(cfg *config.Config) *config.Config {
	clone := *cfg
	clone.Paths.APIBind = ""
	return &clone
}

func TestStopDrainsCleanly(t *testing.T) {
	td := startTestDaemon(t)

	td.request(t, http.MethodPost, "/api/queue", batchRequest("task-7", "plan"), nil)

	done := make(chan struct{})
	go func() {
		td.daemon.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not drain in time")
	}

	status, err := td.daemon.Status(context.Background())
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon reported stopped")
	}
}

package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"conveyor/internal/config"
	"conveyor/internal/executor"
	"conveyor/internal/logging"
	"conveyor/internal/phase"
	"conveyor/internal/queue"
)

// Coordinator owns the poll loop. All state lives in the store, so a fresh
// instance resumes correctly after a crash by reading running phases on its
// first tick.
type Coordinator struct {
	store   *queue.Store
	service *phase.Service
	exec    executor.Client
	logger  *slog.Logger

	pollInterval time.Duration
	errorRetry   time.Duration
	phaseTimeout time.Duration

	mu       sync.Mutex
	running  bool
	stop     chan struct{}
	wg       sync.WaitGroup
	lastTick time.Time
	lastErr  error
}

// StatusSummary reports coordinator runtime state for the status API.
type StatusSummary struct {
	Running   bool
	LastTick  time.Time
	LastError string
}

// New constructs a coordinator from configuration.
func New(cfg *config.Config, store *queue.Store, service *phase.Service, exec executor.Client, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Coordinator{
		store:        store,
		service:      service,
		exec:         exec,
		logger:       logging.NewComponentLogger(logger, "coordinator"),
		pollInterval: time.Duration(cfg.Coordinator.PollInterval) * time.Second,
		errorRetry:   time.Duration(cfg.Coordinator.ErrorRetryInterval) * time.Second,
		phaseTimeout: time.Duration(cfg.Coordinator.PhaseTimeout) * time.Second,
	}
}

// Start begins background polling. The provided context bounds the life of
// I/O within ticks; Stop performs a graceful drain instead of cancelling it.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("coordinator already running")
	}
	c.running = true
	c.stop = make(chan struct{})
	stop := c.stop
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(ctx, stop)
	return nil
}

// Stop halts the loop and waits for any in-flight tick to complete, so no
// transition is abandoned halfway.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stop)
	c.stop = nil
	c.mu.Unlock()

	c.wg.Wait()
	c.logger.Info("coordinator stopped")
}

// Status returns a snapshot of coordinator runtime state.
func (c *Coordinator) Status() StatusSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	summary := StatusSummary{Running: c.running, LastTick: c.lastTick}
	if c.lastErr != nil {
		summary.LastError = c.lastErr.Error()
	}
	return summary
}

func (c *Coordinator) run(ctx context.Context, stop chan struct{}) {
	defer c.wg.Done()
	c.logger.Info("coordinator started",
		logging.Duration("poll_interval", c.pollInterval),
		logging.Duration("phase_timeout", c.phaseTimeout),
	)

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		delay := c.pollInterval
		if err := c.tick(ctx); err != nil {
			c.setLastError(err)
			if errors.Is(err, context.Canceled) {
				return
			}
			c.logger.Warn("tick failed; retrying",
				logging.Error(err),
				logging.String(logging.FieldEventType, "tick_failed"),
				logging.String(logging.FieldErrorHint, "check store and executor reachability"),
			)
			delay = c.errorRetry
		}

		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (c *Coordinator) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Coordinator) markTick() {
	c.mu.Lock()
	c.lastTick = time.Now().UTC()
	c.lastErr = nil
	c.mu.Unlock()
}

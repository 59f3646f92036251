package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gofrs/flock"

	"conveyor/internal/broadcast"
	"conveyor/internal/config"
	"conveyor/internal/coordinator"
	"conveyor/internal/logging"
	"conveyor/internal/phase"
	"conveyor/internal/queue"
)

// Daemon coordinates the background services and enforces single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *queue.Store
	service *phase.Service
	coord   *coordinator.Coordinator
	hub     *broadcast.Hub

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, service *phase.Service, coord *coordinator.Coordinator, hub *broadcast.Hub, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || service == nil || coord == nil {
		return nil, errors.New("daemon requires config, store, service, and coordinator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockFilePath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		service:  service,
		coord:    coord,
		hub:      hub,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the daemon lock and launches the coordinator and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another conveyord instance is already running")
	}

	if err := d.coord.Start(ctx); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start coordinator: %w", err)
	}

	if d.api != nil {
		if err := d.api.start(ctx); err != nil {
			d.coord.Stop()
			_ = d.lock.Unlock()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("conveyord started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.api != nil {
		d.api.stop()
	}
	d.coord.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("conveyord stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Submit validates and persists a phase batch, then dispatches phase 1
// immediately when the queue is unpaused. This is the only place a batch's
// first phase starts; the poll loop never initiates one on its own.
func (d *Daemon) Submit(ctx context.Context, parentTaskID string, inputs []phase.Input) ([]*queue.Phase, error) {
	phases, err := d.service.SubmitBatch(ctx, parentTaskID, inputs)
	if err != nil {
		return nil, err
	}

	paused, err := d.service.Paused(ctx)
	if err != nil {
		return phases, err
	}
	if paused {
		return phases, nil
	}

	for _, p := range phases {
		if p.PhaseNumber != 1 {
			continue
		}
		if err := d.coord.DispatchPhase(ctx, p); err != nil {
			// Leave the phase ready; the coordinator retries next tick.
			d.logger.Warn("initial dispatch failed",
				logging.Error(err),
				logging.String(logging.FieldQueueID, p.QueueID),
				logging.String(logging.FieldErrorHint, "executor may be unreachable; dispatch retries next tick"),
			)
		}
		break
	}
	return phases, nil
}

// Status reports daemon runtime information.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	health, err := d.store.Health(ctx)
	if err != nil {
		return Status{}, err
	}
	cfg, err := d.store.GetConfig(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		QueueDBPath:  d.store.Path(),
		LockFilePath: d.lockPath,
		Paused:       cfg.Paused,
		Coordinator:  d.coord.Status(),
		Health:       health,
	}, nil
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	QueueDBPath  string
	LockFilePath string
	Paused       bool
	Coordinator  coordinator.StatusSummary
	Health       queue.HealthSummary
}

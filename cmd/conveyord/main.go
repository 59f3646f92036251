package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"conveyor/internal/broadcast"
	"conveyor/internal/config"
	"conveyor/internal/coordinator"
	"conveyor/internal/daemon"
	"conveyor/internal/executor"
	"conveyor/internal/logging"
	"conveyor/internal/notifications"
	"conveyor/internal/phase"
	"conveyor/internal/queue"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return
	}

	hub := broadcast.NewHub(cfg.Coordinator.EventBuffer)
	notifier := notifications.NewService(cfg)
	service := phase.NewService(store, hub, notifier, logger)
	exec, err := executor.NewHTTPClient(cfg.Executor)
	if err != nil {
		logger.Error("create executor client", logging.Error(err))
		_ = store.Close()
		return
	}
	coord := coordinator.New(cfg, store, service, exec, logger)

	d, err := daemon.New(cfg, store, service, coord, hub, logger)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("conveyord shutting down")
}

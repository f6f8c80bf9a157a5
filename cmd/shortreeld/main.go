package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"shortreel/internal/config"
	"shortreel/internal/daemon"
	"shortreel/internal/logging"
	"shortreel/internal/queue"
	"shortreel/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Secrets such as SHORTREEL_LLM_API_KEY may live in a .env file
	// alongside the working directory. A missing file is fine.
	_ = godotenv.Load()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open work item store", logging.Error(err))
		return
	}

	manager, err := workflow.NewManager(cfg, store, logger)
	if err != nil {
		logger.Error("build workflow manager", logging.Error(err))
		return
	}

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("shortreeld shutting down")
	d.Stop()
}

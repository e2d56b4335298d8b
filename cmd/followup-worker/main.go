package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	appconfig "github.com/casavoz/call-platform/internal/config"
	"github.com/casavoz/call-platform/internal/worker/followupworker"
	"github.com/casavoz/call-platform/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithWriter(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- followupworker.Run(ctx, cfg, logger)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("follow-up worker failed", "error", err)
			os.Exit(1)
		}
	case <-stop:
		logger.Info("shutting down follow-up worker...")
		cancel()
		select {
		case <-errCh:
		case <-time.After(10 * time.Second):
			logger.Error("follow-up worker shutdown timed out")
		}
	}

	logger.Info("follow-up worker stopped")
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	appconfig "github.com/casavoz/call-platform/internal/config"
	"github.com/casavoz/call-platform/internal/worker/analysisworker"
	"github.com/casavoz/call-platform/pkg/logging"
)

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithWriter(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- analysisworker.Run(ctx, cfg, logger)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("analysis worker failed", "error", err)
			os.Exit(1)
		}
	case <-stop:
		logger.Info("shutting down analysis worker...")
		cancel()
		select {
		case <-errCh:
		case <-time.After(30 * time.Second):
			logger.Error("analysis worker shutdown timed out")
		}
	}

	logger.Info("analysis worker stopped")
}

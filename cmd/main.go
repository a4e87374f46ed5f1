package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := NewRunner(RunnerOpts{Logger: logger})
	defer runner.Close()

	if err := runner.App().Run(ctx, os.Args); err != nil {
		switch {
		case errors.Is(err, shared.ErrNotImplemented):
			logger.Warn("not implemented")
			os.Exit(0)
		case errors.Is(err, context.Canceled):
			logger.Info("interrupted")
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}

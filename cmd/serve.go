package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/server"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/shared"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/supervisor"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/tasks"
	"github.com/paulohenriquevn/analisaai-socialmedia-backend-sync/internal/ui"
)

// Serve runs the worker pool, the optional scheduler and the HTTP API until interrupted.
//
// Each part is supervised and restarted when it fails.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	events := make(chan tasks.Event, 256)
	e, err := r.engine(engineOpts{events: events})
	if err != nil {
		return err
	}
	defer e.release()

	tree := supervisor.New("socialsync", r.logger, supervisor.Config{})
	tree.Add("executor", e.executor.Run)
	tree.Add("events", func(ctx context.Context) error { return r.logEvents(ctx, events) })

	if r.config.Scheduler.Enabled {
		tree.Add("scheduler", e.scheduler(r).Run)
	}

	if !cmd.Bool("no-http") {
		addr := cmd.String("addr")
		if addr == "" {
			addr = r.config.Server.Addr()
		}
		srv := server.New(addr, e.handler(r), r.logger.With("component", "http"))
		tree.Add("http", srv.Serve)
	}

	r.logger.Info("serving", "workers", r.config.Executor.Workers, "scheduler", r.config.Scheduler.Enabled,
		"http", !cmd.Bool("no-http"))

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Watch opens the dashboard for one user, optionally executing tasks in this process.
func (r *Runner) Watch(ctx context.Context, cmd *cli.Command) error {
	userID := cmd.String("user")

	// Log to a file so output does not interfere with the dashboard.
	logPath := cmd.String("log-file")
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer logFile.Close()

	fileLogger := shared.NewLogger(logFile)
	fileLogger.SetLevel(shared.ParseLevel(r.config.Log.Level))
	r.SetLogger(fileLogger)

	if !cmd.Bool("work") {
		d, err := r.dispatcher()
		if err != nil {
			return err
		}
		return r.runDashboard(ctx, d, userID, nil, cmd)
	}

	events := make(chan tasks.Event, 256)
	e, err := r.engine(engineOpts{events: events})
	if err != nil {
		return err
	}
	defer e.release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.executor.Run(ctx) }()

	err = r.runDashboard(ctx, e.dispatcher, userID, events, cmd)
	cancel()
	if runErr := <-done; runErr != nil && !errors.Is(runErr, context.Canceled) {
		return errors.Join(err, runErr)
	}
	return err
}

func (r *Runner) runDashboard(ctx context.Context, source ui.Source, userID string, events <-chan tasks.Event, cmd *cli.Command) error {
	if err := ui.Run(ctx, source, userID, events, cmd.Duration("refresh")); err != nil {
		return fmt.Errorf("error running dashboard: %w", err)
	}
	return nil
}
